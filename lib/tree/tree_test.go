package tree

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func readAll(t *testing.T, tr ITree, p string) string {
	t.Helper()
	f, err := tr.Open(context.Background(), p)
	if err != nil {
		t.Fatalf("Open(%s): %v", p, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("read %s: %v", p, err)
	}
	return string(b)
}

func TestCreateEmptyAndETag(t *testing.T) {
	ctx := context.Background()
	tr := NewMemTree()

	if ok, _ := tr.Exists(ctx, "/doc.txt"); ok {
		t.Fatal("fresh tree must be empty")
	}
	if _, err := tr.ETag(ctx, "/doc.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ETag of missing resource: expected ErrNotFound, got %v", err)
	}

	if err := tr.CreateEmpty(ctx, "/doc.txt"); err != nil {
		t.Fatalf("CreateEmpty: %v", err)
	}
	if ok, _ := tr.Exists(ctx, "/doc.txt"); !ok {
		t.Fatal("resource must exist after CreateEmpty")
	}
	if err := tr.CreateEmpty(ctx, "/doc.txt"); !errors.Is(err, ErrConflict) {
		t.Errorf("CreateEmpty on existing file: expected ErrConflict, got %v", err)
	}
	if err := tr.CreateEmpty(ctx, "/missing/doc.txt"); !errors.Is(err, ErrConflict) {
		t.Errorf("CreateEmpty without parent: expected ErrConflict, got %v", err)
	}

	etag, err := tr.ETag(ctx, "/doc.txt")
	if err != nil || !strings.HasPrefix(etag, `"`) || !strings.HasSuffix(etag, `"`) {
		t.Fatalf("ETag() = %q, %v", etag, err)
	}
	again, _ := tr.ETag(ctx, "/doc.txt")
	if etag != again {
		t.Errorf("ETag must be stable without changes: %s vs %s", etag, again)
	}

	if _, err := tr.Write(ctx, "/doc.txt", strings.NewReader("changed content")); err != nil {
		t.Fatal(err)
	}
	changed, _ := tr.ETag(ctx, "/doc.txt")
	if changed == etag {
		t.Error("ETag must change when the size changes")
	}
}

func TestWrite(t *testing.T) {
	ctx := context.Background()
	tr := NewMemTree()

	created, err := tr.Write(ctx, "/a.txt", strings.NewReader("one"))
	if err != nil || !created {
		t.Fatalf("Write() = %v, %v; want created", created, err)
	}
	created, err = tr.Write(ctx, "/a.txt", strings.NewReader("two"))
	if err != nil || created {
		t.Fatalf("Write() = %v, %v; want overwrite", created, err)
	}
	if got := readAll(t, tr, "/a.txt"); got != "two" {
		t.Errorf("content = %q, want two", got)
	}

	if _, err := tr.Write(ctx, "/nope/a.txt", strings.NewReader("x")); !errors.Is(err, ErrConflict) {
		t.Errorf("Write without parent: expected ErrConflict, got %v", err)
	}
	if err := tr.Mkdir(ctx, "/dir"); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Write(ctx, "/dir", strings.NewReader("x")); !errors.Is(err, ErrConflict) {
		t.Errorf("Write onto a collection: expected ErrConflict, got %v", err)
	}
}

func TestMkdirRemove(t *testing.T) {
	ctx := context.Background()
	tr := NewMemTree()

	if err := tr.Mkdir(ctx, "/a/b"); !errors.Is(err, ErrConflict) {
		t.Errorf("Mkdir without parent: expected ErrConflict, got %v", err)
	}
	if err := tr.Mkdir(ctx, "/a"); err != nil {
		t.Fatal(err)
	}
	if err := tr.Mkdir(ctx, "/a/b"); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Write(ctx, "/a/b/f", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}

	if err := tr.RemoveAll(ctx, "/a"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := tr.Exists(ctx, "/a/b/f"); ok {
		t.Error("RemoveAll must delete descendants")
	}
	if err := tr.RemoveAll(ctx, "/a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RemoveAll of missing path: expected ErrNotFound, got %v", err)
	}
}

func TestRenameAndCopy(t *testing.T) {
	ctx := context.Background()
	tr := NewMemTree()

	_ = tr.Mkdir(ctx, "/src")
	_ = tr.Mkdir(ctx, "/src/sub")
	_, _ = tr.Write(ctx, "/src/sub/f.txt", strings.NewReader("payload"))
	_, _ = tr.Write(ctx, "/dst", strings.NewReader("to be replaced"))

	if err := tr.Copy(ctx, "/src", "/dst"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if got := readAll(t, tr, "/dst/sub/f.txt"); got != "payload" {
		t.Errorf("copied content = %q", got)
	}
	if got := readAll(t, tr, "/src/sub/f.txt"); got != "payload" {
		t.Errorf("source must remain after copy, got %q", got)
	}

	if err := tr.Rename(ctx, "/src", "/moved"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if ok, _ := tr.Exists(ctx, "/src"); ok {
		t.Error("source must be gone after rename")
	}
	if got := readAll(t, tr, "/moved/sub/f.txt"); got != "payload" {
		t.Errorf("moved content = %q", got)
	}

	if err := tr.Copy(ctx, "/nothing", "/x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Copy of missing source: expected ErrNotFound, got %v", err)
	}
}
