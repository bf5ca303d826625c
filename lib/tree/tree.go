package tree

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/afero"
)

var (
	// ErrNotFound is returned for operations on paths that do not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrConflict is returned if the parent collection of a path does not exist
	// or a resource already exists where a collection is to be created.
	ErrConflict = errors.New("resource conflict")
)

// ITree is the resource tree the lock manager and the WebDAV handler operate on.
// Paths are slash-rooted and cleaned.
type ITree interface {
	// Exists reports whether a resource exists at p.
	Exists(ctx context.Context, p string) (bool, error)
	// Stat returns the file info of the resource at p.
	Stat(ctx context.Context, p string) (os.FileInfo, error)
	// CreateEmpty creates an empty file at p. The parent collection must exist.
	CreateEmpty(ctx context.Context, p string) error
	// ETag returns the entity tag of the resource at p.
	ETag(ctx context.Context, p string) (string, error)
	// Write replaces the content of the file at p and reports whether the file was created.
	Write(ctx context.Context, p string, r io.Reader) (created bool, err error)
	// Open opens the resource at p for reading.
	Open(ctx context.Context, p string) (afero.File, error)
	// Mkdir creates the collection p. The parent collection must exist.
	Mkdir(ctx context.Context, p string) error
	// RemoveAll deletes the resource at p including all descendants.
	RemoveAll(ctx context.Context, p string) error
	// Rename moves the resource at from to to, replacing to.
	Rename(ctx context.Context, from, to string) error
	// Copy copies the resource at from (recursively) to to, replacing to.
	Copy(ctx context.Context, from, to string) error
}

type fsTree struct {
	fs afero.Fs
}

// NewFsTree creates a tree on top of an afero file system.
func NewFsTree(fs afero.Fs) ITree {
	return &fsTree{fs: fs}
}

// NewMemTree creates an empty in-memory tree.
func NewMemTree() ITree {
	return NewFsTree(afero.NewMemMapFs())
}

// NewDirTree creates a tree rooted at a directory of the local file system.
func NewDirTree(dir string) ITree {
	return NewFsTree(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

// ETagFor computes the entity tag of a resource from its modification time and size.
func ETagFor(fi os.FileInfo) string {
	return fmt.Sprintf(`"%x%x"`, fi.ModTime().UnixNano(), fi.Size())
}

func clean(p string) string {
	return path.Clean("/" + p)
}

// mapErr translates file system errors to the tree errors
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, os.ErrExist):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}

func (t *fsTree) requireParent(p string) error {
	parent := path.Dir(p)
	fi, err := t.fs.Stat(parent)
	if err != nil || !fi.IsDir() {
		return fmt.Errorf("%w: parent collection %s does not exist", ErrConflict, parent)
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docs see ITree)
// --------------------------------------------------------------------------

func (t *fsTree) Exists(_ context.Context, p string) (bool, error) {
	return afero.Exists(t.fs, clean(p))
}

func (t *fsTree) Stat(_ context.Context, p string) (os.FileInfo, error) {
	fi, err := t.fs.Stat(clean(p))
	return fi, mapErr(err)
}

func (t *fsTree) CreateEmpty(_ context.Context, p string) error {
	p = clean(p)
	if err := t.requireParent(p); err != nil {
		return err
	}
	f, err := t.fs.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return mapErr(err)
	}
	return f.Close()
}

func (t *fsTree) ETag(_ context.Context, p string) (string, error) {
	fi, err := t.fs.Stat(clean(p))
	if err != nil {
		return "", mapErr(err)
	}
	return ETagFor(fi), nil
}

func (t *fsTree) Write(_ context.Context, p string, r io.Reader) (bool, error) {
	p = clean(p)
	if err := t.requireParent(p); err != nil {
		return false, err
	}
	existed, err := afero.Exists(t.fs, p)
	if err != nil {
		return false, err
	}
	if existed {
		if isDir, _ := afero.IsDir(t.fs, p); isDir {
			return false, fmt.Errorf("%w: %s is a collection", ErrConflict, p)
		}
	}
	if err := afero.WriteReader(t.fs, p, r); err != nil {
		return false, mapErr(err)
	}
	return !existed, nil
}

func (t *fsTree) Open(_ context.Context, p string) (afero.File, error) {
	f, err := t.fs.Open(clean(p))
	return f, mapErr(err)
}

func (t *fsTree) Mkdir(_ context.Context, p string) error {
	p = clean(p)
	if err := t.requireParent(p); err != nil {
		return err
	}
	return mapErr(t.fs.Mkdir(p, 0o755))
}

func (t *fsTree) RemoveAll(_ context.Context, p string) error {
	p = clean(p)
	if ok, err := afero.Exists(t.fs, p); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return mapErr(t.fs.RemoveAll(p))
}

func (t *fsTree) Rename(_ context.Context, from, to string) error {
	from, to = clean(from), clean(to)
	if err := t.requireParent(to); err != nil {
		return err
	}
	fi, err := t.fs.Stat(from)
	if err != nil {
		return mapErr(err)
	}
	// collections are moved as copy and delete, not every afero.Fs renames descendants
	if fi.IsDir() {
		if err := t.Copy(context.Background(), from, to); err != nil {
			return err
		}
		return mapErr(t.fs.RemoveAll(from))
	}
	if ok, _ := afero.Exists(t.fs, to); ok {
		if err := t.fs.RemoveAll(to); err != nil {
			return mapErr(err)
		}
	}
	return mapErr(t.fs.Rename(from, to))
}

func (t *fsTree) Copy(_ context.Context, from, to string) error {
	from, to = clean(from), clean(to)
	if _, err := t.fs.Stat(from); err != nil {
		return mapErr(err)
	}
	if err := t.requireParent(to); err != nil {
		return err
	}
	if ok, _ := afero.Exists(t.fs, to); ok {
		if err := t.fs.RemoveAll(to); err != nil {
			return mapErr(err)
		}
	}

	return afero.Walk(t.fs, from, func(src string, fi os.FileInfo, err error) error {
		if err != nil {
			return mapErr(err)
		}
		rel, err := filepath.Rel(from, src)
		if err != nil {
			return err
		}
		dst := path.Join(to, filepath.ToSlash(rel))
		if fi.IsDir() {
			return t.fs.MkdirAll(dst, fi.Mode().Perm())
		}
		return t.copyFile(src, dst)
	})
}

func (t *fsTree) copyFile(src, dst string) error {
	in, err := t.fs.Open(src)
	if err != nil {
		return mapErr(err)
	}
	defer in.Close()
	return afero.WriteReader(t.fs, dst, in)
}
