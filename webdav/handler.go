package webdav

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/ValentinKolb/davlock/lib/lockmgr"
	"github.com/ValentinKolb/davlock/lib/tree"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("webdav")

// maxXMLBody limits the request bodies (LOCK, PROPFIND, PROPPATCH) that are read into memory.
const maxXMLBody = 1 << 20

var baseMethods = []string{
	http.MethodOptions, http.MethodGet, http.MethodHead, http.MethodDelete,
	"PROPFIND", http.MethodPut, "PROPPATCH", "COPY", "MOVE", "MKCOL",
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	// Hooks are consulted before PUT writes content. Nil allows every write.
	Hooks lockmgr.IHooks
}

// Handler serves a resource tree over WebDAV with locking through a lock manager.
type Handler struct {
	mgr     lockmgr.ILockManager
	tree    tree.ITree
	hooks   lockmgr.IHooks
	baseURI string
}

// NewHandler creates a WebDAV handler. The base URI is taken from the lock manager.
func NewHandler(mgr *lockmgr.LockManager, resources tree.ITree, cfg HandlerConfig) *Handler {
	hooks := cfg.Hooks
	if hooks == nil {
		hooks = lockmgr.NopHooks{}
	}
	return &Handler{
		mgr:     mgr,
		tree:    resources,
		hooks:   hooks,
		baseURI: mgr.Config().BaseURI,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, err := lockmgr.ResolveURI(h.baseURI, r.URL.EscapedPath())
	if err != nil {
		writeError(w, r, h.baseURI, err)
		return
	}

	var body []byte
	switch r.Method {
	case "LOCK", "PROPFIND", "PROPPATCH":
		if body, err = io.ReadAll(io.LimitReader(r.Body, maxXMLBody)); err != nil {
			writeError(w, r, h.baseURI, newHTTPError(http.StatusBadRequest, "failed to read body: %v", err))
			return
		}
	}
	req := lockmgr.NewRequest(r.Method, p, r.Header, body)

	if err := h.mgr.BeforeMethod(req); err != nil {
		writeError(w, r, h.baseURI, err)
		return
	}

	ctx := r.Context()
	switch r.Method {
	case http.MethodOptions:
		err = h.handleOptions(w)
	case http.MethodGet, http.MethodHead:
		err = h.handleGet(ctx, w, r, p)
	case http.MethodPut:
		err = h.handlePut(ctx, w, r, p)
	case http.MethodDelete:
		err = h.handleDelete(ctx, w, p)
	case "MKCOL":
		err = h.handleMkcol(ctx, w, r, p)
	case "MOVE", "COPY":
		err = h.handleCopyMove(ctx, w, r, p)
	case "PROPPATCH":
		err = h.handleProppatch(ctx, w, req)
	case "PROPFIND":
		err = h.handlePropfind(ctx, w, req)
	case "LOCK":
		err = h.handleLock(w, req)
	case "UNLOCK":
		err = h.handleUnlock(w, req)
	default:
		err = newHTTPError(http.StatusMethodNotAllowed, "method %s is not supported", r.Method)
	}

	if err != nil {
		writeError(w, r, h.baseURI, err)
	}
}

// --------------------------------------------------------------------------
// Locking
// --------------------------------------------------------------------------

func (h *Handler) handleLock(w http.ResponseWriter, req *lockmgr.Request) error {
	res, err := h.mgr.HandleLock(req)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Lock-Token", res.LockTokenHeader())
	w.WriteHeader(res.Status)
	_, err = w.Write(res.Body)
	return err
}

func (h *Handler) handleUnlock(w http.ResponseWriter, req *lockmgr.Request) error {
	status, err := h.mgr.HandleUnlock(req)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(status)
	return nil
}

// --------------------------------------------------------------------------
// Resource methods
// --------------------------------------------------------------------------

func (h *Handler) handleOptions(w http.ResponseWriter) error {
	methods := append(append([]string{}, baseMethods...), h.mgr.AllowedMethods()...)
	features := h.mgr.Features()
	if len(features) == 0 {
		features = []string{"1"}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	w.Header().Set("DAV", strings.Join(features, ", "))
	w.Header().Set("MS-Author-Via", "DAV")
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
	return nil
}

func (h *Handler) handleGet(ctx context.Context, w http.ResponseWriter, r *http.Request, p string) error {
	fi, err := h.tree.Stat(ctx, p)
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return newHTTPError(http.StatusMethodNotAllowed, "%s is a collection", p)
	}
	f, err := h.tree.Open(ctx, p)
	if err != nil {
		return err
	}
	defer f.Close()

	w.Header().Set("ETag", tree.ETagFor(fi))
	http.ServeContent(w, r, path.Base(p), fi.ModTime(), f)
	return nil
}

func (h *Handler) handlePut(ctx context.Context, w http.ResponseWriter, r *http.Request, p string) error {
	if !h.hooks.BeforeWriteContent(p) {
		return newHTTPError(http.StatusForbidden, "writing %s was vetoed", p)
	}
	created, err := h.tree.Write(ctx, p, r.Body)
	if err != nil {
		return err
	}
	if etag, err := h.tree.ETag(ctx, p); err == nil {
		w.Header().Set("ETag", etag)
	}
	w.Header().Set("Content-Length", "0")
	if created {
		w.WriteHeader(http.StatusCreated)
	} else {
		w.WriteHeader(http.StatusNoContent)
	}
	return nil
}

func (h *Handler) handleDelete(ctx context.Context, w http.ResponseWriter, p string) error {
	if p == "/" {
		return newHTTPError(http.StatusForbidden, "the root collection cannot be deleted")
	}
	if err := h.tree.RemoveAll(ctx, p); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) handleMkcol(ctx context.Context, w http.ResponseWriter, r *http.Request, p string) error {
	if r.ContentLength > 0 {
		return newHTTPError(http.StatusUnsupportedMediaType, "MKCOL with a body is not supported")
	}
	if ok, err := h.tree.Exists(ctx, p); err != nil {
		return err
	} else if ok {
		return newHTTPError(http.StatusMethodNotAllowed, "%s already exists", p)
	}
	if err := h.tree.Mkdir(ctx, p); err != nil {
		return err
	}
	w.WriteHeader(http.StatusCreated)
	return nil
}

func (h *Handler) handleCopyMove(ctx context.Context, w http.ResponseWriter, r *http.Request, p string) error {
	// the Destination header was resolved successfully by the lock pre-check
	dest, err := lockmgr.ResolveURI(h.baseURI, r.Header.Get("Destination"))
	if err != nil {
		return err
	}
	if dest == p || strings.HasPrefix(dest, strings.TrimSuffix(p, "/")+"/") {
		return newHTTPError(http.StatusForbidden, "source and destination overlap")
	}
	if _, err := h.tree.Stat(ctx, p); err != nil {
		return err
	}

	existed, err := h.tree.Exists(ctx, dest)
	if err != nil {
		return err
	}
	if existed && strings.EqualFold(r.Header.Get("Overwrite"), "F") {
		return newHTTPError(http.StatusPreconditionFailed, "%s exists and Overwrite is F", dest)
	}

	if r.Method == "MOVE" {
		err = h.tree.Rename(ctx, p, dest)
	} else {
		err = h.tree.Copy(ctx, p, dest)
	}
	if err != nil {
		return err
	}

	if existed {
		w.WriteHeader(http.StatusNoContent)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
	return nil
}

// --------------------------------------------------------------------------
// Properties
// --------------------------------------------------------------------------

var (
	propGetETag       = xml.Name{Space: "DAV:", Local: "getetag"}
	propResourceType  = xml.Name{Space: "DAV:", Local: "resourcetype"}
	propContentLength = xml.Name{Space: "DAV:", Local: "getcontentlength"}
)

type propNames struct {
	Names []xml.Name
}

func (n *propNames) UnmarshalXML(d *xml.Decoder, _ xml.StartElement) error {
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n.Names = append(n.Names, t.Name)
			if err := d.Skip(); err != nil {
				return err
			}
		case xml.EndElement:
			return nil
		}
	}
}

type propfindXML struct {
	XMLName xml.Name   `xml:"DAV: propfind"`
	AllProp *struct{}  `xml:"DAV: allprop"`
	Prop    *propNames `xml:"DAV: prop"`
}

type propertyUpdateXML struct {
	XMLName xml.Name `xml:"DAV: propertyupdate"`
	Set     []struct {
		Prop propNames `xml:"DAV: prop"`
	} `xml:"DAV: set"`
	Remove []struct {
		Prop propNames `xml:"DAV: prop"`
	} `xml:"DAV: remove"`
}

// handlePropfind answers depth 0 PROPFIND requests with the live properties
// getetag, getcontentlength, resourcetype, supportedlock and lockdiscovery.
func (h *Handler) handlePropfind(ctx context.Context, w http.ResponseWriter, req *lockmgr.Request) error {
	fi, err := h.tree.Stat(ctx, req.URI)
	if err != nil {
		return err
	}

	names := []xml.Name{propResourceType, lockmgr.PropSupportedLock, lockmgr.PropLockDiscovery}
	if !fi.IsDir() {
		names = append([]xml.Name{propGetETag, propContentLength}, names...)
	}
	if req.HasBody() {
		var pf propfindXML
		if err := xml.Unmarshal(req.Body, &pf); err != nil {
			return newHTTPError(http.StatusBadRequest, "invalid propfind body: %v", err)
		}
		if pf.Prop != nil && pf.AllProp == nil {
			names = pf.Prop.Names
		}
	}

	found := make(map[xml.Name]string, len(names))
	lockProps, err := h.mgr.AfterGetProperties(req.URI, names)
	if err != nil {
		return err
	}
	for name, prop := range lockProps {
		found[name] = prop.InnerXML
	}
	for _, name := range names {
		switch name {
		case propGetETag:
			if !fi.IsDir() {
				found[name] = escapeText(tree.ETagFor(fi))
			}
		case propContentLength:
			if !fi.IsDir() {
				found[name] = fmt.Sprintf("%d", fi.Size())
			}
		case propResourceType:
			found[name] = resourceType(fi)
		}
	}

	var ok, missing bytes.Buffer
	for _, name := range names {
		if inner, has := found[name]; has {
			writeProp(&ok, name, inner)
		} else {
			writeProp(&missing, name, "")
		}
	}

	var b bytes.Buffer
	beginMultistatus(&b, lockmgr.HrefFor(h.baseURI, req.URI))
	if ok.Len() > 0 {
		writePropstat(&b, ok.String(), http.StatusOK)
	}
	if missing.Len() > 0 {
		writePropstat(&b, missing.String(), http.StatusNotFound)
	}
	endMultistatus(&b)
	return writeMultistatus(w, b.Bytes())
}

// handleProppatch rejects every property change with 403. Dead properties are not stored.
func (h *Handler) handleProppatch(ctx context.Context, w http.ResponseWriter, req *lockmgr.Request) error {
	if _, err := h.tree.Stat(ctx, req.URI); err != nil {
		return err
	}
	var pu propertyUpdateXML
	if err := xml.Unmarshal(req.Body, &pu); err != nil {
		return newHTTPError(http.StatusBadRequest, "invalid propertyupdate body: %v", err)
	}

	var names []xml.Name
	for _, s := range pu.Set {
		names = append(names, s.Prop.Names...)
	}
	for _, r := range pu.Remove {
		names = append(names, r.Prop.Names...)
	}

	var props bytes.Buffer
	for _, name := range names {
		writeProp(&props, name, "")
	}

	var b bytes.Buffer
	beginMultistatus(&b, lockmgr.HrefFor(h.baseURI, req.URI))
	if props.Len() > 0 {
		writePropstat(&b, props.String(), http.StatusForbidden)
	}
	endMultistatus(&b)
	return writeMultistatus(w, b.Bytes())
}

// --------------------------------------------------------------------------
// XML helpers
// --------------------------------------------------------------------------

func resourceType(fi os.FileInfo) string {
	if fi.IsDir() {
		return "<D:collection/>"
	}
	return ""
}

func writeProp(b *bytes.Buffer, name xml.Name, inner string) {
	switch {
	case name.Space == "DAV:":
		fmt.Fprintf(b, "<D:%s>%s</D:%s>", name.Local, inner, name.Local)
	case name.Space == "":
		fmt.Fprintf(b, "<%s>%s</%s>", name.Local, inner, name.Local)
	default:
		fmt.Fprintf(b, `<x:%s xmlns:x="%s">%s</x:%s>`, name.Local, escapeText(name.Space), inner, name.Local)
	}
}

func writePropstat(b *bytes.Buffer, props string, status int) {
	fmt.Fprintf(b, "<D:propstat><D:prop>%s</D:prop><D:status>HTTP/1.1 %d %s</D:status></D:propstat>",
		props, status, http.StatusText(status))
}

func beginMultistatus(b *bytes.Buffer, href string) {
	b.WriteString(xml.Header)
	b.WriteString(`<D:multistatus xmlns:D="DAV:"><D:response><D:href>`)
	b.WriteString(escapeText(href))
	b.WriteString("</D:href>")
}

func endMultistatus(b *bytes.Buffer) {
	b.WriteString("</D:response></D:multistatus>")
}

func writeMultistatus(w http.ResponseWriter, body []byte) error {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	_, err := w.Write(body)
	return err
}

func escapeText(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
