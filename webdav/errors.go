package webdav

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"

	"github.com/ValentinKolb/davlock/lib/lockmgr"
	"github.com/ValentinKolb/davlock/lib/tree"
)

// StatusLocked is the 423 status code of RFC 4918.
const StatusLocked = 423

// httpError is a handler level error with a fixed status code.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string {
	return e.msg
}

func newHTTPError(status int, format string, args ...interface{}) error {
	return &httpError{status: status, msg: fmt.Sprintf(format, args...)}
}

// StatusFor maps an error returned by the lock manager, the resource tree or the handler to a status code.
func StatusFor(err error) int {
	var lerr *lockmgr.Error
	var herr *httpError
	switch {
	case errors.As(err, &lerr):
		switch lerr.Kind {
		case lockmgr.KindLocked, lockmgr.KindConflictingLock:
			return StatusLocked
		case lockmgr.KindPreconditionFailed:
			return http.StatusPreconditionFailed
		case lockmgr.KindBadRequest:
			return http.StatusBadRequest
		case lockmgr.KindLockTokenMatchesRequestURI, lockmgr.KindConflict:
			return http.StatusConflict
		case lockmgr.KindMethodNotAllowed:
			return http.StatusMethodNotAllowed
		case lockmgr.KindForbidden:
			return http.StatusForbidden
		}
	case errors.As(err, &herr):
		return herr.status
	case errors.Is(err, tree.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tree.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// errorBody renders the DAV:error document for err. Lock related errors carry the
// RFC 4918 precondition element.
func errorBody(baseURI string, err error) []byte {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString(`<D:error xmlns:D="DAV:" xmlns:s="http://sabredav.org/ns">`)

	var lerr *lockmgr.Error
	if errors.As(err, &lerr) {
		switch lerr.Kind {
		case lockmgr.KindLocked:
			b.WriteString("<D:lock-token-submitted>")
			writeLockRoot(&b, baseURI, lerr)
			b.WriteString("</D:lock-token-submitted>")
		case lockmgr.KindConflictingLock:
			b.WriteString("<D:no-conflicting-lock>")
			writeLockRoot(&b, baseURI, lerr)
			b.WriteString("</D:no-conflicting-lock>")
		case lockmgr.KindLockTokenMatchesRequestURI:
			b.WriteString("<D:lock-token-matches-request-uri/>")
		case lockmgr.KindPreconditionFailed:
			b.WriteString("<s:header>")
			_ = xml.EscapeText(&b, []byte(lerr.Header))
			b.WriteString("</s:header>")
		}
	}

	b.WriteString("<s:message>")
	_ = xml.EscapeText(&b, []byte(err.Error()))
	b.WriteString("</s:message></D:error>")
	return b.Bytes()
}

func writeLockRoot(b *bytes.Buffer, baseURI string, lerr *lockmgr.Error) {
	if lerr.Lock == nil {
		return
	}
	b.WriteString("<D:href>")
	_ = xml.EscapeText(b, []byte(lockmgr.HrefFor(baseURI, lerr.Lock.URI)))
	b.WriteString("</D:href>")
}

// writeError writes the status and error document for err.
func writeError(w http.ResponseWriter, r *http.Request, baseURI string, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		log.Errorf("%s %s failed: %v", r.Method, r.URL.Path, err)
	} else {
		log.Debugf("%s %s rejected (%d): %v", r.Method, r.URL.Path, status, err)
	}

	body := errorBody(baseURI, err)
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
}
