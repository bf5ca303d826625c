package lockmgr

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/ValentinKolb/davlock/lib/lock"
)

// Request is the transport neutral view of an HTTP request the lock manager needs.
type Request struct {
	Method string
	URI    string      // canonical, slash-rooted path of the target resource
	Header http.Header // If, Depth, Timeout, Lock-Token and Destination are consulted
	Body   []byte
}

// NewRequest creates a request for the canonical path uri.
func NewRequest(method, uri string, header http.Header, body []byte) *Request {
	if header == nil {
		header = http.Header{}
	}
	return &Request{Method: method, URI: uri, Header: header, Body: body}
}

// HasBody reports whether the request carries a body other than whitespace.
func (r *Request) HasBody() bool {
	return len(bytes.TrimSpace(r.Body)) > 0
}

// --------------------------------------------------------------------------
// URI handling
// --------------------------------------------------------------------------

// ResolveURI maps a request URI (absolute URL or absolute path) to the canonical
// slash-rooted path below baseURI. Double slashes are collapsed and the result is
// percent-decoded and cleaned. URIs outside of baseURI are rejected with KindForbidden.
func ResolveURI(baseURI, uri string) (string, error) {
	base := normalizeBase(baseURI)

	if !strings.HasPrefix(uri, "/") && strings.Contains(uri, "://") {
		u, err := url.Parse(uri)
		if err != nil {
			return "", &Error{Kind: KindBadRequest, Msg: fmt.Sprintf("invalid uri %q: %v", uri, err)}
		}
		uri = u.EscapedPath()
	}
	for strings.Contains(uri, "//") {
		uri = strings.ReplaceAll(uri, "//", "/")
	}

	var rel string
	switch {
	case strings.HasPrefix(uri, base):
		rel = uri[len(base):]
	case uri+"/" == base:
		rel = ""
	default:
		return "", &Error{Kind: KindForbidden, Msg: fmt.Sprintf("requested uri (%s) is out of base uri (%s)", uri, base)}
	}

	decoded, err := url.PathUnescape(rel)
	if err != nil {
		return "", &Error{Kind: KindBadRequest, Msg: fmt.Sprintf("invalid uri encoding %q: %v", rel, err)}
	}
	return path.Clean("/" + strings.Trim(decoded, "/")), nil
}

// HrefFor returns the URL path (percent-encoded) under which p is reachable below baseURI.
func HrefFor(baseURI, p string) string {
	return (&url.URL{Path: path.Join(normalizeBase(baseURI), p)}).EscapedPath()
}

func normalizeBase(baseURI string) string {
	if baseURI == "" {
		return "/"
	}
	if !strings.HasPrefix(baseURI, "/") {
		baseURI = "/" + baseURI
	}
	if !strings.HasSuffix(baseURI, "/") {
		baseURI += "/"
	}
	return baseURI
}

// --------------------------------------------------------------------------
// Headers
// --------------------------------------------------------------------------

// ParseTimeout interprets a Timeout header. It returns 0 if the header is empty,
// lock.TimeoutInfinite for "Infinite" and N for "Second-N" with N <= lock.MaxTimeout.
// Of a comma separated list only the first value is used. Anything else is a
// KindBadRequest error.
func ParseTimeout(header string) (int64, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, nil
	}
	if i := strings.IndexByte(header, ','); i >= 0 {
		header = strings.TrimSpace(header[:i])
	}

	const secondPrefix = "second-"
	switch {
	case strings.EqualFold(header, "infinite"):
		return lock.TimeoutInfinite, nil
	case len(header) > len(secondPrefix) && strings.EqualFold(header[:len(secondPrefix)], secondPrefix):
		n, err := strconv.ParseInt(header[len(secondPrefix):], 10, 64)
		if err != nil || n < 0 || n > lock.MaxTimeout {
			return 0, &Error{Kind: KindBadRequest, Msg: fmt.Sprintf("invalid timeout header %q", header)}
		}
		return n, nil
	default:
		return 0, &Error{Kind: KindBadRequest, Msg: fmt.Sprintf("invalid timeout header %q", header)}
	}
}

// normalizeLockToken wraps a Lock-Token header value in angle brackets if the client omitted them.
func normalizeLockToken(header string) string {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, "<") {
		header = "<" + header + ">"
	}
	return header
}

// --------------------------------------------------------------------------
// Lock request body
// --------------------------------------------------------------------------

type lockInfoXML struct {
	XMLName   xml.Name  `xml:"lockinfo"`
	Exclusive *struct{} `xml:"lockscope>exclusive"`
	Shared    *struct{} `xml:"lockscope>shared"`
	Write     *struct{} `xml:"locktype>write"`
	Owner     ownerXML  `xml:"owner"`
}

// ownerXML collects the text content of <owner>, including the text of nested elements like <href>.
type ownerXML struct {
	Text string
}

func (o *ownerXML) UnmarshalXML(d *xml.Decoder, _ xml.StartElement) error {
	var sb strings.Builder
	depth := 0
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				o.Text = strings.TrimSpace(sb.String())
				return nil
			}
			depth--
		}
	}
}

// ParseLockRequest parses a LOCK request body into a new lock with a fresh token.
// The scope is exclusive if <exclusive/> is given and shared otherwise.
// Depth and URI are left for the caller to fill in.
func ParseLockRequest(body []byte) (*lock.LockInfo, error) {
	var li lockInfoXML
	if err := xml.Unmarshal(body, &li); err != nil {
		return nil, &Error{Kind: KindBadRequest, Msg: fmt.Sprintf("invalid lock request body: %v", err)}
	}
	scope := lock.ScopeShared
	if li.Exclusive != nil {
		scope = lock.ScopeExclusive
	}
	return lock.NewLockInfo(li.Owner.Text, lock.NewToken(), scope, lock.DepthInfinity, "")
}
