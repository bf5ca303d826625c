package lock

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/davlock/lib/lock"
)

// maxResponseBody limits the response bodies read by the client
const maxResponseBody = 1 << 20

// davClient sends lock requests to a WebDAV server and prints the results
type davClient struct {
	http *http.Client
	out  io.Writer
}

func newDavClient(timeout time.Duration, out io.Writer) *davClient {
	return &davClient{http: &http.Client{Timeout: timeout}, out: out}
}

// acquireOptions are the parameters of a new lock
type acquireOptions struct {
	Scope   lock.Scope
	Depth   lock.Depth
	Owner   string
	Timeout int64 // seconds, 0 for the server default, lock.TimeoutInfinite for no expiry
}

// --------------------------------------------------------------------------
// Operations
// --------------------------------------------------------------------------

// Acquire requests a new lock on url.
func (c *davClient) Acquire(url string, opts acquireOptions) error {
	header := map[string]string{
		"Content-Type": "application/xml; charset=utf-8",
		"Depth":        opts.Depth.String(),
	}
	if t := timeoutHeader(opts.Timeout); t != "" {
		header["Timeout"] = t
	}

	status, respHeader, body, err := c.do("LOCK", url, header, lockInfoBody(opts))
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusCreated:
		fmt.Fprintf(c.out, "acquired=true token=%s\n", stripCodedURL(respHeader.Get("Lock-Token")))
		return c.printLocks(body)
	case http.StatusLocked:
		fmt.Fprintf(c.out, "acquired=false\n")
		return nil
	default:
		return statusError("LOCK", status, body)
	}
}

// Refresh resets the timeout of the lock identified by token.
func (c *davClient) Refresh(url, token string, timeout int64) error {
	header := map[string]string{"If": "(" + codedURL(token) + ")"}
	if t := timeoutHeader(timeout); t != "" {
		header["Timeout"] = t
	}

	status, _, body, err := c.do("LOCK", url, header, "")
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return statusError("LOCK", status, body)
	}
	fmt.Fprintf(c.out, "refreshed=true\n")
	return c.printLocks(body)
}

// Release removes the lock identified by token.
func (c *davClient) Release(url, token string) error {
	status, _, body, err := c.do("UNLOCK", url, map[string]string{"Lock-Token": codedURL(token)}, "")
	if err != nil {
		return err
	}
	switch status {
	case http.StatusNoContent, http.StatusOK:
		fmt.Fprintf(c.out, "released=true\n")
		return nil
	case http.StatusConflict:
		fmt.Fprintf(c.out, "released=false\n")
		return nil
	default:
		return statusError("UNLOCK", status, body)
	}
}

// Discover prints the active locks of url.
func (c *davClient) Discover(url string) error {
	reqBody := xml.Header + `<D:propfind xmlns:D="DAV:"><D:prop><D:lockdiscovery/></D:prop></D:propfind>`
	status, _, body, err := c.do("PROPFIND", url, map[string]string{
		"Content-Type": "application/xml; charset=utf-8",
		"Depth":        "0",
	}, reqBody)
	if err != nil {
		return err
	}
	if status != http.StatusMultiStatus {
		return statusError("PROPFIND", status, body)
	}

	var ms multistatusXML
	if err := xml.Unmarshal(body, &ms); err != nil {
		return fmt.Errorf("invalid PROPFIND response: %w", err)
	}
	var locks []activeLockXML
	for _, r := range ms.Responses {
		for _, ps := range r.Propstat {
			locks = append(locks, ps.Prop.Locks...)
		}
	}
	fmt.Fprintf(c.out, "locks=%d\n", len(locks))
	for _, l := range locks {
		fmt.Fprintln(c.out, l.String())
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (c *davClient) do(method, url string, header map[string]string, body string) (int, http.Header, []byte, error) {
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		return 0, nil, nil, err
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("%s %s failed: %w", method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, resp.Header, respBody, nil
}

// printLocks prints the activelock elements of a LOCK response body
func (c *davClient) printLocks(body []byte) error {
	var prop propXML
	if err := xml.Unmarshal(body, &prop); err != nil {
		return fmt.Errorf("invalid LOCK response: %w", err)
	}
	for _, l := range prop.Locks {
		fmt.Fprintln(c.out, l.String())
	}
	return nil
}

func statusError(method string, status int, body []byte) error {
	var e errorXML
	if xml.Unmarshal(body, &e) == nil && len(e.Conditions) > 0 {
		return fmt.Errorf("%s failed: %d %s (%s)", method, status, http.StatusText(status), e.Conditions[0].XMLName.Local)
	}
	return fmt.Errorf("%s failed: %d %s", method, status, http.StatusText(status))
}

func lockInfoBody(opts acquireOptions) string {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString(`<D:lockinfo xmlns:D="DAV:"><D:lockscope>`)
	if opts.Scope == lock.ScopeShared {
		b.WriteString("<D:shared/>")
	} else {
		b.WriteString("<D:exclusive/>")
	}
	b.WriteString("</D:lockscope><D:locktype><D:write/></D:locktype>")
	if opts.Owner != "" {
		b.WriteString("<D:owner><D:href>")
		_ = xml.EscapeText(&b, []byte(opts.Owner))
		b.WriteString("</D:href></D:owner>")
	}
	b.WriteString("</D:lockinfo>")
	return b.String()
}

func timeoutHeader(timeout int64) string {
	switch {
	case timeout == lock.TimeoutInfinite:
		return "Infinite"
	case timeout > 0:
		return "Second-" + strconv.FormatInt(timeout, 10)
	default:
		return ""
	}
}

// codedURL wraps a lock token in angle brackets
func codedURL(token string) string {
	return "<" + stripCodedURL(token) + ">"
}

func stripCodedURL(token string) string {
	return strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(token), "<"), ">")
}

// --------------------------------------------------------------------------
// Response documents
// --------------------------------------------------------------------------

type activeLockXML struct {
	Scope struct {
		Shared *struct{} `xml:"shared"`
	} `xml:"lockscope"`
	Depth   string `xml:"depth"`
	Timeout string `xml:"timeout"`
	Token   string `xml:"locktoken>href"`
	Root    string `xml:"lockroot>href"`
	Owner   string `xml:"owner"`
}

func (l activeLockXML) String() string {
	scope := lock.ScopeExclusive
	if l.Scope.Shared != nil {
		scope = lock.ScopeShared
	}
	return fmt.Sprintf("token=%s root=%s scope=%s depth=%s timeout=%s owner=%q",
		strings.TrimSpace(l.Token), strings.TrimSpace(l.Root), scope, strings.TrimSpace(l.Depth),
		strings.TrimSpace(l.Timeout), strings.TrimSpace(l.Owner))
}

type propXML struct {
	Locks []activeLockXML `xml:"lockdiscovery>activelock"`
}

type multistatusXML struct {
	Responses []struct {
		Href     string `xml:"href"`
		Propstat []struct {
			Prop   propXML `xml:"prop"`
			Status string  `xml:"status"`
		} `xml:"propstat"`
	} `xml:"response"`
}

type errorXML struct {
	Conditions []struct {
		XMLName xml.Name
	} `xml:",any"`
}
