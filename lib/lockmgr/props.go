package lockmgr

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/davlock/lib/lock"
)

// Property names of the lock properties. Rendered XML uses the prefix D for the DAV: namespace.
var (
	PropSupportedLock = xml.Name{Space: "DAV:", Local: "supportedlock"}
	PropLockDiscovery = xml.Name{Space: "DAV:", Local: "lockdiscovery"}
)

// Property is a rendered live property. InnerXML is the content of the property
// element and expects the DAV: namespace to be bound to the prefix D.
type Property struct {
	Name     xml.Name
	InnerXML string
}

const supportedLockXML = "<D:lockentry><D:lockscope><D:exclusive/></D:lockscope><D:locktype><D:write/></D:locktype></D:lockentry>" +
	"<D:lockentry><D:lockscope><D:shared/></D:lockscope><D:locktype><D:write/></D:locktype></D:lockentry>"

// TimeoutString renders the timeout of a lock as used in the timeout element.
func TimeoutString(l *lock.LockInfo) string {
	if l.Timeout == lock.TimeoutInfinite {
		return "Infinite"
	}
	return "Second-" + strconv.FormatInt(l.Timeout, 10)
}

// activeLockXML renders one <D:activelock> element.
func activeLockXML(baseURI string, l *lock.LockInfo) string {
	var sb strings.Builder
	sb.WriteString("<D:activelock>")
	if l.Scope == lock.ScopeShared {
		sb.WriteString("<D:lockscope><D:shared/></D:lockscope>")
	} else {
		sb.WriteString("<D:lockscope><D:exclusive/></D:lockscope>")
	}
	sb.WriteString("<D:locktype><D:write/></D:locktype>")
	fmt.Fprintf(&sb, "<D:lockroot><D:href>%s</D:href></D:lockroot>", escape(HrefFor(baseURI, l.URI)))
	fmt.Fprintf(&sb, "<D:depth>%s</D:depth>", l.Depth)
	fmt.Fprintf(&sb, "<D:timeout>%s</D:timeout>", TimeoutString(l))
	fmt.Fprintf(&sb, "<D:locktoken><D:href>%s</D:href></D:locktoken>", escape(l.FormatToken()))
	if l.Owner != "" {
		fmt.Fprintf(&sb, "<D:owner>%s</D:owner>", escape(l.Owner))
	}
	sb.WriteString("</D:activelock>")
	return sb.String()
}

// LockDiscoveryXML renders the content of a lockdiscovery property for locks.
func LockDiscoveryXML(baseURI string, locks []*lock.LockInfo) string {
	var sb strings.Builder
	for _, l := range locks {
		sb.WriteString(activeLockXML(baseURI, l))
	}
	return sb.String()
}

// LockResponseBody renders the body of a LOCK response for l.
func LockResponseBody(baseURI string, l *lock.LockInfo) []byte {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString(`<D:prop xmlns:D="DAV:"><D:lockdiscovery>`)
	b.WriteString(activeLockXML(baseURI, l))
	b.WriteString("</D:lockdiscovery></D:prop>")
	return b.Bytes()
}

func escape(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
