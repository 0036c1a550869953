package mailmsg

import (
	"net/mail"
	"strings"
)

// Message is a parsed email as seen by the detectors: unfolded header values
// keyed by lower-cased name, plus the decoded textual body. Detectors treat
// it as read-only.
type Message struct {
	Headers  map[string]string
	Received []string // Received headers in original order
	Body     string   // first text/plain part, line breaks as \n
	HTMLBody string   // first text/html part, if any
	Source   string   // where the message came from (file path, IMAP UID, ...)
}

// Header returns the value of a header and whether it is present. An absent
// header is distinct from one present with an empty value.
func (m *Message) Header(name string) (string, bool) {
	v, ok := m.Headers[strings.ToLower(name)]
	return v, ok
}

// Subject returns the raw subject header, or "" when absent.
func (m *Message) Subject() string {
	v, _ := m.Header("subject")
	return v
}

// Text returns the best plain-text rendering of the body: the text/plain
// part when present, otherwise the HTML part reduced to text.
func (m *Message) Text() string {
	if m.Body != "" {
		return m.Body
	}
	if m.HTMLBody != "" {
		return htmlToText(m.HTMLBody)
	}
	return ""
}

// CanonicalAddress reduces a raw address header value to a bare local@domain
// mailbox, stripping display names and angle brackets. Returns "" when no
// usable address can be found.
func CanonicalAddress(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if addr, err := mail.ParseAddress(raw); err == nil {
		return addr.Address
	}

	// Malformed display name or stray characters; fall back to the
	// angle-bracketed part if one exists.
	if i := strings.LastIndex(raw, "<"); i >= 0 {
		if j := strings.Index(raw[i:], ">"); j > 1 {
			candidate := strings.TrimSpace(raw[i+1 : i+j])
			if strings.Contains(candidate, "@") {
				return candidate
			}
		}
	}

	candidate := strings.Trim(raw, "<> \t")
	if strings.Contains(candidate, "@") && !strings.ContainsAny(candidate, " \t") {
		return candidate
	}
	return ""
}

// Sweep collapses runs of whitespace into single spaces and trims the edges.
func Sweep(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
