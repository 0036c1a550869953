package mailmsg

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-message/mail"
)

// ReadMessage parses a raw RFC822 message into a Message. Header values are
// unfolded and decoded; the first text/plain and text/html parts become the
// body. Parse errors on individual parts leave the body empty rather than
// failing the whole message.
func ReadMessage(r io.Reader) (*Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	msg := &Message{Headers: make(map[string]string)}

	fields := mr.Header.Fields()
	for fields.Next() {
		key := strings.ToLower(fields.Key())
		value, err := fields.Text()
		if err != nil {
			// Undecodable encoded-word; keep the raw value
			value = fields.Value()
		}

		if key == "received" {
			msg.Received = append(msg.Received, value)
			continue
		}
		// First occurrence wins for repeatable headers
		if _, ok := msg.Headers[key]; !ok {
			msg.Headers[key] = value
		}
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := h.ContentType()
			body, _ := io.ReadAll(p.Body)

			if strings.HasPrefix(ct, "text/plain") && msg.Body == "" {
				msg.Body = normalizeNewlines(string(body))
			} else if strings.HasPrefix(ct, "text/html") && msg.HTMLBody == "" {
				msg.HTMLBody = string(body)
			}
		}
	}

	return msg, nil
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

var tagRegexp = regexp.MustCompile(`<[^>]+>`)

// htmlToText reduces an HTML body to readable text.
func htmlToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		// Fallback to tag stripping
		return Sweep(tagRegexp.ReplaceAllString(html, " "))
	}
	doc.Find("script, style").Remove()
	return strings.TrimSpace(doc.Text())
}
