package detect

import (
	"regexp"
	"strings"

	"github.com/bouncesift/bouncesift/internal/mailmsg"
)

// Patterns that mark a message as a system notice rather than a genuine
// auto-reply. Any match suppresses detection entirely.
var (
	excludeSubject = regexp.MustCompile(`(?:SECURITY information for|Mail failure -)`)
	excludeFrom    = regexp.MustCompile(`(?i)(?:root|postmaster|mailer-daemon)@`)
	// The to rule is case-sensitive where the from rule is not; kept as-is
	// since real corpora only show lower-case root@ recipients here.
	excludeTo = regexp.MustCompile(`root@`)
)

// Positive auto-reply markers per RFC3834 and the Exchange extension.
var (
	markAutoSubmitted = regexp.MustCompile(`(?i)^auto-(?:generated|replied|notified)`)
	markSuppress      = regexp.MustCompile(`(?i)(?:OOF|AutoReply)`)
	markPrecedence    = regexp.MustCompile(`^auto_reply$`)
	markSubject       = regexp.MustCompile(`(?i)^(?:auto:|out\s+of\s+office:)`)
)

const maxExcerptLines = 5

// AutoReplyDetector recognizes automated "out of office" replies as described
// by RFC3834. It is the last-resort detector: the dispatcher only consults it
// when no protocol-specific detector classified the message.
type AutoReplyDetector struct{}

func NewAutoReplyDetector() *AutoReplyDetector { return &AutoReplyDetector{} }

func (d *AutoReplyDetector) Description() string { return "Detector for auto replied message" }

func (d *AutoReplyDetector) Agent() string { return "RFC3834" }

func (d *AutoReplyDetector) InspectedHeaders() []string {
	return []string{"Auto-Submitted", "Precedence", "X-Auto-Response-Suppress"}
}

// Detect classifies msg as a vacation auto-reply, or returns nil.
func (d *AutoReplyDetector) Detect(msg *mailmsg.Message) *Report {
	if msg == nil || len(msg.Headers) == 0 {
		return nil
	}

	if subject, ok := msg.Header("subject"); ok && excludeSubject.MatchString(subject) {
		return nil
	}
	if from, ok := msg.Header("from"); ok && excludeFrom.MatchString(from) {
		return nil
	}
	if to, ok := msg.Header("to"); ok && excludeTo.MatchString(to) {
		return nil
	}

	matched := false
	if v, ok := msg.Header("auto-submitted"); ok && markAutoSubmitted.MatchString(v) {
		matched = true
	}
	if v, ok := msg.Header("x-auto-response-suppress"); !matched && ok && markSuppress.MatchString(v) {
		matched = true
	}
	if v, ok := msg.Header("precedence"); !matched && ok && markPrecedence.MatchString(v) {
		matched = true
	}
	if v, ok := msg.Header("subject"); !matched && ok && markSubject.MatchString(v) {
		matched = true
	}
	if !matched {
		return nil
	}

	// The first address header present decides the recipient; an unusable
	// value there suppresses the detection rather than trying the next one.
	var recipient string
	for _, name := range []string{"from", "return-path"} {
		if v, ok := msg.Header(name); ok {
			recipient = mailmsg.CanonicalAddress(v)
			break
		}
	}
	if recipient == "" {
		return nil
	}

	diagnosis := excerptBody(msg.Text())
	if diagnosis == "" {
		diagnosis = msg.Subject()
	}
	if diagnosis == "" {
		return nil
	}

	date, _ := msg.Header("date")
	return &Report{
		Results: []*Result{{
			Recipient: recipient,
			Diagnosis: mailmsg.Sweep(diagnosis),
			Reason:    "vacation",
			Agent:     d.Agent(),
			Date:      date,
			Status:    "",
		}},
	}
}

// excerptBody pulls the first few prose lines out of a free-form reply body.
// Lines without an interior space are treated as structural noise (signature
// separators, bare tokens) and skipped; a second consecutive blank line ends
// the message proper.
func excerptBody(body string) string {
	var b strings.Builder
	blanks := 0
	loaded := 0

	for _, line := range strings.Split(body, "\n") {
		if len(line) == 0 {
			blanks++
			if blanks > 1 {
				break
			}
			continue
		}
		if !strings.Contains(line, " ") {
			continue
		}

		blanks = 0
		b.WriteString(line)
		b.WriteByte(' ')
		loaded++
		if loaded >= maxExcerptLines {
			break
		}
	}

	return b.String()
}
