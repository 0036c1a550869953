package detect

import (
	"regexp"
	"strings"

	"github.com/bouncesift/bouncesift/internal/mailmsg"
)

// statusClass describes one SMTP reply code (RFC821) or enhanced status code
// (RFC3463): the bounce reason we report for it, whether the failure is
// transient, and whether the code is an enhanced (more specific) one.
type statusClass struct {
	reason   string
	soft     bool
	enhanced bool
}

// statusTable maps status codes found in DSN bodies to delivery reasons.
// Basic three-digit reply codes are the less specific half; dotted enhanced
// codes win when both appear on a line.
var statusTable = map[string]statusClass{
	"421": {"expired", true, false},
	"450": {"mailboxunavailable", true, false},
	"451": {"systemerror", true, false},
	"452": {"mailboxfull", true, false},
	"500": {"syntaxerror", false, false},
	"501": {"syntaxerror", false, false},
	"502": {"notimplemented", false, false},
	"550": {"userunknown", false, false},
	"551": {"notlocal", false, false},
	"552": {"mailboxfull", false, false},
	"553": {"userunknown", false, false},
	"554": {"failed", false, false},

	"4.2.2": {"mailboxfull", true, true},
	"4.4.1": {"expired", true, true},
	"4.4.2": {"networkerror", true, true},
	"4.4.7": {"expired", true, true},
	"5.0.0": {"userunknown", false, true},
	"5.1.0": {"userunknown", false, true},
	"5.1.1": {"userunknown", false, true},
	"5.1.2": {"hostunknown", false, true},
	"5.1.3": {"userunknown", false, true},
	"5.1.6": {"hasmoved", false, true},
	"5.1.8": {"rejected", false, true},
	"5.2.0": {"filtered", false, true},
	"5.2.1": {"suspend", false, true},
	"5.2.2": {"mailboxfull", true, true},
	"5.2.3": {"exceedssize", false, true},
	"5.3.0": {"systemerror", false, true},
	"5.3.1": {"mailboxfull", true, true},
	"5.3.4": {"mesgtoobig", false, true},
	"5.4.1": {"networkerror", false, true},
	"5.4.4": {"networkerror", false, true},
	"5.4.6": {"networkerror", false, true},
	"5.4.7": {"expired", false, true},
	"5.5.3": {"toomanyconn", true, true},
	"5.6.1": {"contenterror", false, true},
	"5.7.0": {"securityerror", false, true},
	"5.7.1": {"rejected", false, true},
	"5.7.6": {"securityerror", false, true},
	"5.7.7": {"securityerror", false, true},
}

var (
	dsnRecipient = regexp.MustCompile(`(?i)(?:final|original)-recipient:\s*(?:rfc822;)?\s*<?([^\s<>;]+@[^\s<>;]+)>?`)
	dsnAction    = regexp.MustCompile(`(?i)action:\s*(failed|delayed|delivered|relayed|expanded)`)
	dsnStatus    = regexp.MustCompile(`(?i)status:\s*([245]\.\d{1,3}\.\d{1,3})`)
	dsnDiagnosis = regexp.MustCompile(`(?i)diagnostic-code:\s*(?:smtp;)?\s*(.+)`)

	// Subjects typical of delivery status notifications
	dsnSubjects = []string{
		"undeliverable", "undelivered", "delivery status notification",
		"returned mail", "mail delivery failed", "failure notice",
		"delivery failure", "could not be delivered",
	}

	statusCleaner = strings.NewReplacer("-", " ", "(", " ", ")", " ", "[", " ", "]", " ")
)

// originalBoundary marks where the embedded original message starts.
var originalBoundary = regexp.MustCompile(`(?im)^(?:content-type:\s*message/rfc822|-+\s*original message\s*-+|-+ below this line is a copy of the message\.?)`)

// DSNDetector recognizes machine-generated delivery status notifications
// (RFC3464 reports and the common non-standard variants) and classifies them
// by the SMTP status codes found in the report.
type DSNDetector struct{}

func NewDSNDetector() *DSNDetector { return &DSNDetector{} }

func (d *DSNDetector) Description() string { return "Detector for delivery status notification" }

func (d *DSNDetector) Agent() string { return "RFC3464" }

func (d *DSNDetector) InspectedHeaders() []string {
	return []string{"Content-Type", "X-Failed-Recipients"}
}

// looksLikeDSN reports whether the headers resemble a delivery report at all.
func looksLikeDSN(msg *mailmsg.Message) bool {
	if ct, ok := msg.Header("content-type"); ok {
		lower := strings.ToLower(ct)
		if strings.Contains(lower, "multipart/report") || strings.Contains(lower, "report-type=delivery-status") {
			return true
		}
	}
	if _, ok := msg.Header("x-failed-recipients"); ok {
		return true
	}
	if from, ok := msg.Header("from"); ok {
		lower := strings.ToLower(from)
		if strings.Contains(lower, "mailer-daemon") || strings.Contains(lower, "postmaster") {
			return true
		}
	}
	if subject, ok := msg.Header("subject"); ok {
		lower := strings.ToLower(subject)
		for _, s := range dsnSubjects {
			if strings.Contains(lower, s) {
				return true
			}
		}
	}
	return false
}

// Detect classifies msg as a delivery status notification, or returns nil.
func (d *DSNDetector) Detect(msg *mailmsg.Message) *Report {
	if msg == nil || len(msg.Headers) == 0 {
		return nil
	}
	if !looksLikeDSN(msg) {
		return nil
	}

	body := msg.Text()
	report, original := splitOriginal(body)

	recipient := findRecipient(msg, report)
	if recipient == "" {
		return nil
	}

	code, class := scanStatus(report)
	diagnosis := findDiagnosis(report)
	if diagnosis == "" {
		diagnosis = msg.Subject()
	}

	soft := class.soft
	if m := dsnAction.FindStringSubmatch(report); m != nil && strings.EqualFold(m[1], "delayed") {
		soft = true
	}

	date, _ := msg.Header("date")
	return &Report{
		Results: []*Result{{
			Recipient:  recipient,
			Diagnosis:  mailmsg.Sweep(diagnosis),
			Reason:     class.reason,
			Agent:      d.Agent(),
			Date:       date,
			Status:     code,
			SoftBounce: soft,
		}},
		Original: original,
	}
}

// splitOriginal cuts the report text from the embedded copy of the original
// message, when the notification carries one.
func splitOriginal(body string) (report, original string) {
	loc := originalBoundary.FindStringIndex(body)
	if loc == nil {
		return body, ""
	}
	return body[:loc[0]], strings.TrimSpace(body[loc[1]:])
}

func findRecipient(msg *mailmsg.Message, report string) string {
	if m := dsnRecipient.FindStringSubmatch(report); m != nil {
		return mailmsg.CanonicalAddress(m[1])
	}
	if v, ok := msg.Header("x-failed-recipients"); ok {
		// May hold a comma-separated list; the first entry is enough
		first := strings.TrimSpace(strings.SplitN(v, ",", 2)[0])
		return mailmsg.CanonicalAddress(first)
	}
	return ""
}

// scanStatus walks the report lines looking for status codes. When a line
// carries both a basic reply code and an enhanced code, the enhanced one
// wins; the first code found this way decides the verdict.
func scanStatus(report string) (string, statusClass) {
	if m := dsnStatus.FindStringSubmatch(report); m != nil {
		if class, ok := statusTable[m[1]]; ok {
			return m[1], class
		}
	}

	for _, line := range strings.Split(report, "\n") {
		code, class, ok := analyzeLine(line)
		if ok {
			return code, class
		}
	}

	// Recognized as a DSN but no code present anywhere
	return "", statusClass{reason: "undefined", soft: false}
}

// analyzeLine scans the tokens of a cleaned line for status codes and
// returns the most specific one: an enhanced code beats a basic reply code
// appearing on the same line.
func analyzeLine(line string) (string, statusClass, bool) {
	tokens := strings.Fields(statusCleaner.Replace(line))

	var bestCode string
	var best statusClass
	for _, tok := range tokens {
		tok = strings.Trim(tok, ",;:")
		class, ok := statusTable[tok]
		if !ok {
			continue
		}
		if bestCode == "" || (class.enhanced && !best.enhanced) {
			bestCode, best = tok, class
		}
		if best.enhanced {
			break
		}
	}
	if bestCode == "" {
		return "", statusClass{}, false
	}
	return bestCode, best, true
}

func findDiagnosis(report string) string {
	if m := dsnDiagnosis.FindStringSubmatch(report); m != nil {
		return strings.TrimSpace(m[1])
	}
	for _, line := range strings.Split(report, "\n") {
		if _, _, ok := analyzeLine(line); ok {
			return strings.TrimSpace(line)
		}
	}
	return ""
}
