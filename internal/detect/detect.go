// Package detect holds the per-protocol failure detectors that classify a
// parsed email into a delivery verdict. Each detector is a pure function of
// the message: it either recognizes the message and returns a report, or
// stays silent so the next detector can try.
package detect

import "github.com/bouncesift/bouncesift/internal/mailmsg"

// Result is one classified delivery outcome.
type Result struct {
	Recipient  string // canonical mailbox the verdict is about
	Diagnosis  string // short human-readable explanation
	Reason     string // e.g. "vacation", "userunknown", "mailboxfull"
	Agent      string // detector identifier, e.g. "RFC3834"
	Date       string // verbatim Date header of the message, may be empty
	Status     string // SMTP enhanced status code, "" when the protocol has none
	SoftBounce bool   // true when the failure is transient
}

// Report wraps the result list together with the raw fragment of the
// returned original message, when the notification embeds one.
type Report struct {
	Results  []*Result
	Original string // may be empty
}

// Detector classifies messages of one notification protocol.
//
// Detect returns nil when the message is not recognized; it never returns an
// error. Detectors hold no mutable state and are safe for concurrent use.
type Detector interface {
	// Description is a short human-readable name for logs and listings.
	Description() string
	// Agent is the fixed identifier stamped on every result.
	Agent() string
	// InspectedHeaders lists the headers the dispatcher should know this
	// detector keys on. Not exhaustive of every header read.
	InspectedHeaders() []string

	Detect(msg *mailmsg.Message) *Report
}
