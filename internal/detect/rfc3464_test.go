package detect

import (
	"strings"
	"testing"

	"github.com/bouncesift/bouncesift/internal/mailmsg"
)

func dsnMsg(headers map[string]string, body string) *mailmsg.Message {
	return &mailmsg.Message{Headers: headers, Body: body}
}

func TestDSNRecognition(t *testing.T) {
	body := "Final-Recipient: rfc822; kijitora@example.org\nStatus: 5.1.1\n"

	tests := []struct {
		name    string
		headers map[string]string
		matched bool
	}{
		{
			name: "multipart report content type",
			headers: map[string]string{
				"from":         "daemon@example.jp",
				"content-type": `multipart/report; report-type=delivery-status; boundary="b"`,
			},
			matched: true,
		},
		{
			name: "x-failed-recipients header",
			headers: map[string]string{
				"from":                "daemon@example.jp",
				"x-failed-recipients": "kijitora@example.org",
			},
			matched: true,
		},
		{
			name: "mailer-daemon sender",
			headers: map[string]string{
				"from": "MAILER-DAEMON@example.jp (Mail Delivery System)",
			},
			matched: true,
		},
		{
			name: "bounce subject",
			headers: map[string]string{
				"from":    "daemon@example.jp",
				"subject": "Undeliverable: weekly report",
			},
			matched: true,
		},
		{
			name: "ordinary message",
			headers: map[string]string{
				"from":    "neko@example.jp",
				"subject": "weekly report",
			},
			matched: false,
		},
	}

	d := NewDSNDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := d.Detect(dsnMsg(tt.headers, body))
			if got := report != nil; got != tt.matched {
				t.Errorf("got matched=%v, want %v", got, tt.matched)
			}
		})
	}
}

func TestDSNStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status string
		reason string
		soft   bool
	}{
		{
			name:   "status field",
			body:   "Final-Recipient: rfc822; neko@example.org\nAction: failed\nStatus: 5.1.1\n",
			status: "5.1.1",
			reason: "userunknown",
		},
		{
			name:   "enhanced code beats basic on the same line",
			body:   "Final-Recipient: rfc822; neko@example.org\nThe response was: 550 5.2.2 Mailbox full\n",
			status: "5.2.2",
			reason: "mailboxfull",
			soft:   true,
		},
		{
			name:   "basic code only",
			body:   "Final-Recipient: rfc822; neko@example.org\nRemote host said: 550 Unknown user\n",
			status: "550",
			reason: "userunknown",
		},
		{
			name:   "transient enhanced code",
			body:   "Final-Recipient: rfc822; neko@example.org\nStatus: 4.4.7\n",
			status: "4.4.7",
			reason: "expired",
			soft:   true,
		},
		{
			name:   "code wrapped in brackets",
			body:   "Final-Recipient: rfc822; neko@example.org\nhost said [5.7.1] message rejected\n",
			status: "5.7.1",
			reason: "rejected",
		},
		{
			name:   "no code anywhere",
			body:   "Final-Recipient: rfc822; neko@example.org\nYour message could not be delivered.\n",
			status: "",
			reason: "undefined",
		},
	}

	d := NewDSNDetector()
	headers := map[string]string{
		"from":         "mailer-daemon@example.jp",
		"content-type": `multipart/report; report-type=delivery-status; boundary="b"`,
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := d.Detect(dsnMsg(headers, tt.body))
			if report == nil {
				t.Fatal("got nil report")
			}
			r := report.Results[0]
			if r.Status != tt.status {
				t.Errorf("status: got %q, want %q", r.Status, tt.status)
			}
			if r.Reason != tt.reason {
				t.Errorf("reason: got %q, want %q", r.Reason, tt.reason)
			}
			if r.SoftBounce != tt.soft {
				t.Errorf("soft: got %v, want %v", r.SoftBounce, tt.soft)
			}
			if r.Agent != "RFC3464" {
				t.Errorf("agent: got %q, want %q", r.Agent, "RFC3464")
			}
		})
	}
}

func TestDSNDelayedActionIsSoft(t *testing.T) {
	d := NewDSNDetector()
	report := d.Detect(dsnMsg(map[string]string{
		"from": "mailer-daemon@example.jp",
	}, "Final-Recipient: rfc822; neko@example.org\nAction: delayed\nStatus: 5.4.7\n"))
	if report == nil {
		t.Fatal("got nil report")
	}
	if !report.Results[0].SoftBounce {
		t.Errorf("delayed delivery should be a soft bounce")
	}
}

func TestDSNRecipient(t *testing.T) {
	d := NewDSNDetector()

	tests := []struct {
		name    string
		headers map[string]string
		body    string
		want    string
	}{
		{
			name:    "final-recipient field",
			headers: map[string]string{"from": "mailer-daemon@example.jp"},
			body:    "Final-Recipient: rfc822; <kijitora@example.org>\nStatus: 5.1.1\n",
			want:    "kijitora@example.org",
		},
		{
			name:    "original-recipient field",
			headers: map[string]string{"from": "mailer-daemon@example.jp"},
			body:    "Original-Recipient: rfc822;sabineko@example.org\nStatus: 5.1.1\n",
			want:    "sabineko@example.org",
		},
		{
			name: "x-failed-recipients fallback takes the first entry",
			headers: map[string]string{
				"from":                "mailer-daemon@example.jp",
				"x-failed-recipients": "neko@example.org, inu@example.org",
			},
			body: "Your message could not be delivered.\n",
			want: "neko@example.org",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := d.Detect(dsnMsg(tt.headers, tt.body))
			if report == nil {
				t.Fatal("got nil report")
			}
			if got := report.Results[0].Recipient; got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDSNNoRecipient(t *testing.T) {
	d := NewDSNDetector()
	report := d.Detect(dsnMsg(map[string]string{
		"from": "mailer-daemon@example.jp",
	}, "Your message could not be delivered.\n"))
	if report != nil {
		t.Errorf("got a report without any recipient, want nil")
	}
}

func TestDSNDiagnosis(t *testing.T) {
	d := NewDSNDetector()
	report := d.Detect(dsnMsg(map[string]string{
		"from": "mailer-daemon@example.jp",
	}, "Final-Recipient: rfc822; neko@example.org\nDiagnostic-Code: smtp; 550 5.1.1 <neko@example.org>: User unknown\nStatus: 5.1.1\n"))
	if report == nil {
		t.Fatal("got nil report")
	}
	got := report.Results[0].Diagnosis
	if !strings.Contains(got, "User unknown") {
		t.Errorf("got %q, want the diagnostic-code text", got)
	}
}

func TestDSNOriginalMessage(t *testing.T) {
	d := NewDSNDetector()
	body := "Final-Recipient: rfc822; neko@example.org\n" +
		"Status: 5.1.1\n" +
		"\n" +
		"Content-Type: message/rfc822\n" +
		"\n" +
		"From: kijitora@example.jp\nSubject: Nyaan\n\nHello.\n"

	report := d.Detect(dsnMsg(map[string]string{
		"from": "mailer-daemon@example.jp",
	}, body))
	if report == nil {
		t.Fatal("got nil report")
	}
	if !strings.Contains(report.Original, "Subject: Nyaan") {
		t.Errorf("original: got %q, want the embedded message fragment", report.Original)
	}
	if strings.Contains(report.Original, "Final-Recipient") {
		t.Errorf("original should not include the report part")
	}
}
