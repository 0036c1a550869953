package mailmsg

import "testing"

func TestCanonicalAddress(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "bare address",
			raw:  "neko@example.jp",
			want: "neko@example.jp",
		},
		{
			name: "display name with angle brackets",
			raw:  "Neko Nyaan <neko@example.jp>",
			want: "neko@example.jp",
		},
		{
			name: "quoted display name",
			raw:  `"Nyaan, Neko" <neko@example.jp>`,
			want: "neko@example.jp",
		},
		{
			name: "angle brackets only",
			raw:  "<kijitora@example.org>",
			want: "kijitora@example.org",
		},
		{
			name: "malformed display name falls back to bracketed part",
			raw:  "=?broken?= word) <sabineko@example.org>",
			want: "sabineko@example.org",
		},
		{
			name: "surrounding whitespace",
			raw:  "  neko@example.jp  ",
			want: "neko@example.jp",
		},
		{
			name: "empty value",
			raw:  "",
			want: "",
		},
		{
			name: "no address at all",
			raw:  "Mail Delivery System",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanonicalAddress(tt.raw); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSweep(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "already clean", in: "I am away.", want: "I am away."},
		{name: "runs of spaces", in: "I  am   away.", want: "I am away."},
		{name: "tabs and newlines", in: "I\tam\naway.\n", want: "I am away."},
		{name: "leading and trailing", in: "  away  ", want: "away"},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sweep(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHeaderLookup(t *testing.T) {
	msg := &Message{Headers: map[string]string{
		"subject":        "Auto: away",
		"auto-submitted": "",
	}}

	if v, ok := msg.Header("Subject"); !ok || v != "Auto: away" {
		t.Errorf("mixed-case lookup: got %q, %v", v, ok)
	}
	if v, ok := msg.Header("AUTO-SUBMITTED"); !ok || v != "" {
		t.Errorf("empty value should still be present: got %q, %v", v, ok)
	}
	if _, ok := msg.Header("precedence"); ok {
		t.Errorf("absent header reported as present")
	}
}

func TestText(t *testing.T) {
	plain := &Message{Body: "Hello.\n", HTMLBody: "<p>Ignored</p>"}
	if got := plain.Text(); got != "Hello.\n" {
		t.Errorf("got %q, want the plain part", got)
	}

	html := &Message{HTMLBody: "<html><body><p>I am  away.</p><script>x()</script></body></html>"}
	got := html.Text()
	if Sweep(got) != "I am away." {
		t.Errorf("got %q, want the rendered HTML text", got)
	}

	empty := &Message{}
	if got := empty.Text(); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}
