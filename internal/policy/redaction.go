// Package policy holds the data-handling rules applied before chat content
// leaves the request path.
package policy

import (
	"regexp"
	"strings"
)

type rule struct {
	kind        string
	pattern     *regexp.Regexp
	replacement string
}

// Cards run before phones so long digit runs are not reported as phones.
var rules = []rule{
	{kind: "email", pattern: regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), replacement: "[REDACTED_EMAIL]"},
	{kind: "card", pattern: regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), replacement: "[REDACTED_CARD]"},
	{kind: "phone", pattern: regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), replacement: "[REDACTED_PHONE]"},
}

// Redaction is the outcome of masking one text.
type Redaction struct {
	Text  string
	Kinds []string
}

func (r Redaction) Changed() bool { return len(r.Kinds) > 0 }

// Redact masks emails, card numbers and phone numbers in input.
func Redact(input string) Redaction {
	out := Redaction{Text: input}
	for _, rl := range rules {
		next := rl.pattern.ReplaceAllString(out.Text, rl.replacement)
		if next != out.Text {
			out.Kinds = append(out.Kinds, rl.kind)
			out.Text = next
		}
	}
	return out
}

// RedactPII is Redact for callers that only need the text and a flag.
func RedactPII(input string) (string, bool) {
	r := Redact(input)
	return r.Text, r.Changed()
}

// MaskPhone keeps the first four and last two digits of a phone number for
// log lines.
func MaskPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if len(phone) <= 6 {
		return strings.Repeat("*", len(phone))
	}
	return phone[:4] + strings.Repeat("*", len(phone)-6) + phone[len(phone)-2:]
}
