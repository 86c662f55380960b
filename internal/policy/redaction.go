package policy

import "regexp"

// Rule replaces every match of Pattern with Marker.
type Rule struct {
	Kind    string
	Pattern *regexp.Regexp
	Marker  string
}

// Card runs before phone so long digit runs are not reported as phone numbers.
var piiRules = []Rule{
	{Kind: "email", Pattern: regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), Marker: "[REDACTED_EMAIL]"},
	{Kind: "card", Pattern: regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), Marker: "[REDACTED_CARD]"},
	{Kind: "phone", Pattern: regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), Marker: "[REDACTED_PHONE]"},
}

// Redactor masks sensitive fragments in text before it is persisted as a memory.
type Redactor struct {
	rules []Rule
}

// NewPIIRedactor masks e-mail addresses, card numbers and phone numbers.
func NewPIIRedactor() *Redactor {
	return &Redactor{rules: piiRules}
}

// Redact returns the masked text and the kinds that matched, in rule order.
// A nil Redactor returns the input unchanged.
func (r *Redactor) Redact(input string) (string, []string) {
	if r == nil {
		return input, nil
	}
	out := input
	var kinds []string
	for _, rule := range r.rules {
		next := rule.Pattern.ReplaceAllString(out, rule.Marker)
		if next != out {
			kinds = append(kinds, rule.Kind)
		}
		out = next
	}
	return out, kinds
}
