package policy

import (
	"strings"
	"testing"
)

func TestRedactorMasksAllKinds(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, kinds := NewPIIRedactor().Redact(input)
	if len(kinds) != 3 {
		t.Fatalf("kinds = %v, want 3 entries", kinds)
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
	if strings.Contains(out, "sam@example.com") {
		t.Fatalf("email survived redaction: %q", out)
	}
}

func TestRedactorReportsKinds(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "clean", input: "User: my favourite colour is teal\nMu: Noted.", want: nil},
		{name: "email only", input: "User: write to a.b@c.io", want: []string{"email"}},
		{name: "card beats phone", input: "card 4111-1111-1111-1111 please", want: []string{"card"}},
	}
	r := NewPIIRedactor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, kinds := r.Redact(tt.input)
			if strings.Join(kinds, ",") != strings.Join(tt.want, ",") {
				t.Fatalf("kinds = %v, want %v", kinds, tt.want)
			}
		})
	}
}

func TestNilRedactorIsIdentity(t *testing.T) {
	var r *Redactor
	out, kinds := r.Redact("sam@example.com")
	if out != "sam@example.com" || kinds != nil {
		t.Fatalf("Redact() = %q, %v; want input unchanged", out, kinds)
	}
}
