package presence

import (
	"regexp"
	"testing"

	"pgregory.net/rapid"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "alex", "alex"},
		{"trailing punctuation", "45spoons.", "45spoons"},
		{"inner whitespace", " al ex ", "alex"},
		{"mixed case kept", "Alex", "Alex"},
		{"unicode stripped", "çæßøåé", ""},
		{"symbols stripped", "a!b@c#d$", "abcd"},
		{"only punctuation", "...", ""},
		{"empty", "", ""},
		{"truncated to limit", "abcdefghijklmnopqrstuvwxyz", "abcdefghijklmnopqrst"},
		{"strip then truncate", "a-b-c-d-e-f-g-h-i-j-k-l-m-n-o-p-q-r-s-t-u-v", "abcdefghijklmnopqrst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.input); got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeName_Properties(t *testing.T) {
	valid := regexp.MustCompile(`^[A-Za-z0-9]{0,20}$`)

	rapid.Check(t, func(t *rapid.T) {
		input := rapid.String().Draw(t, "input")
		got := SanitizeName(input)

		if !valid.MatchString(got) {
			t.Fatalf("SanitizeName(%q) = %q, not in [A-Za-z0-9]{0,20}", input, got)
		}
		if again := SanitizeName(got); again != got {
			t.Fatalf("not idempotent: SanitizeName(%q) = %q, then %q", input, got, again)
		}
	})
}
