package presence

import (
	"regexp"

	"github.com/jlauha/seuranta/internal/model"
)

var disallowed = regexp.MustCompile(`[^A-Za-z0-9]`)

// SanitizeName strips every character outside [A-Za-z0-9] from name and
// truncates the result to the maximum display-name length. The result may be
// empty; callers decide whether that is an error.
func SanitizeName(name string) string {
	cleaned := disallowed.ReplaceAllString(name, "")
	if len(cleaned) > model.NameMaxLength {
		// safe to slice bytes: the cleaned string is pure ASCII
		cleaned = cleaned[:model.NameMaxLength]
	}
	return cleaned
}
