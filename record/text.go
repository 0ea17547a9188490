package record

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Fold returns s trimmed, NFC-normalized and case-folded, so that values typed
// on different devices compare equal.
func Fold(s string) string {
	// cases.Caser keeps state; one per call.
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// EqualFold compares two values after Fold.
func EqualFold(a, b string) bool {
	return Fold(a) == Fold(b)
}

// ContainsFold reports whether sub occurs in s, ignoring case.
func ContainsFold(s, sub string) bool {
	return strings.Contains(Fold(s), Fold(sub))
}

// Filled reports whether a free-text field carries a value. Placeholders the
// form writes for skipped slots count as empty.
func Filled(s string) bool {
	switch Fold(s) {
	case "", "na", "n/a", "-", "null", "undefined":
		return false
	}
	return true
}
