package vision

import (
	"regexp"
	"strings"
)

// ocrCorrections maps glyphs the OCR backend commonly confuses onto the
// digits they stand for on all-digit plates. Applied in order.
var ocrCorrections = []struct {
	from, to string
}{
	{"O", "0"},
	{"I", "1"},
	{"S", "5"},
	{"B", "8"},
	{"G", "6"},
	{"|", "1"},
	{"]", "1"},
	{"J", "3"},
	{"A", "4"},
}

var platePattern = regexp.MustCompile(`^\d{10,11}$`)

// CleanPlateText normalizes a raw OCR reading: trims, uppercases, applies
// the character-confusion correction table, and strips everything that is
// not alphanumeric.
func CleanPlateText(text string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(text))

	for _, c := range ocrCorrections {
		cleaned = strings.ReplaceAll(cleaned, c.from, c.to)
	}

	var b strings.Builder
	b.Grow(len(cleaned))
	for _, r := range cleaned {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidatePlateText reports whether a cleaned reading matches the plate
// format rule (10 or 11 digits).
func ValidatePlateText(text string) bool {
	return platePattern.MatchString(text)
}

// NormalizePlate canonicalizes operator-entered plate text for registry
// storage and lookups: uppercase, alphanumerics only. No confusion
// corrections; the input is typed, not recognized.
func NormalizePlate(text string) string {
	upper := strings.ToUpper(strings.TrimSpace(text))
	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
