package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanPlateText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"all digits unchanged", "123456789012", "123456789012"},
		{"confused glyphs corrected", "O12345678I", "0123456781"},
		{"whitespace and case", "  o1234 5678i ", "0123456781"},
		{"punctuation stripped", "12-34.56:78", "12345678"},
		{"pipe and bracket", "|2345678]0", "1234567810"},
		{"full correction table", "OISBG|]JA", "015861134"},
		{"empty input", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanPlateText(tt.in))
		})
	}
}

func TestValidatePlateText(t *testing.T) {
	assert.True(t, ValidatePlateText("0123456781"))  // 10 digits
	assert.True(t, ValidatePlateText("01234567812")) // 11 digits
	assert.False(t, ValidatePlateText("123456789"))  // too short
	assert.False(t, ValidatePlateText("123456789012"))
	assert.False(t, ValidatePlateText("12345A7890"))
	assert.False(t, ValidatePlateText(""))
}

func TestCleanThenValidateRoundTrip(t *testing.T) {
	cleaned := CleanPlateText("O12345678I")
	assert.Equal(t, "0123456781", cleaned)
	assert.True(t, ValidatePlateText(cleaned))
}

func TestNormalizePlate(t *testing.T) {
	// Operator input keeps letters; no confusion corrections applied.
	assert.Equal(t, "ABC123", NormalizePlate(" abc-123 "))
	assert.Equal(t, "O12345678I", NormalizePlate("o12345678i"))
	assert.Equal(t, "", NormalizePlate("--- ---"))
}
