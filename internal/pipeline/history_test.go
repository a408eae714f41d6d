package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"plate-scanner/internal/domain/plate"
)

func reading(text string, conf float64) plate.OCRReading {
	return plate.OCRReading{Text: text, Confidence: conf, Method: "test"}
}

func TestHistoryConfidenceNeverRegresses(t *testing.T) {
	h := NewHistory(10)

	got := h.Resolve(1, reading("1234567890", 0.8))
	assert.Equal(t, 0.8, got.Confidence)

	// A weaker reading resolves to the stored best.
	got = h.Resolve(1, reading("9999999999", 0.5))
	assert.Equal(t, "1234567890", got.Text)
	assert.Equal(t, 0.8, got.Confidence)

	// Equal confidence does not replace either.
	got = h.Resolve(1, reading("8888888888", 0.8))
	assert.Equal(t, "1234567890", got.Text)
}

func TestHistoryStrictlyBetterReadingWins(t *testing.T) {
	h := NewHistory(10)

	h.Resolve(7, reading("1111111111", 0.5))
	got := h.Resolve(7, reading("2222222222", 0.9))
	assert.Equal(t, "2222222222", got.Text)
	assert.Equal(t, 0.9, got.Confidence)

	// The improved reading sticks for later frames.
	got = h.Resolve(7, reading("3333333333", 0.1))
	assert.Equal(t, "2222222222", got.Text)
}

func TestHistoryEvictsLeastRecentlyTouched(t *testing.T) {
	h := NewHistory(2)

	h.Resolve(1, reading("1111111111", 0.5))
	h.Resolve(2, reading("2222222222", 0.5))
	h.Resolve(3, reading("3333333333", 0.5))

	assert.Equal(t, 2, h.Len())
	assert.False(t, h.Contains(1))
	assert.True(t, h.Contains(2))
	assert.True(t, h.Contains(3))
}

func TestHistoryTouchProtectsFromEviction(t *testing.T) {
	h := NewHistory(2)

	h.Resolve(1, reading("1111111111", 0.5))
	h.Resolve(2, reading("2222222222", 0.5))
	h.Resolve(1, reading("1111111111", 0.1)) // touch id 1
	h.Resolve(3, reading("3333333333", 0.5))

	assert.True(t, h.Contains(1))
	assert.False(t, h.Contains(2))
	assert.True(t, h.Contains(3))
}
