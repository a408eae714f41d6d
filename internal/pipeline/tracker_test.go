package pipeline

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerAssignsStableID(t *testing.T) {
	tr := NewTracker()

	first := tr.Update([]image.Rectangle{image.Rect(100, 100, 200, 150)})
	require.Len(t, first, 1)

	// Slightly moved box keeps the same identity.
	second := tr.Update([]image.Rectangle{image.Rect(110, 105, 210, 155)})
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestTrackerNewIDForDisjointBox(t *testing.T) {
	tr := NewTracker()

	first := tr.Update([]image.Rectangle{image.Rect(0, 0, 50, 50)})
	second := tr.Update([]image.Rectangle{
		image.Rect(2, 2, 52, 52),
		image.Rect(500, 500, 600, 560),
	})
	require.Len(t, second, 2)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.NotEqual(t, first[0].ID, second[1].ID)
}

func TestTrackerAgesOutStaleTracks(t *testing.T) {
	tr := NewTracker()

	first := tr.Update([]image.Rectangle{image.Rect(0, 0, 50, 50)})
	oldID := first[0].ID

	// Leave the track unseen for longer than its aging window.
	for i := 0; i < tr.maxAge+1; i++ {
		tr.Update(nil)
	}

	reappeared := tr.Update([]image.Rectangle{image.Rect(0, 0, 50, 50)})
	require.Len(t, reappeared, 1)
	assert.NotEqual(t, oldID, reappeared[0].ID)
}

func TestTrackerMatchesBestOverlap(t *testing.T) {
	tr := NewTracker()

	ids := tr.Update([]image.Rectangle{
		image.Rect(0, 0, 100, 50),
		image.Rect(300, 0, 400, 50),
	})
	require.Len(t, ids, 2)

	// Both candidates overlap the first track; the closer one must win it.
	next := tr.Update([]image.Rectangle{
		image.Rect(5, 0, 105, 50),
		image.Rect(305, 0, 405, 50),
	})
	require.Len(t, next, 2)
	assert.Equal(t, ids[0].ID, next[0].ID)
	assert.Equal(t, ids[1].ID, next[1].ID)
}

func TestRectIoU(t *testing.T) {
	assert.Equal(t, 1.0, rectIoU(image.Rect(0, 0, 10, 10), image.Rect(0, 0, 10, 10)))
	assert.Equal(t, 0.0, rectIoU(image.Rect(0, 0, 10, 10), image.Rect(20, 20, 30, 30)))
	assert.InDelta(t, 1.0/3.0, rectIoU(image.Rect(0, 0, 10, 10), image.Rect(5, 0, 15, 10)), 1e-9)
}
