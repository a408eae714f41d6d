package pipeline

import (
	"container/list"

	"plate-scanner/internal/domain/plate"
)

type historyEntry struct {
	trackID int
	reading plate.OCRReading
}

// History remembers the best OCR reading per track for one camera. Any
// Resolve call touches the entry; when the configured bound is exceeded the
// least-recently-touched entry is evicted. Stored confidence never regresses
// for a track while its entry lives.
type History struct {
	bound   int
	entries map[int]*list.Element
	order   *list.List // front = most recently touched
}

func NewHistory(bound int) *History {
	if bound < 1 {
		bound = 1
	}
	return &History{
		bound:   bound,
		entries: make(map[int]*list.Element),
		order:   list.New(),
	}
}

// Resolve merges an incoming reading with the stored one for the track and
// returns the reading to use for this frame: the incoming one if it is the
// first or strictly more confident, otherwise the stored best.
func (h *History) Resolve(trackID int, incoming plate.OCRReading) plate.OCRReading {
	if elem, ok := h.entries[trackID]; ok {
		entry := elem.Value.(*historyEntry)
		if incoming.Confidence > entry.reading.Confidence {
			entry.reading = incoming
		}
		h.order.MoveToFront(elem)
		return entry.reading
	}

	h.entries[trackID] = h.order.PushFront(&historyEntry{trackID: trackID, reading: incoming})
	if h.order.Len() > h.bound {
		oldest := h.order.Back()
		h.order.Remove(oldest)
		delete(h.entries, oldest.Value.(*historyEntry).trackID)
	}
	return incoming
}

func (h *History) Len() int { return h.order.Len() }

// Contains reports whether a track still has a live entry. Read-only: does
// not count as a touch.
func (h *History) Contains(trackID int) bool {
	_, ok := h.entries[trackID]
	return ok
}
