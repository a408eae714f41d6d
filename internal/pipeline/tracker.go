package pipeline

import "image"

// TrackedBox is a detection with the persistent identity the tracker
// assigned to it.
type TrackedBox struct {
	Box image.Rectangle
	ID  int
}

type track struct {
	id     int
	box    image.Rectangle
	misses int
}

// Tracker assigns stable integer identities to plate detections across
// frames of a single camera, matching by box overlap. Ids are unique for the
// tracker's lifetime and not stable across a restart. Owned by exactly one
// worker; no locking.
type Tracker struct {
	tracks []*track
	nextID int
	maxAge int
	minIoU float64
}

func NewTracker() *Tracker {
	return &Tracker{nextID: 1, maxAge: 5, minIoU: 0.3}
}

// Update associates the current frame's boxes with existing tracks by
// greedy best-IoU matching, creates fresh tracks for unmatched boxes, and
// ages out tracks unseen for maxAge consecutive updates. The returned slice
// follows the input box order.
func (t *Tracker) Update(boxes []image.Rectangle) []TrackedBox {
	assignment := make([]int, len(boxes)) // box index -> track id
	for i := range assignment {
		assignment[i] = -1
	}
	trackUsed := make([]bool, len(t.tracks))

	for {
		best := t.minIoU
		bestBox, bestTrack := -1, -1
		for bi, box := range boxes {
			if assignment[bi] >= 0 {
				continue
			}
			for ti, tr := range t.tracks {
				if trackUsed[ti] {
					continue
				}
				if iou := rectIoU(box, tr.box); iou >= best {
					best = iou
					bestBox, bestTrack = bi, ti
				}
			}
		}
		if bestBox < 0 {
			break
		}
		tr := t.tracks[bestTrack]
		tr.box = boxes[bestBox]
		tr.misses = 0
		trackUsed[bestTrack] = true
		assignment[bestBox] = tr.id
	}

	// Age unmatched tracks, dropping the stale ones.
	alive := t.tracks[:0]
	for ti, tr := range t.tracks {
		if !trackUsed[ti] {
			tr.misses++
			if tr.misses > t.maxAge {
				continue
			}
		}
		alive = append(alive, tr)
	}
	t.tracks = alive

	out := make([]TrackedBox, 0, len(boxes))
	for bi, box := range boxes {
		id := assignment[bi]
		if id < 0 {
			id = t.nextID
			t.nextID++
			t.tracks = append(t.tracks, &track{id: id, box: box})
		}
		out = append(out, TrackedBox{Box: box, ID: id})
	}
	return out
}

func rectIoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	ia := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - ia
	if union <= 0 {
		return 0
	}
	return ia / union
}
