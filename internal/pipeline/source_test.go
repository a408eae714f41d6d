package pipeline

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type fakeGrabber struct {
	src      gocv.Mat
	maxReads int
	reads    int
	owner    *Source
}

func (f *fakeGrabber) Read(m *gocv.Mat) bool {
	if f.reads >= f.maxReads {
		f.owner.stop()
		return false
	}
	f.reads++
	f.src.CopyTo(m)
	return true
}

func (f *fakeGrabber) Close() error { return nil }

type fakeSubmitter struct {
	err   error
	tasks []Task
}

func (f *fakeSubmitter) Submit(task Task) error {
	if f.err != nil {
		return f.err
	}
	// The submitter owns the frame after a successful submit.
	task.Frame.Close()
	f.tasks = append(f.tasks, task)
	return nil
}

func runFakeSource(t *testing.T, frameSkip, frames int, sub *fakeSubmitter) *Source {
	t.Helper()
	src := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { src.Close() })

	s := newSource(1, "test://stream", frameSkip, sub, zerolog.Nop())
	grabber := &fakeGrabber{src: src, maxReads: frames, owner: s}
	s.open = func(string) (frameGrabber, error) { return grabber, nil }
	s.active.Store(true)
	s.run()
	return s
}

func TestSourceForwardsEveryNthFrame(t *testing.T) {
	sub := &fakeSubmitter{}
	s := runFakeSource(t, 2, 10, sub)

	assert.Len(t, sub.tasks, 5)
	stats := s.stats()
	assert.Equal(t, uint64(10), stats.FramesRead)
	assert.Equal(t, uint64(5), stats.FramesForwarded)
	assert.Equal(t, uint64(0), stats.FramesDropped)
}

func TestSourceSkipFactorOneForwardsEverything(t *testing.T) {
	sub := &fakeSubmitter{}
	runFakeSource(t, 1, 4, sub)
	assert.Len(t, sub.tasks, 4)
}

func TestSourceDropsOnFullQueueWithoutBlocking(t *testing.T) {
	sub := &fakeSubmitter{err: ErrQueueFull}
	s := runFakeSource(t, 2, 10, sub)

	assert.Empty(t, sub.tasks)
	stats := s.stats()
	assert.Equal(t, uint64(5), stats.FramesDropped)
	assert.Equal(t, uint64(0), stats.FramesForwarded)
}

func TestSourceStopsWhenOpenKeepsFailing(t *testing.T) {
	s := newSource(1, "test://stream", 1, &fakeSubmitter{}, zerolog.Nop())
	opens := 0
	s.open = func(string) (frameGrabber, error) {
		opens++
		s.stop()
		return nil, errors.New("connection refused")
	}
	s.active.Store(true)
	s.run()

	require.Equal(t, 1, opens)
	assert.Zero(t, s.stats().FramesRead)
}
