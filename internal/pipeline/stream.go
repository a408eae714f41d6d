package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MJPEGBoundary separates frames in the multipart stream.
const MJPEGBoundary = "frame"

// WriteMJPEG streams the camera's latest annotated frames to w as a
// multipart/x-mixed-replace body at the given cadence. The stream yields
// nothing until a first frame arrives and runs until the context ends
// (client disconnect) or the writer fails.
func (s *Sink) WriteMJPEG(ctx context.Context, cameraID int, w io.Writer, fps int) error {
	if fps < 1 {
		fps = 10
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	flusher, _ := w.(http.Flusher)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			frame, ok := s.LatestFrame(cameraID)
			if !ok {
				continue
			}
			if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", MJPEGBoundary, len(frame)); err != nil {
				return err
			}
			if _, err := w.Write(frame); err != nil {
				return err
			}
			if _, err := io.WriteString(w, "\r\n"); err != nil {
				return err
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}
