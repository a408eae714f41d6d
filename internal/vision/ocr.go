package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"plate-scanner/internal/domain/plate"
)

// Recognizer turns a cropped plate image into a text reading. The returned
// reading is raw: normalization, validation and the confidence floor are
// applied by the caller.
type Recognizer interface {
	Recognize(ctx context.Context, jpeg []byte) (plate.OCRReading, error)
}

// HTTPRecognizer calls an OCR sidecar service over HTTP. The sidecar accepts
// a JPEG body and answers {"text": ..., "confidence": ..., "method": ...}.
// Safe for concurrent use.
type HTTPRecognizer struct {
	endpoint string
	client   *http.Client
}

func NewHTTPRecognizer(endpoint string, timeout time.Duration) *HTTPRecognizer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPRecognizer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRecognizer) Recognize(ctx context.Context, jpeg []byte) (plate.OCRReading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(jpeg))
	if err != nil {
		return plate.OCRReading{}, fmt.Errorf("ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := r.client.Do(req)
	if err != nil {
		return plate.OCRReading{}, fmt.Errorf("ocr call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return plate.OCRReading{}, fmt.Errorf("ocr call: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
		Method     string  `json:"method"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return plate.OCRReading{}, fmt.Errorf("ocr decode: %w", err)
	}

	return plate.OCRReading{
		Text:       body.Text,
		Confidence: body.Confidence,
		Method:     body.Method,
		RawText:    body.Text,
	}, nil
}
