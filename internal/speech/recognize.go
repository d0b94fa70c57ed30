package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/vocalhq/interview-trainer/internal/util"
)

// RecognitionClient posts captured audio to the remote recognition service.
type RecognitionClient struct {
	url    string
	client *http.Client
}

// NewRecognitionClient returns a client posting to the given recognition
// endpoint.
func NewRecognitionClient(url string, client *http.Client) *RecognitionClient {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &RecognitionClient{url: url, client: client}
}

// recognitionResponse is the JSON reply from the recognition service.
type recognitionResponse struct {
	Transcript string  `json:"transcript"`
	LatencyMs  float64 `json:"latency_ms"`
	Error      string  `json:"error"`
}

// Transcribe uploads one finalized audio blob and returns the transcript
// plus the measured round-trip latency.
func (c *RecognitionClient) Transcribe(ctx context.Context, audio []byte, sessionID string) (string, time.Duration, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fw, err := w.CreateFormFile("file", "answer.wav")
	if err != nil {
		return "", 0, util.WrapError("build recognition upload", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return "", 0, util.WrapError("build recognition upload", err)
	}
	if sessionID != "" {
		if err := w.WriteField("sessionId", sessionID); err != nil {
			return "", 0, util.WrapError("build recognition upload", err)
		}
	}
	if err := w.Close(); err != nil {
		return "", 0, util.WrapError("build recognition upload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return "", 0, util.WrapError("build recognition request", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", 0, util.WrapError("request recognition", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", 0, fmt.Errorf("recognition %s: %s", resp.Status, util.TruncateErrorBody(string(raw)))
	}

	var out recognitionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, util.WrapError("decode recognition response", err)
	}
	if out.Error != "" {
		return "", 0, fmt.Errorf("recognition service: %s", out.Error)
	}
	return out.Transcript, time.Since(started), nil
}
