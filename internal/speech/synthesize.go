package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vocalhq/interview-trainer/internal/types"
	"github.com/vocalhq/interview-trainer/internal/util"
)

// maxSynthesisBytes bounds one synthesized audio response.
const maxSynthesisBytes = 16 << 20

// SynthesisClient requests synthesized speech from the remote service.
type SynthesisClient struct {
	url    string
	client *http.Client
}

// NewSynthesisClient returns a client posting to the given synthesis endpoint.
func NewSynthesisClient(url string, client *http.Client) *SynthesisClient {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &SynthesisClient{url: url, client: client}
}

// synthesisRequest is the JSON body for one synthesis call.
type synthesisRequest struct {
	Text  string      `json:"text"`
	Style types.Style `json:"style,omitempty"`
}

// Synthesize requests audio for text and returns the bytes plus their
// content type. A non-audio response is an error carrying the service's
// error body.
func (c *SynthesisClient) Synthesize(ctx context.Context, text string, style types.Style) ([]byte, string, error) {
	body, err := json.Marshal(synthesisRequest{Text: text, Style: style})
	if err != nil {
		return nil, "", util.WrapError("encode synthesis request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, "", util.WrapError("build synthesis request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", util.WrapError("request synthesis", err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxSynthesisBytes))
	if err != nil {
		return nil, "", util.WrapError("read synthesis response", err)
	}

	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(contentType, "audio/") {
		return nil, "", fmt.Errorf("synthesis %s: %s", resp.Status, util.TruncateErrorBody(string(payload)))
	}
	return payload, contentType, nil
}
