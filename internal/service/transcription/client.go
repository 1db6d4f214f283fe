package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Result is the payload returned by the external speech-to-text service
type Result struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// SpeechClient converts raw audio bytes into text. The external service is
// a black box; any failure surfaces as an error to the orchestrator.
type SpeechClient interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (*Result, error)
}

// HTTPSpeechClient submits audio as a multipart upload to an HTTP
// speech-to-text endpoint and decodes the {text, language} response.
type HTTPSpeechClient struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPSpeechClient creates a speech client for the given endpoint.
// apiKey may be empty for unauthenticated deployments.
func NewHTTPSpeechClient(endpoint, apiKey string, timeout time.Duration) *HTTPSpeechClient {
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPSpeechClient{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// Transcribe uploads the audio and awaits the transcription result
func (c *HTTPSpeechClient) Transcribe(ctx context.Context, audio []byte, filename string) (*Result, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("no audio to transcribe")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("failed to write audio part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("transcription service returned %d: %s", resp.StatusCode, payload)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode transcription response: %w", err)
	}
	return &result, nil
}
