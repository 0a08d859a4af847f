package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPEngine calls a TTS inference sidecar over HTTP. The sidecar owns the
// model; this client only relays requests and waits.
type HTTPEngine struct {
	url    string
	client *http.Client
}

// NewHTTPEngine creates an engine client for the given inference endpoint.
// The timeout bounds one full inference call; zero means no client timeout
// and the caller's context governs.
func NewHTTPEngine(url string, timeout time.Duration) *HTTPEngine {
	return &HTTPEngine{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type inferencePayload struct {
	Text        string         `json:"text"`
	VoicePrompt string         `json:"voice_prompt,omitempty"`
	OutputPath  string         `json:"output_path,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
}

type inferenceResult struct {
	Path  string `json:"path"`
	Error string `json:"error,omitempty"`
}

// Infer posts the request to the sidecar and returns the path of the
// generated audio file.
func (e *HTTPEngine) Infer(ctx context.Context, req InferenceRequest) (string, error) {
	body, err := json.Marshal(inferencePayload{
		Text:        req.Text,
		VoicePrompt: req.VoicePrompt,
		OutputPath:  req.OutputPath,
		Options:     req.Options,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode inference request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build inference request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("inference request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read inference response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("inference engine returned status %d: %s", resp.StatusCode, raw)
	}

	var result inferenceResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("failed to decode inference response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("inference engine error: %s", result.Error)
	}
	if result.Path == "" {
		return "", fmt.Errorf("inference engine returned no output path")
	}
	return result.Path, nil
}
