package embedder

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// CLIPEmbedder implements VisualEmbedder against an HTTP CLIP inference
// service. The service exposes a single /embed endpoint accepting either a
// text description or a base64-encoded image and returns one vector in the
// shared cross-modal space. Safe for concurrent use.
type CLIPEmbedder struct {
	// endpoint is the service base URL (e.g. "http://clip:8001").
	endpoint string
	client   *http.Client
}

// CLIPConfig holds the settings for constructing a CLIPEmbedder.
type CLIPConfig struct {
	// Endpoint is the CLIP service base URL.
	Endpoint string
}

// NewCLIPEmbedder constructs a CLIPEmbedder from the given config.
func NewCLIPEmbedder(cfg *CLIPConfig) *CLIPEmbedder {
	return &CLIPEmbedder{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

// clipEmbedRequest is the JSON body sent to the CLIP /embed endpoint.
// Exactly one of Text or Image is set.
type clipEmbedRequest struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

// clipEmbedResponse is the JSON body returned from the CLIP /embed endpoint.
type clipEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

// EmbedText embeds a natural-language description into the CLIP space.
func (e *CLIPEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return e.embed(ctx, clipEmbedRequest{Text: text})
}

// EmbedImage embeds raw image bytes into the CLIP space.
func (e *CLIPEmbedder) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	return e.embed(ctx, clipEmbedRequest{
		Image: base64.StdEncoding.EncodeToString(image),
	})
}

func (e *CLIPEmbedder) embed(ctx context.Context, body clipEmbedRequest) ([]float32, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("clip embedder: marshal request: %w", err)
	}

	url := e.endpoint + "/embed"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("clip embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clip embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	var result clipEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("clip embedder: decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if result.Error != "" {
			msg = result.Error
		}
		return nil, fmt.Errorf("clip embedder: %s", msg)
	}

	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("clip embedder: empty embedding in response")
	}

	return result.Embedding, nil
}
