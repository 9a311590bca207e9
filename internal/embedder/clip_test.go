package embedder

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newCLIPTestServer(t *testing.T, handler func(req clipEmbedRequest) clipEmbedResponse) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req clipEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		resp := handler(req)
		if resp.Error != "" {
			w.WriteHeader(http.StatusInternalServerError)
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func Test_CLIPEmbedder_EmbedText(t *testing.T) {
	t.Parallel()

	srv := newCLIPTestServer(t, func(req clipEmbedRequest) clipEmbedResponse {
		if req.Text != "red sports car" || req.Image != "" {
			t.Errorf("unexpected request: %+v", req)
		}
		return clipEmbedResponse{Embedding: []float32{0.1, 0.2, 0.3}}
	})

	e := NewCLIPEmbedder(&CLIPConfig{Endpoint: srv.URL})
	vec, err := e.EmbedText(context.Background(), "red sports car")
	if err != nil {
		t.Fatalf("EmbedText: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("unexpected vector: %v", vec)
	}
}

func Test_CLIPEmbedder_EmbedImage_Base64(t *testing.T) {
	t.Parallel()

	image := []byte{0x89, 0x50, 0x4e, 0x47}

	srv := newCLIPTestServer(t, func(req clipEmbedRequest) clipEmbedResponse {
		want := base64.StdEncoding.EncodeToString(image)
		if req.Image != want || req.Text != "" {
			t.Errorf("image payload = %q, want %q", req.Image, want)
		}
		return clipEmbedResponse{Embedding: []float32{1}}
	})

	e := NewCLIPEmbedder(&CLIPConfig{Endpoint: srv.URL})
	if _, err := e.EmbedImage(context.Background(), image); err != nil {
		t.Fatalf("EmbedImage: %v", err)
	}
}

func Test_CLIPEmbedder_ServiceError(t *testing.T) {
	t.Parallel()

	srv := newCLIPTestServer(t, func(clipEmbedRequest) clipEmbedResponse {
		return clipEmbedResponse{Error: "model not loaded"}
	})

	e := NewCLIPEmbedder(&CLIPConfig{Endpoint: srv.URL})
	if _, err := e.EmbedText(context.Background(), "anything"); err == nil {
		t.Fatal("want error when service reports failure")
	}
}

func Test_CLIPEmbedder_EmptyEmbedding(t *testing.T) {
	t.Parallel()

	srv := newCLIPTestServer(t, func(clipEmbedRequest) clipEmbedResponse {
		return clipEmbedResponse{}
	})

	e := NewCLIPEmbedder(&CLIPConfig{Endpoint: srv.URL})
	if _, err := e.EmbedText(context.Background(), "anything"); err == nil {
		t.Fatal("want error for empty embedding")
	}
}
