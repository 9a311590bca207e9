package server

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/prodkit/assetq-go/internal/assetdb"
	"github.com/prodkit/assetq-go/internal/embedder"
)

// LLMPinger probes the chat model backend by sending a minimal single-token
// generate request. It satisfies the Pinger interface and is used by
// GET /api/ready. The probe consumes tokens, so readiness checks should not
// be polled aggressively.
type LLMPinger struct {
	// model is the chat model to probe.
	model model.BaseChatModel
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewLLMPinger constructs an LLMPinger for the given model and backend name.
func NewLLMPinger(m model.BaseChatModel, name string) *LLMPinger {
	return &LLMPinger{model: m, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping sends a one-token generate request to the backend.
func (p *LLMPinger) Ping(ctx context.Context) error {
	resp, err := p.model.Generate(ctx,
		[]*schema.Message{schema.UserMessage("ping")},
		model.WithMaxTokens(1),
	)
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}

// DatabasePinger probes the asset database connection.
// It satisfies the Pinger interface and is used by GET /api/ready.
type DatabasePinger struct {
	// db is the asset database store to probe.
	db *assetdb.Store
}

// NewDatabasePinger constructs a DatabasePinger for the given store.
func NewDatabasePinger(db *assetdb.Store) *DatabasePinger {
	return &DatabasePinger{db: db}
}

// Name returns the dependency label used in readiness responses.
func (p *DatabasePinger) Name() string { return "postgres" }

// Ping checks database reachability.
func (p *DatabasePinger) Ping(ctx context.Context) error {
	if err := p.db.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// EmbedderPinger probes the text embedding backend via a tiny embed request.
// It satisfies the Pinger interface and is used by GET /api/ready.
type EmbedderPinger struct {
	// lazy hands out the embedding clients.
	lazy *embedder.Lazy
}

// NewEmbedderPinger constructs an EmbedderPinger over the given source.
func NewEmbedderPinger(lazy *embedder.Lazy) *EmbedderPinger {
	return &EmbedderPinger{lazy: lazy}
}

// Name returns the dependency label used in readiness responses.
func (p *EmbedderPinger) Name() string { return "embedder" }

// Ping embeds a short probe string against the text backend.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	if err := p.lazy.Ping(ctx); err != nil {
		return fmt.Errorf("embed probe failed: %w", err)
	}
	return nil
}
