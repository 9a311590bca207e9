package embedder

import (
	"context"
	"fmt"
	"sync"

	"github.com/prodkit/assetq-go/internal/logging"
)

// Lazy defers embedder construction until the first query that needs one.
// Most questions are plain metadata lookups, so startup never pays for an
// embedding backend that may not be used. Construction happens at most once
// per space; both accessors are safe for concurrent use.
type Lazy struct {
	textOnce sync.Once
	text     TextEmbedder
	textErr  error

	visualOnce sync.Once
	visual     VisualEmbedder
	visualErr  error
}

// NewLazy returns an empty Lazy. Clients are built from the environment on
// first use.
func NewLazy() *Lazy {
	return &Lazy{}
}

// Text returns the semantic-space embedder, constructing it on first call.
// The result (client or error) is cached for the process lifetime.
func (l *Lazy) Text() (TextEmbedder, error) {
	l.textOnce.Do(func() {
		l.text, l.textErr = NewTextFromEnv()
	})
	return l.text, l.textErr
}

// Visual returns the cross-modal embedder, constructing it on first call.
func (l *Lazy) Visual() (VisualEmbedder, error) {
	l.visualOnce.Do(func() {
		l.visual, l.visualErr = NewVisualFromEnv()
	})
	return l.visual, l.visualErr
}

// Warm eagerly constructs both embedders and runs a probe embedding through
// each so model weights are resident before the first user query. A missing
// CLIP endpoint is logged and skipped — visual similarity is optional.
func (l *Lazy) Warm(ctx context.Context) error {
	log := logging.FromContext(ctx)

	text, err := l.Text()
	if err != nil {
		return fmt.Errorf("embedder: warm text: %w", err)
	}
	if _, err := text.Embed(ctx, []string{"warmup"}); err != nil {
		return fmt.Errorf("embedder: warm text probe: %w", err)
	}
	log.Info("embedder: text embedder warm")

	visual, err := l.Visual()
	if err != nil {
		log.Info("embedder: skipping visual warm-up", "reason", err)
		return nil
	}
	if _, err := visual.EmbedText(ctx, "warmup"); err != nil {
		return fmt.Errorf("embedder: warm visual probe: %w", err)
	}
	log.Info("embedder: visual embedder warm")

	return nil
}

// Ping verifies the text embedding backend is reachable. Used by the
// readiness probe.
func (l *Lazy) Ping(ctx context.Context) error {
	text, err := l.Text()
	if err != nil {
		return err
	}
	if _, err := text.Embed(ctx, []string{"ping"}); err != nil {
		return fmt.Errorf("embedder: ping: %w", err)
	}
	return nil
}
