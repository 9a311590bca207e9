// Package agent implements the agentic text-to-SQL loop that answers
// natural-language questions about the asset database. A turn flows through
// an explicit state machine: route the question (database or conversational),
// resolve any embeddings the search needs, ask the model to synthesize SQL,
// execute it read-only, and ask the model to judge whether the rows answer
// the question — retrying with feedback until the attempt budget runs out.
// Every path ends with a populated final answer; stage failures are
// recovered locally and never escape Run.
package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/prodkit/assetq-go/internal/assetdb"
	"github.com/prodkit/assetq-go/internal/embedder"
	"github.com/prodkit/assetq-go/internal/logging"
	"github.com/prodkit/assetq-go/internal/semantic"
	"github.com/prodkit/assetq-go/internal/thumbs"
)

// DefaultMaxAttempts bounds synthesis/execution cycles per turn. This is
// the system's only backpressure against runaway retry loops.
const DefaultMaxAttempts = 2

// Generation parameters for every agent model call. Low temperature favours
// determinism; the structured outputs are small.
const (
	callTemperature = 0.3
	callMaxTokens   = 1024
)

// state enumerates the orchestrator's positions.
type state int

const (
	stateRouting state = iota
	stateEmbedding
	stateSynthesizing
	stateJudging
	stateDone
)

// QueryExecutor runs one read-only statement against the asset database.
type QueryExecutor interface {
	ExecuteReadOnly(ctx context.Context, sql string) (*assetdb.Result, error)
}

// EmbedderSource hands out the lazily-constructed embedding clients.
// *embedder.Lazy satisfies it.
type EmbedderSource interface {
	Text() (embedder.TextEmbedder, error)
	Visual() (embedder.VisualEmbedder, error)
}

// Config assembles an Agent's collaborators.
type Config struct {
	// Model is the chat model used for routing, synthesis, and judging.
	Model model.BaseChatModel
	// Embedders supplies the text and visual embedding clients.
	Embedders EmbedderSource
	// DB executes generated SQL.
	DB QueryExecutor
	// Semantic is the database description rendered into prompts.
	Semantic *semantic.File
	// Thumbs resolves thumbnail keys on result rows. Optional.
	Thumbs thumbs.Resolver
	// MaxAttempts is the default retry budget. Zero means DefaultMaxAttempts.
	MaxAttempts int
}

// Agent orchestrates one turn at a time. Safe for concurrent use: all
// per-turn state lives in the run, and the shared collaborators are
// read-only after construction.
type Agent struct {
	model       model.BaseChatModel
	embedders   EmbedderSource
	db          QueryExecutor
	sem         *semantic.File
	thumbs      thumbs.Resolver
	maxAttempts int
}

// New constructs an Agent. Model, DB, and Semantic are required.
func New(cfg Config) (*Agent, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("agent: chat model is required")
	}
	if cfg.DB == nil {
		return nil, fmt.Errorf("agent: query executor is required")
	}
	if cfg.Semantic == nil {
		return nil, fmt.Errorf("agent: semantic file is required")
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Agent{
		model:       cfg.Model,
		embedders:   cfg.Embedders,
		db:          cfg.DB,
		sem:         cfg.Semantic,
		thumbs:      cfg.Thumbs,
		maxAttempts: maxAttempts,
	}, nil
}

// run carries the mutable per-turn context between states.
type run struct {
	req         Request
	maxAttempts int

	decision RoutingDecision
	bundle   EmbeddingBundle
	feedback string

	out Outcome
}

// Run executes one user turn to its terminal state. The returned Outcome
// always has FinalAnswer set; an error is returned only when the turn
// cannot start at all (e.g. a cancelled context).
func (a *Agent) Run(ctx context.Context, req Request) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	log := logging.FromContext(ctx)

	r := &run{req: req, maxAttempts: req.MaxAttempts}
	if r.maxAttempts <= 0 {
		r.maxAttempts = a.maxAttempts
	}

	for s := stateRouting; s != stateDone; {
		switch s {
		case stateRouting:
			r.decision = a.route(ctx, req.Query, req.History, len(req.Image) > 0)
			if !r.decision.IsDatabaseQuery {
				// Conversational turn: answer directly, no SQL pipeline.
				r.out.FinalAnswer = r.decision.DirectAnswer
				r.out.QueryResults = []map[string]any{}
				s = stateDone
				break
			}
			r.out.EnhancedQuery = r.decision.EnhancedQuery
			s = stateEmbedding

		case stateEmbedding:
			r.bundle = a.resolve(ctx, r.decision.Intent, r.decision.EnhancedQuery, req.Image)
			s = stateSynthesizing

		case stateSynthesizing:
			sql, err := a.synthesize(ctx, r)
			attempt := SQLAttempt{Attempt: len(r.out.History) + 1, SQL: sql}
			r.out.History = append(r.out.History, attempt)
			if err != nil {
				log.Warn("agent: synthesis failed", "error", err, "attempt", attempt.Attempt)
				r.out.FinalAnswer = synthesisFailureAnswer
				r.out.QueryResults = []map[string]any{}
				s = stateDone
				break
			}
			s = stateJudging

		case stateJudging:
			verdict := a.judge(ctx, r)
			if verdict.retry && len(r.out.History) < r.maxAttempts {
				r.feedback = verdict.feedback
				s = stateSynthesizing
				break
			}
			s = stateDone
		}
	}

	log.Info("agent: turn complete",
		"attempts", r.out.Attempts(),
		"results", len(r.out.QueryResults),
	)
	return &r.out, nil
}

// callModel issues one non-streaming model call with the agent's fixed
// generation parameters and returns the raw response text.
func (a *Agent) callModel(ctx context.Context, prompt string) (string, error) {
	msg, err := a.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)},
		model.WithTemperature(callTemperature),
		model.WithMaxTokens(callMaxTokens),
	)
	if err != nil {
		return "", fmt.Errorf("agent: model call: %w", err)
	}
	return msg.Content, nil
}
