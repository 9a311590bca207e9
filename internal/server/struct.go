package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/prodkit/assetq-go/internal/agent"
	"github.com/prodkit/assetq-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// Must be long enough for a full agent turn including retries.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds one full agent turn, routing through judging.
	ChatTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server's metric registrations.
	// If nil, prometheus.DefaultRegisterer is used. Tests inject a fresh
	// registry here to stay hermetic.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs the GET /metrics endpoint.
	// If nil, prometheus.DefaultGatherer is used.
	MetricsGatherer prometheus.Gatherer
}

// chatAgent is the interface handleChat calls to answer one turn.
// *agent.Agent satisfies it; tests inject a fake.
type chatAgent interface {
	Run(ctx context.Context, req agent.Request) (*agent.Outcome, error)
}

// Server is the HTTP server that exposes the asset database agent.
type Server struct {
	// agent answers chat turns.
	agent chatAgent
	// history persists conversation turns across requests. May be nil,
	// in which case every turn starts with an empty context window.
	history store.ConversationStore
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds this instance's Prometheus collectors.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// Message is the user's natural language query.
	Message string `json:"message"`
	// ConversationID threads this turn into an existing conversation.
	// If empty, a fresh conversation is started and its ID returned in
	// the SSE start event.
	ConversationID string `json:"conversation_id"`
	// Image is an optional base64-encoded image for visual similarity
	// search (search by example).
	Image string `json:"image,omitempty"`
	// MaxAttempts overrides the agent's SQL retry budget for this turn.
	// Zero uses the agent default.
	MaxAttempts int `json:"max_attempts,omitempty"`
}

// chatMetadata is the JSON payload of the SSE "metadata" event, sent after
// the answer so clients can display the executed SQL and attempt count.
type chatMetadata struct {
	// ConversationID identifies the conversation this turn belongs to.
	ConversationID string `json:"conversation_id"`
	// SQL is the last statement executed, empty for direct answers.
	SQL string `json:"sql,omitempty"`
	// Attempts is the number of SQL generation attempts this turn used.
	Attempts int `json:"attempts"`
	// ResultCount is the number of rows backing the final answer.
	ResultCount int `json:"result_count"`
}
