// Package server implements the HTTP API that exposes the asset database
// agent: a chat endpoint streamed over SSE, liveness and readiness probes,
// and Prometheus metrics.
// The server is started by the `assetq serve` CLI command.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prodkit/assetq-go/internal/agent"
	"github.com/prodkit/assetq-go/internal/logging"
	"github.com/prodkit/assetq-go/internal/store"
)

// historyRecallMessages is how many persisted messages are loaded into the
// agent's context window per turn. The agent trims further by token budget.
const historyRecallMessages = 10

// New constructs a Server from the provided agent, history store, and config.
// history may be nil to disable conversation persistence.
func New(chat chatAgent, history store.ConversationStore, cfg *Config) (*Server, error) {
	if chat == nil {
		return nil, fmt.Errorf("server: agent must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full agent turn including SQL retries.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = 5 * time.Minute
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}

	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	registry := cfg.MetricsRegistry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	gatherer := cfg.MetricsGatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		agent:   chat,
		history: history,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(registry),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		log.Warn("server: no API key configured, authentication disabled")
	}

	// protect applies the full middleware chain for stateful endpoints.
	protect := func(name string, h http.Handler) http.Handler {
		return authMiddleware(cfg.APIKey, rl.middleware(s.instrument(name, h)))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", protect("chat", http.HandlerFunc(s.handleChat)))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		fmt.Printf("assetq server listening on http://%s\n", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		if s.stopRL != nil {
			s.stopRL()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleChat handles POST /api/chat. The agent's answer is delivered as a
// Server-Sent Events stream: "start" with the conversation ID, "answer" with
// the final answer text, "metadata" with the executed SQL and attempt count,
// "results" with the backing rows when any exist, then "done".
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	var image []byte
	if req.Image != "" {
		var err error
		image, err = base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			http.Error(w, "image must be base64-encoded", http.StatusBadRequest)
			return
		}
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = newRequestID()
	}

	history := s.loadHistory(r.Context(), conversationID)

	// Set SSE headers so the client receives a streaming response.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	sw := &sseWriter{w: w, flusher: flusher}

	s.metrics.chatActiveStreams.Inc()
	defer s.metrics.chatActiveStreams.Dec()
	start := time.Now()

	sw.writeEvent("start", conversationID)

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()

	out, err := s.agent.Run(ctx, agent.Request{
		Query:       req.Message,
		History:     history,
		Image:       image,
		MaxAttempts: req.MaxAttempts,
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		log.Error("chat: agent run failed", "error", err, "conversation_id", conversationID)
		sw.writeEvent("error", err.Error())
		return
	}

	sw.writeEvent("answer", out.FinalAnswer)

	meta := chatMetadata{
		ConversationID: conversationID,
		SQL:            out.SQL(),
		Attempts:       out.Attempts(),
		ResultCount:    len(out.QueryResults),
	}
	if b, err := json.Marshal(meta); err == nil {
		sw.writeEvent("metadata", string(b))
	}
	if len(out.QueryResults) > 0 {
		if b, err := json.Marshal(out.QueryResults); err == nil {
			sw.writeEvent("results", string(b))
		}
	}
	sw.writeEvent("done", "[DONE]")

	s.metrics.chatRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.chatDurationSeconds.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	s.metrics.chatAttempts.Observe(float64(out.Attempts()))

	s.saveTurn(r.Context(), conversationID, req.Message, out)
}

// loadHistory fetches the conversation's recent messages as agent turns.
// A missing store or a read failure yields an empty window, never an error:
// answering without context beats refusing to answer.
func (s *Server) loadHistory(ctx context.Context, conversationID string) []agent.Turn {
	if s.history == nil {
		return nil
	}
	msgs, err := s.history.Recent(ctx, conversationID, historyRecallMessages)
	if err != nil {
		logging.FromContext(ctx).Warn("chat: history load failed",
			"error", err, "conversation_id", conversationID)
		return nil
	}
	turns := make([]agent.Turn, len(msgs))
	for i, m := range msgs {
		turns[i] = agent.Turn{Role: string(m.Role), Content: m.Content, SQL: m.SQL}
	}
	return turns
}

// saveTurn persists both sides of the completed turn. Best-effort: a write
// failure is logged and the response already sent stands.
func (s *Server) saveTurn(ctx context.Context, conversationID, message string, out *agent.Outcome) {
	if s.history == nil {
		return
	}
	log := logging.FromContext(ctx)
	if err := s.history.Append(ctx, conversationID, store.RoleUser, message, ""); err != nil {
		log.Warn("chat: persisting user turn failed", "error", err)
		return
	}
	if err := s.history.Append(ctx, conversationID, store.RoleAssistant, out.FinalAnswer, out.SQL()); err != nil {
		log.Warn("chat: persisting assistant turn failed", "error", err)
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// sseWriter emits Server-Sent Event frames to an http.ResponseWriter.
type sseWriter struct {
	// w is the underlying response writer.
	w http.ResponseWriter

	// flusher flushes buffered data to the client after each event.
	flusher http.Flusher
}

// writeEvent emits one named SSE event and flushes. Each newline in data
// becomes its own "data:" line so multi-line payloads never break the SSE
// frame boundary.
func (s *sseWriter) writeEvent(event, data string) {
	var buf strings.Builder
	buf.WriteString("event: ")
	buf.WriteString(event)
	buf.WriteString("\n")
	for _, line := range strings.Split(strings.TrimRight(data, "\n"), "\n") {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
	fmt.Fprint(s.w, buf.String())
	s.flusher.Flush()
}
