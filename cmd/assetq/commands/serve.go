package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/prodkit/assetq-go/internal/logging"
	"github.com/prodkit/assetq-go/internal/server"
	"github.com/prodkit/assetq-go/internal/store"
	"github.com/prodkit/assetq-go/internal/tracing"
)

// NewServeCmd constructs the `assetq serve` command, which starts the HTTP
// server exposing the agent over a REST/SSE API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the assetq HTTP server",
		Long: `Start the assetq HTTP server on localhost.

The server exposes POST /api/chat (SSE), liveness and readiness probes,
and Prometheus metrics. Conversations are threaded by conversation_id and
persisted locally so follow-up questions can reference earlier answers.

Examples:
  assetq serve
  assetq serve --port 9090
  MODEL_PROVIDER=azure assetq serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			d, err := buildDeps(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer d.Close()

			// Open conversation history store. ASSETQ_HISTORY_DB overrides the
			// default path (~/.assetq/history.db). Set to "disabled" to disable.
			var historyStore store.ConversationStore
			dbPath := os.Getenv("ASSETQ_HISTORY_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = store.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					hs, hsErr := store.Open(dbPath)
					if hsErr != nil {
						log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
					} else {
						historyStore = hs
						defer func() { _ = hs.Close() }()
						log.Info("history: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via ASSETQ_HISTORY_DB=disabled")
			}

			pingers := []server.Pinger{
				server.NewLLMPinger(d.model, envOr("MODEL_PROVIDER", "ollama")),
				server.NewDatabasePinger(d.db),
				server.NewEmbedderPinger(d.embedders),
			}

			srv, err := server.New(d.agent, historyStore, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("ASSETQ_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", envOr("ASSETQ_HOST", "127.0.0.1"), "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", envInt("ASSETQ_PORT", 8080), "TCP port to listen on")

	return cmd
}
