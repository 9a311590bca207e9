package commands

import (
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/spf13/cobra"

	"github.com/prodkit/assetq-go/internal/logging"
)

// NewWarmCmd constructs the `assetq warm` command, which exercises every
// backend once so the first real query does not pay cold-start costs.
func NewWarmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "warm",
		Short: "Warm up the model, embedding, and database backends",
		Long: `Send a probe request to each configured backend: the chat model, the
text embedder, the CLIP service (if configured), and the asset database.

Run this after deployment or before a demo so the first real question
does not pay model load or connection setup latency.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			d, err := buildDeps(ctx, log)
			if err != nil {
				return fmt.Errorf("warm: %w", err)
			}
			defer d.Close()

			failed := false

			if err := d.db.Ping(ctx); err != nil {
				fmt.Printf("database:  FAIL (%v)\n", err)
				failed = true
			} else {
				fmt.Println("database:  ok")
			}

			if err := d.embedders.Warm(ctx); err != nil {
				fmt.Printf("embedders: FAIL (%v)\n", err)
				failed = true
			} else {
				fmt.Println("embedders: ok")
			}

			if _, err := d.model.Generate(ctx,
				[]*schema.Message{schema.UserMessage("ping")},
				model.WithMaxTokens(1),
			); err != nil {
				fmt.Printf("model:     FAIL (%v)\n", err)
				failed = true
			} else {
				fmt.Println("model:     ok")
			}

			if failed {
				return fmt.Errorf("warm: one or more backends failed")
			}
			return nil
		},
	}
}
