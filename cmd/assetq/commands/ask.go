package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prodkit/assetq-go/internal/agent"
	"github.com/prodkit/assetq-go/internal/logging"
)

// NewAskCmd constructs the `assetq ask` command, which runs a single natural
// language question through the agent and prints the answer.
func NewAskCmd() *cobra.Command {
	var imagePath string
	var attempts int
	var showSQL bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the asset database a question",
		Long: `Ask the agent a natural language question about the asset database.

The question is routed, translated into read-only SQL, executed, and
judged before the answer is printed. Pass --image to search by visual
similarity to a local image file.

Examples:
  assetq ask "how many blend files are in the charge show?"
  assetq ask "find forest environment scenes with high resolution"
  assetq ask --image ./ref.png "find images that look like this"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			var image []byte
			if imagePath != "" {
				var err error
				image, err = os.ReadFile(imagePath)
				if err != nil {
					return fmt.Errorf("ask: read image: %w", err)
				}
			}

			d, err := buildDeps(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer d.Close()

			out, err := d.agent.Run(ctx, agent.Request{
				Query:       strings.Join(args, " "),
				Image:       image,
				MaxAttempts: attempts,
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(out.FinalAnswer)

			if showSQL && out.SQL() != "" {
				fmt.Fprintf(os.Stderr, "\n[SQL: %s]\n[attempts: %d, rows: %d]\n",
					out.SQL(), out.Attempts(), len(out.QueryResults))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "Image file for visual similarity search")
	cmd.Flags().IntVar(&attempts, "attempts", 0, "SQL retry budget for this question (0 = default)")
	cmd.Flags().BoolVar(&showSQL, "sql", false, "Print the executed SQL and attempt count to stderr")

	return cmd
}
