package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/prodkit/assetq-go/internal/jsonx"
	"github.com/prodkit/assetq-go/internal/logging"
)

// sqlResponse is the structured output expected from the synthesis call.
type sqlResponse struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation"`
}

// synthesize asks the model for one candidate SQL statement and substitutes
// embedding placeholders with literal vectors. A non-nil error is a
// synthesis failure: unparseable output, a non-SELECT statement, or a
// placeholder with no resolved embedding. Failed synthesis is terminal —
// retrying without new feedback would reproduce the same output.
func (a *Agent) synthesize(ctx context.Context, r *run) (string, error) {
	log := logging.FromContext(ctx)

	intentJSON, err := json.Marshal(r.decision.Intent)
	if err != nil {
		return "", fmt.Errorf("agent: marshal intent: %w", err)
	}

	prompt := a.synthesizerPrompt(r,
		renderHistory(r.req.History, synthesizerRecallDepth, true),
		string(intentJSON),
		embeddingContext(r.bundle),
	)

	raw, err := a.callModel(ctx, prompt)
	if err != nil {
		return "", err
	}

	var resp sqlResponse
	if err := jsonx.Extract(raw, &resp); err != nil {
		return "", fmt.Errorf("agent: synthesis output unparseable: %w", err)
	}
	if strings.TrimSpace(resp.SQL) == "" {
		return "", fmt.Errorf("agent: synthesis returned no SQL")
	}

	sql := substitutePlaceholders(resp.SQL, r.bundle)
	if leftover := remainingPlaceholder(sql); leftover != "" {
		return sql, fmt.Errorf("agent: placeholder %s has no resolved embedding", leftover)
	}

	upper := strings.ToUpper(strings.TrimSpace(sql))
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return sql, fmt.Errorf("agent: synthesized statement is not a SELECT")
	}

	log.Info("agent: synthesized SQL",
		"attempt", len(r.out.History)+1,
		"explanation", resp.Explanation,
	)
	return sql, nil
}

// embeddingContext describes the available vectors as placeholder tokens.
// The literal vectors are huge, so only a short prefix is shown to the model.
func embeddingContext(bundle EmbeddingBundle) string {
	var b strings.Builder
	if bundle.Text != nil {
		b.WriteString(fmt.Sprintf("Text embedding available: if needed, use '%s'::vector in your query, which will be replaced with: %s...\n",
			textPlaceholder, vectorPreview(bundle.Text)))
	}
	if bundle.Visual != nil {
		b.WriteString(fmt.Sprintf("Visual embedding available: if needed, use '%s'::vector in your query, which will be replaced with: %s...\n",
			visualPlaceholder, vectorPreview(bundle.Visual)))
	}
	if b.Len() == 0 {
		return "No embeddings are available; do not use vector similarity in the query.\n"
	}
	return b.String()
}

// vectorPreview returns the first few characters of the vector literal.
func vectorPreview(vec []float32) string {
	s := pgvector.NewVector(vec).String()
	if len(s) > 60 {
		s = s[:60]
	}
	return s
}

// substitutePlaceholders replaces each placeholder token with the pgvector
// literal of its resolved embedding. Tokens without a resolved embedding
// are left in place for the caller to reject.
func substitutePlaceholders(sql string, bundle EmbeddingBundle) string {
	if bundle.Text != nil {
		sql = strings.ReplaceAll(sql, textPlaceholder, pgvector.NewVector(bundle.Text).String())
	}
	if bundle.Visual != nil {
		sql = strings.ReplaceAll(sql, visualPlaceholder, pgvector.NewVector(bundle.Visual).String())
	}
	return sql
}

// remainingPlaceholder returns the first unsubstituted placeholder token
// in sql, or empty when all were resolved.
func remainingPlaceholder(sql string) string {
	for _, p := range []string{textPlaceholder, visualPlaceholder} {
		if strings.Contains(sql, p) {
			return p
		}
	}
	return ""
}
