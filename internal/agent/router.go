package agent

import (
	"context"

	"github.com/prodkit/assetq-go/internal/jsonx"
	"github.com/prodkit/assetq-go/internal/logging"
)

// route classifies the question as database-related or conversational with
// one model call. Parse failures degrade to a conservative default — treat
// the turn as a similarity search over the raw query — never to an error.
func (a *Agent) route(ctx context.Context, query string, history []Turn, hasImage bool) RoutingDecision {
	log := logging.FromContext(ctx)

	prompt := a.routerPrompt(query, renderHistory(history, routerRecallDepth, false), hasImage)

	fallback := RoutingDecision{
		IsDatabaseQuery: true,
		EnhancedQuery:   query,
		Intent:          Intent{SearchType: "similarity", NeedsTextEmbedding: true},
	}

	raw, err := a.callModel(ctx, prompt)
	if err != nil {
		log.Warn("agent: router model call failed, assuming database query", "error", err)
		return fallback
	}

	var dec RoutingDecision
	if err := jsonx.Extract(raw, &dec); err != nil {
		log.Warn("agent: router response unparseable, assuming database query", "error", err)
		return fallback
	}

	if !dec.IsDatabaseQuery {
		if dec.DirectAnswer == "" {
			dec.DirectAnswer = fallbackDirectAnswer
		}
		log.Info("agent: non-database query, answering directly")
		return dec
	}

	if dec.EnhancedQuery == "" {
		dec.EnhancedQuery = query
	}
	log.Info("agent: database query",
		"enhanced_query", dec.EnhancedQuery,
		"search_type", dec.Intent.SearchType,
	)
	return dec
}
