package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/prodkit/assetq-go/internal/assetdb"
	"github.com/prodkit/assetq-go/internal/jsonx"
	"github.com/prodkit/assetq-go/internal/logging"
	"github.com/prodkit/assetq-go/internal/thumbs"
)

// Preview bounds for the evaluation prompt. The full result set is never
// shown to the model.
const (
	previewMaxRows  = 50
	previewMaxChars = 1000
)

// previewExcludedColumns are row fields that carry no evaluation signal.
var previewExcludedColumns = map[string]bool{
	"thumbnail_url":   true,
	"blend_thumbnail": true,
	"image_thumbnail": true,
	"video_thumbnail": true,
}

// evaluation is the structured output expected from the judging call.
type evaluation struct {
	Satisfactory bool   `json:"satisfactory"`
	Feedback     string `json:"feedback"`
	Summary      string `json:"summary"`
}

// verdict is the judge's decision for one attempt. When retry is false the
// run's FinalAnswer has been set.
type verdict struct {
	retry    bool
	feedback string
}

// judge executes the latest attempt's SQL and decides whether its rows
// answer the question. Execution errors are converted into rejection
// feedback, never raised: they consume the attempt like any unsatisfactory
// result. On acceptance or budget exhaustion the run's terminal answer is
// set here.
func (a *Agent) judge(ctx context.Context, r *run) verdict {
	log := logging.FromContext(ctx)
	attempt := &r.out.History[len(r.out.History)-1]

	res, err := a.db.ExecuteReadOnly(ctx, attempt.SQL)
	if err != nil {
		log.Warn("agent: SQL execution failed", "attempt", attempt.Attempt, "error", err)
		attempt.Results = []map[string]any{}
		attempt.Feedback = fmt.Sprintf("SQL execution error: %v", err)
		if len(r.out.History) < r.maxAttempts {
			return verdict{retry: true, feedback: attempt.Feedback}
		}
		r.out.FinalAnswer = noResultsAnswer
		r.out.QueryResults = []map[string]any{}
		return verdict{}
	}

	thumbs.Enrich(ctx, a.thumbs, res.Rows)
	attempt.Results = res.Rows
	attempt.ResultCount = len(res.Rows)
	log.Info("agent: SQL executed", "attempt", attempt.Attempt, "rows", attempt.ResultCount)

	raw, err := a.callModel(ctx, judgePrompt(r.decision.EnhancedQuery, attempt.SQL, resultsSummary(res)))
	if err != nil {
		log.Warn("agent: evaluation call failed, defaulting on row count", "error", err)
		a.acceptByDefault(r, attempt)
		return verdict{}
	}

	var eval evaluation
	if err := jsonx.Extract(raw, &eval); err != nil {
		log.Warn("agent: evaluation response unparseable, defaulting on row count", "error", err)
		a.acceptByDefault(r, attempt)
		return verdict{}
	}

	// A single-row aggregate is always a complete answer, whatever the
	// model said. Zero counts especially get rejected as "no results".
	if !eval.Satisfactory && isAggregateResult(res) {
		log.Info("agent: overriding verdict for single-row aggregate result")
		eval.Satisfactory = true
	}

	if eval.Satisfactory {
		attempt.Satisfactory = true
		summary := eval.Summary
		if summary == "" {
			summary = genericSummary(attempt.ResultCount)
		}
		// Reject summaries that leak agent-internal vocabulary.
		lower := strings.ToLower(summary)
		if strings.Contains(lower, "tool") || strings.Contains(lower, "function") {
			log.Warn("agent: evaluation summary mentions internals, using generic summary")
			summary = genericSummary(attempt.ResultCount)
		}
		r.out.FinalAnswer = summary
		r.out.QueryResults = attempt.Results
		return verdict{}
	}

	attempt.Feedback = eval.Feedback
	if attempt.Feedback == "" {
		attempt.Feedback = "Results did not match query intent"
	}

	if len(r.out.History) < r.maxAttempts {
		return verdict{retry: true, feedback: attempt.Feedback}
	}

	// Budget exhausted: hedge rather than fail.
	if attempt.ResultCount > 0 {
		r.out.FinalAnswer = hedgedAnswer(attempt.ResultCount)
		r.out.QueryResults = attempt.Results
	} else {
		r.out.FinalAnswer = noResultsAnswer
		r.out.QueryResults = []map[string]any{}
	}
	return verdict{}
}

// acceptByDefault applies the judgment-parse-failure policy: satisfactory
// when rows exist, "no results" otherwise.
func (a *Agent) acceptByDefault(r *run, attempt *SQLAttempt) {
	if attempt.ResultCount > 0 {
		attempt.Satisfactory = true
		r.out.FinalAnswer = genericSummary(attempt.ResultCount)
		r.out.QueryResults = attempt.Results
		return
	}
	r.out.FinalAnswer = "No results found for your query."
	r.out.QueryResults = []map[string]any{}
}

// aggregateColumnFragments identify columns produced by aggregate
// functions, by name.
var aggregateColumnFragments = []string{"count", "sum", "avg", "min", "max", "total"}

// isAggregateResult reports whether res is a single row with a single
// aggregate-named column — the shape of COUNT/SUM/AVG/MIN/MAX answers.
func isAggregateResult(res *assetdb.Result) bool {
	if len(res.Rows) != 1 || len(res.Columns) != 1 {
		return false
	}
	col := strings.ToLower(res.Columns[0])
	for _, frag := range aggregateColumnFragments {
		if strings.Contains(col, frag) {
			return true
		}
	}
	return false
}

// resultsSummary serialises rows as a capped CSV preview for the
// evaluation prompt.
func resultsSummary(res *assetdb.Result) string {
	if len(res.Rows) == 0 {
		return "No results found."
	}

	cols := make([]string, 0, len(res.Columns))
	for _, c := range res.Columns {
		if !previewExcludedColumns[c] {
			cols = append(cols, c)
		}
	}

	var csv strings.Builder
	csv.WriteString(strings.Join(cols, ","))
	csv.WriteString("\n")
	for i, row := range res.Rows {
		if i >= previewMaxRows {
			break
		}
		fields := make([]string, len(cols))
		for j, c := range cols {
			fields[j] = csvField(row[c])
		}
		csv.WriteString(strings.Join(fields, ","))
		csv.WriteString("\n")
	}

	preview := csv.String()
	truncated := false
	if len(preview) > previewMaxChars {
		preview = preview[:previewMaxChars]
		truncated = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d results.\n\nResults (CSV format):\n%s", len(res.Rows), preview)
	if truncated {
		b.WriteString("\n... (truncated)")
	}
	return b.String()
}

// csvField formats one value for the CSV preview, quoting values that
// contain delimiters.
func csvField(v any) string {
	if v == nil {
		return ""
	}
	s := fmt.Sprintf("%v", v)
	s = strings.ReplaceAll(s, `"`, `""`)
	if strings.ContainsAny(s, ",\n") {
		return `"` + s + `"`
	}
	return s
}
