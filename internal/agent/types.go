package agent

// Turn is one prior message in a conversation, newest last. Assistant turns
// may carry the SQL they executed so follow-up questions can build on it.
type Turn struct {
	// Role is "user" or "assistant".
	Role string
	// Content is the message text.
	Content string
	// SQL is the statement an assistant turn executed, empty otherwise.
	SQL string
}

// Request is one user turn. Immutable once constructed.
type Request struct {
	// Query is the user's free-text question.
	Query string
	// History is the prior conversation, ordered oldest-first.
	History []Turn
	// Image is an optional uploaded image for similarity-by-example search.
	Image []byte
	// MaxAttempts overrides the synthesis/execution retry budget.
	// Zero uses the agent default.
	MaxAttempts int
}

// Intent describes what kind of database search the user wants.
type Intent struct {
	SearchType           string   `json:"search_type"`
	FileTypes            []string `json:"file_types"`
	NeedsTextEmbedding   bool     `json:"needs_text_embedding"`
	NeedsVisualEmbedding bool     `json:"needs_visual_embedding"`
	KeyCriteria          []string `json:"key_criteria"`
}

// RoutingDecision is the Intent Router's output. Exactly one branch is
// populated: database queries carry EnhancedQuery and Intent, everything
// else carries DirectAnswer.
type RoutingDecision struct {
	IsDatabaseQuery bool   `json:"is_database_query"`
	EnhancedQuery   string `json:"enhanced_query"`
	Intent          Intent `json:"intent"`
	DirectAnswer    string `json:"direct_answer"`
}

// EmbeddingBundle holds the vectors resolved for one turn. A nil slice
// means that embedding space is unavailable (not requested, or the
// embedding call failed).
type EmbeddingBundle struct {
	// Text is the semantic-space vector for the enhanced query.
	Text []float32
	// Visual is the cross-modal CLIP-space vector.
	Visual []float32
}

// SQLAttempt records one synthesis/execution cycle. Results and the
// judge's verdict are backfilled after execution; earlier fields are never
// mutated once a later attempt exists.
type SQLAttempt struct {
	// Attempt is the 1-based ordinal of this cycle.
	Attempt int `json:"attempt"`
	// SQL is the generated statement with embedding placeholders already
	// substituted. Empty when synthesis produced no usable output.
	SQL string `json:"sql"`
	// Results is the executed row set, nil before execution.
	Results []map[string]any `json:"results"`
	// ResultCount is len(Results) after execution.
	ResultCount int `json:"result_count"`
	// Feedback is the judge's rejection feedback or the execution error.
	Feedback string `json:"feedback,omitempty"`
	// Satisfactory is the judge's verdict for this attempt.
	Satisfactory bool `json:"satisfactory"`
}

// Outcome is the terminal result of one agent run. FinalAnswer is always
// populated, whatever path the run took.
type Outcome struct {
	// FinalAnswer is the natural-language answer for the user.
	FinalAnswer string
	// QueryResults is the row set from the attempt that produced the
	// answer, empty for direct answers and failed runs.
	QueryResults []map[string]any
	// History is every SQL attempt made this turn, in order.
	History []SQLAttempt
	// EnhancedQuery is the router's normalised form of the question,
	// empty for direct answers.
	EnhancedQuery string
}

// Attempts returns the number of synthesis/execution cycles consumed.
// Direct answers consume none.
func (o *Outcome) Attempts() int {
	return len(o.History)
}

// SQL returns the statement of the last attempt, or empty when no SQL was
// generated this turn.
func (o *Outcome) SQL() string {
	if len(o.History) == 0 {
		return ""
	}
	return o.History[len(o.History)-1].SQL
}
