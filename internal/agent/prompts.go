package agent

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/prodkit/assetq-go/internal/budget"
)

// History windows per prompt. Routing gets a wider view for disambiguation;
// SQL generation only needs the turns a follow-up could reference.
const (
	routerRecallDepth      = 5
	synthesizerRecallDepth = 3
)

// Embedding placeholder tokens the synthesizer is told to emit. They are
// substituted with literal vectors before execution.
const (
	textPlaceholder   = "[EMBEDDING_VECTOR]"
	visualPlaceholder = "[VISUAL_EMBEDDING]"
)

// Terminal answers for paths that never reach a satisfactory verdict.
const (
	synthesisFailureAnswer = "I was unable to generate a valid SQL query for your request. Please try reformatting your question."
	noResultsAnswer        = "I couldn't find results matching your query. The database might not contain this information, or try rephrasing your question."
	fallbackDirectAnswer   = "I'm designed to help with CG production asset database queries. Your question doesn't seem related to the database. Could you ask about files, metadata, shows, or production data?"
)

// hedgedAnswer is the budget-exhausted terminal answer when rows exist but
// the judge never accepted them.
func hedgedAnswer(resultCount int) string {
	return fmt.Sprintf("I found %d results, but they may not fully answer your question. Please try rephrasing or being more specific.", resultCount)
}

// genericSummary replaces judge summaries that leak internal vocabulary.
func genericSummary(resultCount int) string {
	return fmt.Sprintf("Found %d results.", resultCount)
}

// renderHistory formats the most recent depth turns as "role: content"
// lines. When includeSQL is set, assistant turns that executed SQL get an
// indented recall line so the model can build follow-up queries on it.
// The window is additionally trimmed oldest-first to the prompt token
// budget before rendering.
func renderHistory(turns []Turn, depth int, includeSQL bool) string {
	if len(turns) > depth {
		turns = turns[len(turns)-depth:]
	}
	turns = trimToBudget(turns)

	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
		if includeSQL && t.Role == "assistant" && t.SQL != "" {
			fmt.Fprintf(&b, "  [SQL used: %s]\n", t.SQL)
		}
	}
	return b.String()
}

// trimToBudget drops the oldest turns until the window fits the context
// budget. The schema and instructions dominate the prompt, so history gets
// a fixed slice of the overall budget.
func trimToBudget(turns []Turn) []Turn {
	const historyTokens = budget.DefaultMaxContextTokens / 4

	msgs := make([]*schema.Message, len(turns))
	for i, t := range turns {
		m := &schema.Message{Role: schema.RoleType(t.Role), Content: t.Content}
		if t.SQL != "" {
			m.Content += "\n[SQL used: " + t.SQL + "]"
		}
		msgs[i] = m
	}

	kept := budget.TrimHistory(nil, msgs, historyTokens)
	return turns[len(turns)-len(kept):]
}

// routerPrompt builds the single routing/enhancement prompt.
func (a *Agent) routerPrompt(query, history string, hasImage bool) string {
	imageNote := ""
	if hasImage {
		imageNote = "User uploaded an image for similarity search.\n"
	}
	return fmt.Sprintf(`You are analyzing a user's query and routing it to the appropriate node in the workflow.
The user may ask questions about the %s database that require an SQL query to be generated,
or they may ask general questions that can simply be answered by you directly.

User's query: %s

Here is information on the database:
%s

Database schema:
%s

The chat history is as follows:
%s

%s
INSTRUCTIONS:
First, determine if the user's query relates to the database (asking about files, metadata, shows, assets, etc.)
or if it's a general question (asking about concepts, seeking advice, casual conversation, etc.).

If the user's query RELATES TO THE DATABASE:
1. Set "is_database_query" to true
2. Enhance their question by:
   - Understanding what they're asking for
   - Identifying key search criteria (file types, shows, attributes, etc.)
   - Determining if they need similarity search (semantic or visual)
   - Clarifying any ambiguous terms
3. Fill in the "enhanced_query" and "intent" fields

If the user's query DOES NOT RELATE TO THE DATABASE:
1. Set "is_database_query" to false
2. Provide a helpful, direct answer to their question in the "direct_answer" field
3. You can leave "enhanced_query" and "intent" empty or with placeholder values

Respond in strict JSON format:
{
  "is_database_query": true|false,
  "enhanced_query": "Clarified version of the query (if database-related)",
  "intent": {
    "search_type": "similarity|filter|count|details",
    "file_types": ["image", "video", "blend"],
    "needs_text_embedding": true|false,
    "needs_visual_embedding": true|false,
    "key_criteria": ["list", "of", "criteria"]
  },
  "direct_answer": "Your answer to the user's general question (if not database-related)"
}`,
		a.sem.DatabaseInfo.Name, query, a.sem.DatabaseOverview(), a.sem.SchemaText(), history, imageNote)
}

// synthesizerPrompt builds the SQL generation prompt. feedback carries the
// previous attempt's rejection and is empty on the first attempt.
func (a *Agent) synthesizerPrompt(r *run, history, intentJSON, embeddingContext string) string {
	feedbackContext := ""
	if r.feedback != "" {
		feedbackContext = fmt.Sprintf("\nPrevious attempt failed. Feedback:\n%s\n\nGenerate an improved query.\n", r.feedback)
	}
	return fmt.Sprintf(`You are a PostgreSQL query generator for a database of assets from a CG production studio.
Generate an SQL query to answer the user's question.

Recent conversation (for context on follow-up questions):
%s

Current User Query: %s

Intent: %s
%s
Database schema:
%s

Custom instructions:
%s

Verified example queries:
%s

Embedding context:
%s

IMPORTANT RULES:
1. Only use columns that exist in the table you're querying.
2. Filter shows with equality on the show column, e.g. WHERE show = 'charge' (not LIKE).
   'other' is used for files not belonging to a specific show.
3. Use the <=> operator for vector similarity,
   e.g. ORDER BY metadata_embedding <=> '%s'::vector
4. Only generate SELECT queries (no INSERT, UPDATE, DELETE).
5. Refer to the verified example queries for patterns.

Respond in strict JSON format like this:
{
  "sql": "SELECT ...",
  "explanation": "Brief explanation of what the query does"
}`,
		history, r.decision.EnhancedQuery, intentJSON, feedbackContext,
		a.sem.SchemaText(), a.sem.InstructionsText(), a.sem.VerifiedQueriesText(),
		embeddingContext, textPlaceholder)
}

// judgePrompt builds the result evaluation prompt. The zero-aggregate
// carve-out is stated explicitly because models otherwise reject empty
// counts as failed searches.
func judgePrompt(enhancedQuery, sql, resultsSummary string) string {
	return fmt.Sprintf(`Evaluate if the SQL query results answer the user's question.

IMPORTANT:
- For COUNT, SUM, AVG, MIN, MAX queries, a single row result IS the complete answer
- The row contains the aggregate value that directly answers the question
- An answer of 0 (zero) is a VALID and COMPLETE answer - it means "there are none"
- Do NOT mark 0 (zero) results as unsatisfactory for counting queries

User's query: %s

Executed SQL Query:
%s

Results:
%s

Does this answer the user's question? Respond in JSON:
{
  "satisfactory": true|false,
  "feedback": "If not satisfactory, explain what's wrong and how to improve the query",
  "summary": "User-friendly summary of the findings (e.g., 'There are 0 blend files in the charge show.')"
}`, enhancedQuery, sql, resultsSummary)
}
