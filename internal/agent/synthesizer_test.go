package agent

import (
	"context"
	"strings"
	"testing"
)

func Test_substitutePlaceholders(t *testing.T) {
	t.Parallel()

	bundle := EmbeddingBundle{
		Text:   []float32{0.1, 0.2},
		Visual: []float32{0.3, 0.4},
	}
	sql := "SELECT id FROM files ORDER BY metadata_embedding <=> '[EMBEDDING_VECTOR]'::vector, visual_embedding <=> '[VISUAL_EMBEDDING]'::vector LIMIT 5"

	got := substitutePlaceholders(sql, bundle)

	if remainingPlaceholder(got) != "" {
		t.Fatalf("placeholder left unsubstituted: %s", got)
	}
	if !strings.Contains(got, "'[0.1,0.2]'::vector") {
		t.Errorf("text vector literal missing: %s", got)
	}
	if !strings.Contains(got, "'[0.3,0.4]'::vector") {
		t.Errorf("visual vector literal missing: %s", got)
	}
}

func Test_substitutePlaceholders_MissingVectorLeftInPlace(t *testing.T) {
	t.Parallel()

	sql := "SELECT id FROM files ORDER BY metadata_embedding <=> '[EMBEDDING_VECTOR]'::vector"
	got := substitutePlaceholders(sql, EmbeddingBundle{})

	if got != sql {
		t.Errorf("sql changed without a vector: %s", got)
	}
	if remainingPlaceholder(got) != textPlaceholder {
		t.Errorf("remainingPlaceholder = %q, want %q", remainingPlaceholder(got), textPlaceholder)
	}
}

func Test_embeddingContext(t *testing.T) {
	t.Parallel()

	t.Run("none", func(t *testing.T) {
		t.Parallel()
		got := embeddingContext(EmbeddingBundle{})
		if !strings.Contains(got, "No embeddings are available") {
			t.Errorf("context = %q", got)
		}
	})

	t.Run("text only", func(t *testing.T) {
		t.Parallel()
		got := embeddingContext(EmbeddingBundle{Text: []float32{0.1}})
		if !strings.Contains(got, textPlaceholder) {
			t.Errorf("context missing text placeholder: %q", got)
		}
		if strings.Contains(got, visualPlaceholder) {
			t.Errorf("context advertises unavailable visual placeholder: %q", got)
		}
	})

	t.Run("both", func(t *testing.T) {
		t.Parallel()
		got := embeddingContext(EmbeddingBundle{Text: []float32{0.1}, Visual: []float32{0.2}})
		if !strings.Contains(got, textPlaceholder) || !strings.Contains(got, visualPlaceholder) {
			t.Errorf("context missing placeholders: %q", got)
		}
	})
}

func Test_vectorPreview_Capped(t *testing.T) {
	t.Parallel()

	vec := make([]float32, 384)
	for i := range vec {
		vec[i] = 0.123456
	}
	got := vectorPreview(vec)
	if len(got) > 60 {
		t.Errorf("preview length = %d, want <= 60", len(got))
	}
	if !strings.HasPrefix(got, "[") {
		t.Errorf("preview should start the vector literal: %q", got)
	}
}

// Synthesis must be deterministic given identical model output.
func Test_Synthesize_Deterministic(t *testing.T) {
	t.Parallel()

	newRun := func() (*Agent, *run) {
		m := &fakeModel{responses: []string{synthCountSQL, synthCountSQL}}
		a := newTestAgent(t, m, nil, nil)
		return a, &run{
			req:      Request{Query: "count blend files"},
			decision: RoutingDecision{IsDatabaseQuery: true, EnhancedQuery: "count blend files"},
		}
	}

	a, r := newRun()
	first, err := a.synthesize(context.Background(), r)
	if err != nil {
		t.Fatalf("first synthesis: %v", err)
	}
	second, err := a.synthesize(context.Background(), r)
	if err != nil {
		t.Fatalf("second synthesis: %v", err)
	}
	if first != second {
		t.Errorf("synthesis not deterministic:\n%s\n%s", first, second)
	}
}

func Test_Synthesize_RejectsNonSelect(t *testing.T) {
	t.Parallel()

	m := &fakeModel{responses: []string{`{"sql": "DELETE FROM files", "explanation": "oops"}`}}
	a := newTestAgent(t, m, nil, nil)
	r := &run{decision: RoutingDecision{EnhancedQuery: "remove everything"}}

	if _, err := a.synthesize(context.Background(), r); err == nil {
		t.Fatal("non-SELECT statement must be rejected")
	}
}

func Test_Synthesize_RejectsUnresolvedPlaceholder(t *testing.T) {
	t.Parallel()

	m := &fakeModel{responses: []string{
		`{"sql": "SELECT id FROM files ORDER BY metadata_embedding <=> '[EMBEDDING_VECTOR]'::vector", "explanation": "similarity"}`,
	}}
	a := newTestAgent(t, m, nil, nil)
	r := &run{decision: RoutingDecision{EnhancedQuery: "similar files"}}

	if _, err := a.synthesize(context.Background(), r); err == nil {
		t.Fatal("placeholder without a resolved embedding must be rejected")
	}
}

func Test_Synthesize_FeedbackReachesPrompt(t *testing.T) {
	t.Parallel()

	m := &fakeModel{responses: []string{synthCountSQL}}
	a := newTestAgent(t, m, nil, nil)
	r := &run{
		decision: RoutingDecision{EnhancedQuery: "count blend files"},
		feedback: "the show filter used LIKE instead of equality",
	}

	if _, err := a.synthesize(context.Background(), r); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if !strings.Contains(m.prompts[0], "the show filter used LIKE instead of equality") {
		t.Error("feedback missing from synthesis prompt")
	}
	if !strings.Contains(m.prompts[0], "Previous attempt failed") {
		t.Error("feedback framing missing from synthesis prompt")
	}
}
