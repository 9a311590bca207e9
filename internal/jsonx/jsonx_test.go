package jsonx

import (
	"errors"
	"testing"
)

type verdict struct {
	Satisfactory bool   `json:"satisfactory"`
	Summary      string `json:"summary"`
}

func Test_Extract_PlainObject(t *testing.T) {
	t.Parallel()

	var v verdict
	if err := Extract(`{"satisfactory": true, "summary": "found 3 files"}`, &v); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !v.Satisfactory || v.Summary != "found 3 files" {
		t.Errorf("unexpected result: %+v", v)
	}
}

func Test_Extract_SurroundingProse(t *testing.T) {
	t.Parallel()

	raw := "Sure! Here is the evaluation you asked for:\n\n" +
		`{"satisfactory": false, "summary": "no rows"}` +
		"\n\nLet me know if you need anything else."

	var v verdict
	if err := Extract(raw, &v); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if v.Satisfactory {
		t.Error("want satisfactory=false")
	}
}

func Test_Extract_MarkdownFence(t *testing.T) {
	t.Parallel()

	raw := "```json\n{\"satisfactory\": true, \"summary\": \"ok\"}\n```"
	var v verdict
	if err := Extract(raw, &v); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !v.Satisfactory {
		t.Error("want satisfactory=true")
	}
}

func Test_Extract_TrailingComma(t *testing.T) {
	t.Parallel()

	raw := `{"satisfactory": true, "summary": "ok",}`
	var v verdict
	if err := Extract(raw, &v); err != nil {
		t.Fatalf("extract with trailing comma: %v", err)
	}
	if !v.Satisfactory {
		t.Error("want satisfactory=true")
	}
}

func Test_Extract_NestedObject(t *testing.T) {
	t.Parallel()

	raw := `prefix {"intent": {"search_type": "similarity"}, "ok": true} suffix`
	var v struct {
		Intent struct {
			SearchType string `json:"search_type"`
		} `json:"intent"`
		OK bool `json:"ok"`
	}
	if err := Extract(raw, &v); err != nil {
		t.Fatalf("extract nested: %v", err)
	}
	if v.Intent.SearchType != "similarity" || !v.OK {
		t.Errorf("unexpected result: %+v", v)
	}
}

func Test_Extract_NoJSON(t *testing.T) {
	t.Parallel()

	tests := []string{
		"",
		"no braces here at all",
		"} only closes before it opens {",
	}
	for _, raw := range tests {
		var v verdict
		if err := Extract(raw, &v); !errors.Is(err, ErrNoJSON) {
			t.Errorf("Extract(%q): want ErrNoJSON, got %v", raw, err)
		}
	}
}

func Test_Extract_GarbageBetweenBraces(t *testing.T) {
	t.Parallel()

	var v verdict
	if err := Extract("{this is not json}", &v); err == nil {
		t.Error("want parse error for non-JSON brace region")
	}
}
