package semantic

import (
	"strings"
	"testing"
)

func Test_Load_ParsesEmbeddedFile(t *testing.T) {
	t.Parallel()

	f, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if f.DatabaseInfo.Name == "" {
		t.Error("database_info.name is empty")
	}
	if len(f.Tables) == 0 {
		t.Fatal("no tables parsed")
	}
	if f.Tables[0].Name != "files" {
		t.Errorf("first table = %q, want files", f.Tables[0].Name)
	}
	if len(f.VerifiedQueries) == 0 {
		t.Error("no verified queries parsed")
	}
}

func Test_Load_Cached(t *testing.T) {
	t.Parallel()

	a, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b, _ := Load()
	if a != b {
		t.Error("Load returned different pointers on repeated calls")
	}
}

func Test_SchemaText_ListsEmbeddingColumns(t *testing.T) {
	t.Parallel()

	f, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	schema := f.SchemaText()
	for _, want := range []string{
		"Table files:",
		"metadata_embedding (vector(384))",
		"visual_embedding (vector(512))",
		"file_type",
		"blend_thumbnail",
	} {
		if !strings.Contains(schema, want) {
			t.Errorf("SchemaText missing %q", want)
		}
	}
}

func Test_VerifiedQueriesText_PairsQuestionWithSQL(t *testing.T) {
	t.Parallel()

	f, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	text := f.VerifiedQueriesText()
	if !strings.Contains(text, "Q: ") || !strings.Contains(text, "SQL: SELECT") {
		t.Errorf("unexpected rendering:\n%s", text)
	}
	if !strings.Contains(text, "[EMBEDDING_VECTOR]") {
		t.Error("similarity example should carry the embedding placeholder")
	}
}

func Test_InstructionsText_BulletList(t *testing.T) {
	t.Parallel()

	f, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	text := f.InstructionsText()
	if !strings.HasPrefix(text, "- ") {
		t.Errorf("instructions should render as bullets, got:\n%s", text)
	}
}
