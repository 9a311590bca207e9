// Package semantic carries the semantic description of the asset database:
// what the database contains, the schema of its tables, house rules for
// writing SQL against it, and a set of verified example queries. The file
// is embedded at build time and rendered into the routing and SQL
// generation prompts.
package semantic

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed semantic.yaml
var raw []byte

// File is the parsed semantic description.
type File struct {
	DatabaseInfo       DatabaseInfo    `yaml:"database_info"`
	Tables             []Table         `yaml:"tables"`
	CustomInstructions []string        `yaml:"custom_instructions"`
	VerifiedQueries    []VerifiedQuery `yaml:"verified_queries"`
}

// DatabaseInfo describes the database as a whole.
type DatabaseInfo struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Notes       []string `yaml:"notes"`
}

// Table describes one table and its columns.
type Table struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Columns     []Column `yaml:"columns"`
}

// Column describes one column of a table.
type Column struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
}

// VerifiedQuery pairs a natural-language question with a known-good SQL
// statement answering it.
type VerifiedQuery struct {
	Question string `yaml:"question"`
	SQL      string `yaml:"sql"`
}

var (
	loadOnce sync.Once
	loaded   *File
	loadErr  error
)

// Load parses the embedded semantic file. The result is cached; repeated
// calls return the same *File.
func Load() (*File, error) {
	loadOnce.Do(func() {
		var f File
		if err := yaml.Unmarshal(raw, &f); err != nil {
			loadErr = fmt.Errorf("semantic: parse embedded file: %w", err)
			return
		}
		if len(f.Tables) == 0 {
			loadErr = fmt.Errorf("semantic: embedded file declares no tables")
			return
		}
		loaded = &f
	})
	return loaded, loadErr
}

// DatabaseOverview renders the database_info section as prompt text.
func (f *File) DatabaseOverview() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Database: %s\n", f.DatabaseInfo.Name)
	b.WriteString(strings.TrimSpace(f.DatabaseInfo.Description))
	for _, n := range f.DatabaseInfo.Notes {
		b.WriteString("\n- ")
		b.WriteString(strings.TrimSpace(n))
	}
	return b.String()
}

// SchemaText renders every table as a column listing suitable for a prompt.
func (f *File) SchemaText() string {
	var b strings.Builder
	for i, t := range f.Tables {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Table %s: %s\n", t.Name, t.Description)
		for _, c := range t.Columns {
			fmt.Fprintf(&b, "  %s (%s): %s\n", c.Name, c.Type, c.Description)
		}
	}
	return b.String()
}

// InstructionsText renders the custom instructions as a bullet list.
func (f *File) InstructionsText() string {
	var b strings.Builder
	for i, ins := range f.CustomInstructions {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- ")
		b.WriteString(strings.TrimSpace(ins))
	}
	return b.String()
}

// VerifiedQueriesText renders the verified example queries as
// question/SQL pairs.
func (f *File) VerifiedQueriesText() string {
	var b strings.Builder
	for i, q := range f.VerifiedQueries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Q: %s\nSQL: %s", q.Question, strings.TrimSpace(q.SQL))
	}
	return b.String()
}
