package assetdb

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func Test_PrepareStatement(t *testing.T) {
	t.Parallel()

	s := &Store{rowLimit: 100}

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{
			name: "select without limit gets cap",
			in:   "SELECT id FROM files",
			want: "SELECT id FROM files LIMIT 100",
		},
		{
			name: "explicit limit preserved",
			in:   "SELECT id FROM files LIMIT 5",
			want: "SELECT id FROM files LIMIT 5",
		},
		{
			name: "lowercase limit preserved",
			in:   "select id from files limit 5",
			want: "select id from files limit 5",
		},
		{
			name: "cte allowed",
			in:   "WITH big AS (SELECT * FROM files) SELECT * FROM big LIMIT 3",
			want: "WITH big AS (SELECT * FROM files) SELECT * FROM big LIMIT 3",
		},
		{
			name: "trailing semicolon stripped before cap",
			in:   "SELECT count(*) FROM files;",
			want: "SELECT count(*) FROM files LIMIT 100",
		},
		{
			name:    "update rejected",
			in:      "UPDATE files SET show = 'x'",
			wantErr: true,
		},
		{
			name:    "delete rejected",
			in:      "DELETE FROM files",
			wantErr: true,
		},
		{
			name:    "drop rejected",
			in:      "DROP TABLE files",
			wantErr: true,
		},
		{
			name:    "empty rejected",
			in:      "   ",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := s.prepareStatement(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("want error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("prepareStatement: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func Test_PrepareStatement_ColumnNamedLimitStillCapped(t *testing.T) {
	t.Parallel()

	// "rate_limit" must not count as a LIMIT clause.
	s := &Store{rowLimit: 50}
	got, err := s.prepareStatement("SELECT rate_limit FROM files")
	if err != nil {
		t.Fatalf("prepareStatement: %v", err)
	}
	if !strings.HasSuffix(got, "LIMIT 50") {
		t.Errorf("got %q, want LIMIT 50 appended", got)
	}
}

func Test_ExecuteReadOnly_RowsAndColumns(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, file_name FROM files LIMIT 100").
		WillReturnRows(sqlmock.NewRows([]string{"id", "file_name"}).
			AddRow(int64(1), []byte("shot010.blend")).
			AddRow(int64(2), []byte("env_forest.blend")))

	s := NewWithDB(db, 0)
	res, err := s.ExecuteReadOnly(context.Background(), "SELECT id, file_name FROM files")
	if err != nil {
		t.Fatalf("ExecuteReadOnly: %v", err)
	}

	if want := []string{"id", "file_name"}; len(res.Columns) != 2 || res.Columns[0] != want[0] || res.Columns[1] != want[1] {
		t.Errorf("columns = %v, want %v", res.Columns, want)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(res.Rows))
	}
	if got := res.Rows[0]["file_name"]; got != "shot010.blend" {
		t.Errorf("file_name = %v (%T), want string shot010.blend", got, got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func Test_ExecuteReadOnly_EmptyResult(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id FROM files WHERE show = 'nope' LIMIT 100").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	s := NewWithDB(db, 0)
	res, err := s.ExecuteReadOnly(context.Background(), "SELECT id FROM files WHERE show = 'nope'")
	if err != nil {
		t.Fatalf("ExecuteReadOnly: %v", err)
	}
	if len(res.Rows) != 0 {
		t.Errorf("rows = %d, want 0", len(res.Rows))
	}
	if len(res.Columns) != 1 {
		t.Errorf("columns = %v, want [id]", res.Columns)
	}
}

func Test_ExecuteReadOnly_WriteRejectedBeforeDB(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	s := NewWithDB(db, 0)
	if _, err := s.ExecuteReadOnly(context.Background(), "INSERT INTO files VALUES (1)"); err == nil {
		t.Fatal("want rejection for INSERT")
	}
	// No query must have reached the database.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected DB interaction: %v", err)
	}
}
