package render

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"micdash/pkg/frame"
)

var identUnsafe = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// SQLite writes the table into a fresh database file and returns its bytes.
// The rows land in a table named after the template key; a _meta table records
// where they came from.
func SQLite(ctx context.Context, in Input) ([]byte, error) {
	t := in.table()
	if len(t.Columns) == 0 {
		return nil, &frame.SchemaMismatchError{Reason: "sqlite export of a table without columns"}
	}
	dir, err := os.MkdirTemp("", "micdash-sqlite-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()
	path := filepath.Join(dir, "export.sqlite")

	if err := writeSQLite(ctx, path, tableName(in.Template.Key), in, t); err != nil {
		return nil, err
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sqlite export: %w", err)
	}
	return payload, nil
}

func writeSQLite(ctx context.Context, path, table string, in Input, t frame.Table) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer func() { _ = db.Close() }()

	defs := make([]string, len(t.Columns))
	names := make([]string, len(t.Columns))
	marks := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = quoteIdent(c.Name)
		defs[i] = names[i] + " " + sqlType(c)
		marks[i] = "?"
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("create %s table: %w", table, err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE _meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("create meta table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for i, r := range t.Rows {
		args := make([]any, len(t.Columns))
		for j, c := range t.Columns {
			args[j] = sqlValue(c, r[c.Name])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	meta := map[string]string{
		"template":     in.Template.Slug,
		"title":        in.title(),
		"table":        table,
		"rows":         fmt.Sprint(len(t.Rows)),
		"generated_at": in.Result.GeneratedAt.UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO _meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("insert meta %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func tableName(key string) string {
	name := strings.Trim(identUnsafe.ReplaceAllString(key, "_"), "_")
	if name == "" {
		return "dataset"
	}
	return name
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func sqlType(c frame.Column) string {
	switch c.Type {
	case frame.TypeNumber:
		return "REAL"
	case frame.TypeString:
		return "TEXT"
	default:
		return "BLOB"
	}
}

func sqlValue(c frame.Column, v any) any {
	if v == nil {
		return nil
	}
	if c.Type == frame.TypeNumber {
		if f, ok := frame.ToFloat(v); ok {
			return f
		}
	}
	switch v.(type) {
	case string, float64, int64, int, bool:
		return v
	default:
		return frame.FormatCell(v)
	}
}
