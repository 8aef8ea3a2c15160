// Package frame holds the small in-memory table type shared by the dataset
// catalog, the chart layer and the export materializers, together with the
// wide-to-long reshape (Melt).
//
// Tables are plain values: an ordered schema plus rows keyed by column name.
// Nothing in this package performs I/O or keeps state between calls.
package frame

import (
	"fmt"
	"math"
	"strconv"
)

// Column types recognised by the renderers. Any other string is carried through.
const (
	TypeString = "string"
	TypeNumber = "number"
	TypeAny    = "any"
)

// Column describes one column of a table.
type Column struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Unit        string `json:"unit,omitempty" yaml:"unit,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Row is a single record keyed by column name.
type Row map[string]any

// Table is an ordered schema plus rows. A table keeps its schema even when it
// has no rows.
type Table struct {
	Columns []Column `json:"schema"`
	Rows    []Row    `json:"rows"`
}

// New builds a table from columns and rows, validating that every row only
// uses declared columns. The inputs are cloned.
func New(columns []Column, rows []Row) (Table, error) {
	t := Table{Columns: cloneColumns(columns), Rows: cloneRows(rows)}
	if err := t.Validate(); err != nil {
		return Table{}, err
	}
	return t, nil
}

// Validate checks column names are unique and non-empty and that every row
// only references declared columns.
func (t Table) Validate() error {
	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == "" {
			return &SchemaMismatchError{Reason: "empty column name"}
		}
		if _, dup := seen[c.Name]; dup {
			return &SchemaMismatchError{Column: c.Name, Reason: "duplicate column"}
		}
		seen[c.Name] = struct{}{}
	}
	for i, row := range t.Rows {
		for name := range row {
			if _, ok := seen[name]; !ok {
				return &SchemaMismatchError{Column: name, Reason: fmt.Sprintf("row %d references undeclared column", i)}
			}
		}
	}
	return nil
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// ColumnNames returns column names in schema order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the named column descriptor.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether the schema declares name.
func (t Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// Clone returns a deep copy of the schema and rows. Cell values are copied
// shallowly; they are expected to be scalars.
func (t Table) Clone() Table {
	return Table{Columns: cloneColumns(t.Columns), Rows: cloneRows(t.Rows)}
}

// Select projects the table onto the named columns, in the given order.
func (t Table) Select(names ...string) (Table, error) {
	columns := make([]Column, 0, len(names))
	for _, name := range names {
		c, ok := t.Column(name)
		if !ok {
			return Table{}, missingColumn(name)
		}
		columns = append(columns, c)
	}
	rows := make([]Row, len(t.Rows))
	for i, row := range t.Rows {
		out := make(Row, len(names))
		for _, name := range names {
			if v, ok := row[name]; ok {
				out[name] = v
			}
		}
		rows[i] = out
	}
	return Table{Columns: columns, Rows: rows}, nil
}

// Distinct returns the distinct values of a column in first-appearance order.
func (t Table) Distinct(name string) ([]any, error) {
	if !t.HasColumn(name) {
		return nil, missingColumn(name)
	}
	var out []any
	seen := make(map[any]struct{})
	for _, row := range t.Rows {
		v := row[name]
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, nil
}

// Floats extracts a numeric column. Non-numeric or missing cells yield NaN.
func (t Table) Floats(name string) ([]float64, error) {
	if !t.HasColumn(name) {
		return nil, missingColumn(name)
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		f, ok := ToFloat(row[name])
		if !ok {
			f = math.NaN()
		}
		out[i] = f
	}
	return out, nil
}

// ToFloat converts common numeric cell values to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func cloneColumns(columns []Column) []Column {
	if columns == nil {
		return []Column{}
	}
	out := make([]Column, len(columns))
	copy(out, columns)
	return out
}

func cloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, row := range rows {
		dup := make(Row, len(row))
		for k, v := range row {
			dup[k] = v
		}
		out[i] = dup
	}
	return out
}
