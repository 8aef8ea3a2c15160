package frame

import (
	"errors"
	"fmt"
)

// Default names for the two columns Melt adds.
const (
	DefaultVarName   = "category"
	DefaultValueName = "value"
)

// ErrSchemaMismatch is returned (wrapped in a *SchemaMismatchError) whenever an
// operation names columns the table does not declare, or column sets conflict.
var ErrSchemaMismatch = errors.New("schema mismatch")

// SchemaMismatchError names the offending column.
type SchemaMismatchError struct {
	Column string
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("%s: %s", ErrSchemaMismatch, e.Reason)
	}
	return fmt.Sprintf("%s: column %q: %s", ErrSchemaMismatch, e.Column, e.Reason)
}

// Unwrap lets errors.Is match ErrSchemaMismatch.
func (e *SchemaMismatchError) Unwrap() error { return ErrSchemaMismatch }

func missingColumn(name string) error {
	return &SchemaMismatchError{Column: name, Reason: "not present in table"}
}

// MeltSpec names the identity columns carried through unchanged, the
// measurement columns unpivoted into rows, and the names of the two columns
// that receive the measurement label and value.
type MeltSpec struct {
	IDColumns    []string
	ValueColumns []string
	VarName      string
	ValueName    string
}

func (s MeltSpec) varName() string {
	if s.VarName == "" {
		return DefaultVarName
	}
	return s.VarName
}

func (s MeltSpec) valueName() string {
	if s.ValueName == "" {
		return DefaultValueName
	}
	return s.ValueName
}

// Melt converts a wide table into long form: each input row becomes one output
// row per measurement column, in declared column order, holding the identity
// values, the measurement column name and its value. The input is not modified.
func Melt(t Table, spec MeltSpec) (Table, error) {
	if err := spec.check(t); err != nil {
		return Table{}, err
	}
	varName, valueName := spec.varName(), spec.valueName()

	columns := make([]Column, 0, len(spec.IDColumns)+2)
	for _, name := range spec.IDColumns {
		c, _ := t.Column(name)
		columns = append(columns, c)
	}
	columns = append(columns,
		Column{Name: varName, Type: TypeString},
		valueColumn(t, spec.ValueColumns, valueName),
	)

	rows := make([]Row, 0, len(t.Rows)*len(spec.ValueColumns))
	for _, src := range t.Rows {
		for _, measure := range spec.ValueColumns {
			out := make(Row, len(spec.IDColumns)+2)
			for _, id := range spec.IDColumns {
				out[id] = src[id]
			}
			out[varName] = measure
			out[valueName] = src[measure]
			rows = append(rows, out)
		}
	}
	return Table{Columns: columns, Rows: rows}, nil
}

func (s MeltSpec) check(t Table) error {
	role := make(map[string]string, len(s.IDColumns)+len(s.ValueColumns))
	assign := func(name, kind string) error {
		if prev, ok := role[name]; ok {
			if prev == kind {
				return &SchemaMismatchError{Column: name, Reason: "listed twice as " + kind}
			}
			return &SchemaMismatchError{Column: name, Reason: "both identity and measurement"}
		}
		if !t.HasColumn(name) {
			return missingColumn(name)
		}
		role[name] = kind
		return nil
	}
	for _, name := range s.IDColumns {
		if err := assign(name, "identity"); err != nil {
			return err
		}
	}
	for _, name := range s.ValueColumns {
		if err := assign(name, "measurement"); err != nil {
			return err
		}
	}
	varName, valueName := s.varName(), s.valueName()
	if varName == valueName {
		return &SchemaMismatchError{Column: varName, Reason: "category and value columns share a name"}
	}
	for _, name := range []string{varName, valueName} {
		if role[name] == "identity" {
			return &SchemaMismatchError{Column: name, Reason: "collides with an identity column"}
		}
	}
	return nil
}

// valueColumn keeps the measurement type and unit when every measurement
// column agrees on them.
func valueColumn(t Table, measures []string, name string) Column {
	if len(measures) == 0 {
		return Column{Name: name, Type: TypeAny}
	}
	first, _ := t.Column(measures[0])
	out := Column{Name: name, Type: first.Type, Unit: first.Unit}
	for _, m := range measures[1:] {
		c, _ := t.Column(m)
		if c.Type != out.Type {
			out.Type = TypeAny
		}
		if c.Unit != out.Unit {
			out.Unit = ""
		}
	}
	if out.Type == "" {
		out.Type = TypeAny
	}
	return out
}
