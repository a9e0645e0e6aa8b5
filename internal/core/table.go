// Package core holds the in-memory data model shared by sources, transforms and sinks.
package core

import (
	"encoding/json"
	"time"
)

// Record is one raw element of a source payload: an untyped JSON tree.
type Record = map[string]any

// ColumnType is the logical type of a column, used by the sinks to pick physical types.
type ColumnType int

const (
	TypeString ColumnType = iota
	TypeInt
	TypeFloat
	TypeBool
	TypeTimestamp
	TypeJSON
)

func (t ColumnType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeTimestamp:
		return "timestamp"
	case TypeJSON:
		return "json"
	default:
		return "string"
	}
}

// Column is a named, typed column.
type Column struct {
	Name string
	Type ColumnType
}

// Schema is an ordered column set.
type Schema []Column

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of a column or -1.
func (s Schema) Index(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Has reports whether the schema declares the column.
func (s Schema) Has(name string) bool {
	return s.Index(name) >= 0
}

// Union returns s followed by the columns of other not already in s.
func (s Schema) Union(other Schema) Schema {
	out := make(Schema, len(s), len(s)+len(other))
	copy(out, s)
	for _, c := range other {
		if !out.Has(c.Name) {
			out = append(out, c)
		}
	}
	return out
}

// Row is one flat output row.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is an ordered sequence of rows sharing one schema. Every row carries
// every schema column, nil when the value is absent.
type Table struct {
	Schema Schema
	Rows   []Row
}

// NewTable creates an empty table with the given schema.
func NewTable(schema Schema) *Table {
	return &Table{Schema: append(Schema(nil), schema...)}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Append adds rows in order. Columns a row carries that the schema does not
// declare are added to the schema with an inferred type and back-filled with
// nil on earlier rows.
func (t *Table) Append(rows ...Row) {
	for _, r := range rows {
		for k, v := range r {
			if !t.Schema.Has(k) {
				t.addColumn(Column{Name: k, Type: InferType(v)})
			}
		}
		for _, c := range t.Schema {
			if _, ok := r[c.Name]; !ok {
				r[c.Name] = nil
			}
		}
		t.Rows = append(t.Rows, r)
	}
}

// Concat appends another table, unioning the schemas.
func (t *Table) Concat(other *Table) {
	if other == nil {
		return
	}
	for _, c := range other.Schema {
		if !t.Schema.Has(c.Name) {
			t.addColumn(c)
		}
	}
	t.Append(other.Rows...)
}

func (t *Table) addColumn(c Column) {
	t.Schema = append(t.Schema, c)
	for _, r := range t.Rows {
		if _, ok := r[c.Name]; !ok {
			r[c.Name] = nil
		}
	}
}

// SetColumn declares a column (or retypes an existing one) and assigns the
// value fn returns for every row.
func (t *Table) SetColumn(c Column, fn func(Row) (any, error)) error {
	if i := t.Schema.Index(c.Name); i >= 0 {
		t.Schema[i] = c
	} else {
		t.Schema = append(t.Schema, c)
	}
	for _, r := range t.Rows {
		v, err := fn(r)
		if err != nil {
			return err
		}
		r[c.Name] = v
	}
	return nil
}

// SetConst declares c (or retypes it) and assigns v to every row.
func (t *Table) SetConst(c Column, v any) {
	if i := t.Schema.Index(c.Name); i >= 0 {
		t.Schema[i] = c
	} else {
		t.Schema = append(t.Schema, c)
	}
	for _, r := range t.Rows {
		r[c.Name] = v
	}
}

// DistinctBy keeps the first row for each value of column name and returns
// how many rows it dropped. Rows with a nil key are all kept. Key values
// must be comparable.
func (t *Table) DistinctBy(name string) int {
	seen := make(map[any]struct{}, len(t.Rows))
	kept := t.Rows[:0]
	for _, r := range t.Rows {
		k := r[name]
		if k != nil {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
		}
		kept = append(kept, r)
	}
	dropped := len(t.Rows) - len(kept)
	clear(t.Rows[len(kept):])
	t.Rows = kept
	return dropped
}

// DropColumns removes columns from the schema and every row. Unknown names are ignored.
func (t *Table) DropColumns(names ...string) {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	kept := t.Schema[:0]
	for _, c := range t.Schema {
		if _, ok := drop[c.Name]; !ok {
			kept = append(kept, c)
		}
	}
	t.Schema = kept
	for _, r := range t.Rows {
		for n := range drop {
			delete(r, n)
		}
	}
}

// RenameColumn renames a column in the schema and every row.
func (t *Table) RenameColumn(from, to string) {
	i := t.Schema.Index(from)
	if i < 0 || from == to {
		return
	}
	t.Schema[i].Name = to
	for _, r := range t.Rows {
		r[to] = r[from]
		delete(r, from)
	}
}

// Values returns one column's values in row order.
func (t *Table) Values(name string) []any {
	out := make([]any, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[name]
	}
	return out
}

// Clone deep-copies the schema and rows (values are shared).
func (t *Table) Clone() *Table {
	out := NewTable(t.Schema)
	out.Rows = make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// InferType guesses a column type from a Go value.
func InferType(v any) ColumnType {
	switch v.(type) {
	case bool:
		return TypeBool
	case int, int32, int64:
		return TypeInt
	case float32, float64, json.Number:
		return TypeFloat
	case time.Time:
		return TypeTimestamp
	case map[string]any, []any:
		return TypeJSON
	default:
		return TypeString
	}
}
