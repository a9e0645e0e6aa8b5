package core

import "fmt"

// Model maps one raw record of an entity to one flat row. Every column of
// Schema is present on the produced row.
type Model struct {
	Entity string
	Schema Schema
	Map    func(rec Record) (Row, error)
}

// Apply runs the model on the index-th record of a batch and conforms the
// result to the schema. Failures come back as *ModelError.
func (m Model) Apply(index int, v any) (Row, error) {
	rec, ok := v.(map[string]any)
	if !ok {
		return nil, &ModelError{Entity: m.Entity, Index: index, Err: fmt.Errorf("record is %T, want object", v)}
	}
	row, err := m.Map(rec)
	if err != nil {
		return nil, AsModelError(m.Entity, index, err)
	}
	for _, c := range m.Schema {
		if _, ok := row[c.Name]; !ok {
			row[c.Name] = nil
		}
	}
	return row, nil
}

// Table builds an empty table carrying the model's schema.
func (m Model) Table() *Table {
	return NewTable(m.Schema)
}
