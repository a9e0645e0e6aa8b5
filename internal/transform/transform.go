// Package transform holds the whole-table steps applied after modeling:
// derived columns, regex classification, nested blob explosion and row
// duplication. Each step mutates the table it receives and returns it.
package transform

import (
	"errors"

	"github.com/nucleus/etl-flows/internal/core"
)

// Step is one named table transformation.
type Step struct {
	Name string
	Fn   func(t *core.Table) error
}

// Run applies steps in order. The first failure aborts with a *core.TransformError.
func Run(t *core.Table, name string, steps ...Step) (*core.Table, error) {
	if t == nil {
		return nil, &core.TransformError{Step: name, Err: errNilTable}
	}
	for _, s := range steps {
		if err := s.Fn(t); err != nil {
			return nil, &core.TransformError{Step: name + "." + s.Name, Err: err}
		}
	}
	return t, nil
}

var errNilTable = errors.New("nil table")

// replaceBlanks maps placeholder strings to nil in every string cell.
func replaceBlanks(t *core.Table, placeholders ...string) {
	set := make(map[string]struct{}, len(placeholders))
	for _, p := range placeholders {
		set[p] = struct{}{}
	}
	for _, r := range t.Rows {
		for k, v := range r {
			if s, ok := v.(string); ok {
				if _, hit := set[s]; hit {
					r[k] = nil
				}
			}
		}
	}
}
