package orchestration

import (
	"github.com/nucleus/etl-flows/internal/config"
	"github.com/nucleus/etl-flows/internal/core"
)

// Lineage columns stamped on every extracted table.
const (
	ColSourceProduct       = "_SOURCE_PRODUCT"
	ColSourceSubject       = "_SOURCE_SUBJECT"
	ColSourceOrigin        = "_SOURCE_ORIGIN"
	ColExtractionTimestamp = "_UTC_EXTRACTION_DATETIME"
)

// AddMarkers appends the lineage columns for task to every row of t.
func AddMarkers(t *core.Table, task config.Task) *core.Table {
	if t == nil {
		return nil
	}
	markers := []struct {
		col   core.Column
		value any
	}{
		{core.Column{Name: ColSourceProduct, Type: core.TypeString}, task.Details.Product},
		{core.Column{Name: ColSourceSubject, Type: core.TypeString}, task.Details.Subject},
		{core.Column{Name: ColSourceOrigin, Type: core.TypeString}, task.Data.Origin},
		{core.Column{Name: ColExtractionTimestamp, Type: core.TypeTimestamp}, task.Timestamps.Now},
	}
	for _, m := range markers {
		t.SetConst(m.col, m.value)
	}
	return t
}
