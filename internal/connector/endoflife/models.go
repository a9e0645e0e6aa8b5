package endoflife

import (
	"fmt"

	"github.com/nucleus/etl-flows/internal/core"
)

var productSchema = core.Schema{{Name: "product", Type: core.TypeString}}

// ProductModel maps one entry of the product list, wrapped by wrapProducts.
func ProductModel() core.Model {
	return core.Model{Entity: "product", Schema: productSchema, Map: func(rec core.Record) (core.Row, error) {
		return core.Row{"product": core.String(rec["product"])}, nil
	}}
}

// CycleSchema is the modeled shape of a lifecycle cycle.
var CycleSchema = core.Schema{
	{Name: "cycle", Type: core.TypeString},
	{Name: "release_label", Type: core.TypeString},
	{Name: "is_server", Type: core.TypeBool},
	{Name: "release_date", Type: core.TypeTimestamp},
	{Name: "eol_date", Type: core.TypeTimestamp},
	{Name: "support_date", Type: core.TypeTimestamp},
	{Name: "os_build", Type: core.TypeString},
	{Name: "link", Type: core.TypeString},
	{Name: "os_is_lts", Type: core.TypeBool},
}

// CycleModel maps one cycle. Dates the service reports as booleans ("no
// date yet") become nil; a missing cycle identifier is fatal.
func CycleModel(server bool) core.Model {
	return core.Model{Entity: "eol_cycle", Schema: CycleSchema, Map: func(rec core.Record) (core.Row, error) {
		cycle := core.String(rec["cycle"])
		if cycle == nil || cycle == "" {
			return nil, core.Fieldf("cycle", "missing cycle identifier")
		}
		lts, _ := core.Bool(rec["lts"]).(bool)
		return core.Row{
			"cycle":         cycle,
			"release_label": core.String(rec["releaseLabel"]),
			"is_server":     server,
			"release_date":  core.Date(rec["releaseDate"]),
			"eol_date":      core.Date(rec["eol"]),
			"support_date":  core.Date(rec["support"]),
			"os_build":      core.String(rec["latest"]),
			"link":          core.String(rec["link"]),
			"os_is_lts":     lts,
		}, nil
	}}
}

// wrapProducts turns the bare string list into objects for ProductModel.
func wrapProducts(items []any) ([]any, error) {
	out := make([]any, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, &core.ModelError{Entity: "product", Index: i, Err: fmt.Errorf("product is %T, want string", item)}
		}
		out[i] = map[string]any{"product": s}
	}
	return out, nil
}
