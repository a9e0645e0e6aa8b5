package transform

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/nucleus/etl-flows/internal/core"
)

// DefaultResponseActions is stored when an alert carries no response actions.
const DefaultResponseActions = `[{"action_time":0,"action_type":null,"description":null,"action_reference":null,"action_reference_int":null}]`

const alertContextPrefix = "alert_context"

// Alerts serializes response actions, extracts the alert class and explodes
// the alert context blob into alert_context_* columns.
func Alerts(t *core.Table) (*core.Table, error) {
	return Run(t, "alerts",
		Step{"response_actions", responseActions},
		Step{"alert_context", explodeAlertContext},
		Step{"replace_nan", func(t *core.Table) error { replaceBlanks(t, "nan"); return nil }},
	)
}

func responseActions(t *core.Table) error {
	return t.SetColumn(core.Column{Name: "response_actions", Type: core.TypeString}, func(r core.Row) (any, error) {
		v := r["response_actions"]
		if v == nil {
			return DefaultResponseActions, nil
		}
		return core.JSONText(v)
	})
}

func explodeAlertContext(t *core.Table) error {
	var added core.Schema
	for i, r := range t.Rows {
		ctx := map[string]any{}
		switch v := r[alertContextPrefix].(type) {
		case nil:
		case map[string]any:
			ctx = v
		case string:
			if err := json.Unmarshal([]byte(v), &ctx); err != nil {
				return fmt.Errorf("row %d: alert_context: %w", i, err)
			}
		default:
			return fmt.Errorf("row %d: alert_context is %T, not an object", i, v)
		}
		r["alert_class"] = core.String(ctx["@class"])

		flat := core.Flatten(alertContextPrefix, ctx)
		keys := make([]string, 0, len(flat))
		for k := range flat {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := flat[k]
			if k == "alert_context_last_triggered" {
				v = core.EpochMillis(v)
			}
			if !added.Has(k) {
				added = append(added, core.Column{Name: k})
			}
			r[k] = v
		}
	}

	t.DropColumns(alertContextPrefix)
	t.Schema = t.Schema.Union(core.Schema{{Name: "alert_class", Type: core.TypeString}})
	for i, c := range added {
		added[i].Type = columnType(t.Rows, c.Name)
	}
	t.Schema = t.Schema.Union(added)
	for _, r := range t.Rows {
		for _, c := range t.Schema {
			if _, ok := r[c.Name]; !ok {
				r[c.Name] = nil
			}
		}
	}
	return nil
}

// columnType infers a column type from its first non-nil value.
func columnType(rows []core.Row, name string) core.ColumnType {
	for _, r := range rows {
		if v := r[name]; v != nil {
			return core.InferType(v)
		}
	}
	return core.TypeString
}
