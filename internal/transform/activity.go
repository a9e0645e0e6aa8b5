package transform

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nucleus/etl-flows/internal/core"
)

type detailColumn struct {
	name string
	key  string
	typ  core.ColumnType
	conv func(any) any
}

var detailColumns = []detailColumn{
	{"device_hostname", "device.hostname", core.TypeString, core.UpperHost},
	{"device_uid", "device.uid", core.TypeString, core.String},
	{"entity", "entity", core.TypeString, core.String},
	{"event_action", "event.action", core.TypeString, core.String},
	{"event_category", "event.category", core.TypeString, core.String},
	{"patch_activity_action", "patch_activity.action", core.TypeString, core.String},
	{"patch_activity_from_cache", "patch_activity.from_cache", core.TypeBool, core.Bool},
	{"patch_activity_patch_install_end", "patch_activity.patch_install_end", core.TypeTimestamp, core.EpochMillis},
	{"patch_activity_patch_install_start", "patch_activity.patch_install_start", core.TypeTimestamp, core.EpochMillis},
	{"patch_activity_patch_uid", "patch_activity.patch_uid", core.TypeString, core.String},
	{"patch_activity_policy_uid", "patch_activity.policy_uid", core.TypeString, core.String},
	{"patch_activity_run_date", "patch_activity.run_date", core.TypeTimestamp, core.EpochMillis},
	{"patch_activity_success", "patch_activity.success", core.TypeBool, core.Bool},
	{"patch_update_end_date", "patch_update.end_date", core.TypeTimestamp, core.EpochMillis},
	{"patch_update_id", "patch_update.id", core.TypeString, core.String},
	{"patch_update_start_date", "patch_update.start_date", core.TypeTimestamp, core.EpochMillis},
	{"patch_update_title", "patch_update.title", core.TypeString, core.String},
	{"patch_update_uid", "patch_update.uid", core.TypeString, core.String},
	{"site_name", "site.name", core.TypeString, core.String},
	{"uid", "uid", core.TypeString, core.String},
	{"source_forwarded_ip", "source.forwarded_ip", core.TypeString, core.String},
}

var (
	hresult      = core.Patterns{core.Capture(`HResult\s+:\s(0x\w+)`), core.Capture(`HResult\s+:\s(\d+x\w+)`)}
	patchTitle   = core.Patterns{core.Capture(`([^'(]+)\s\(?.*`)}
	kbID         = core.Patterns{core.Capture(`.*\((KB\d+)\).*`)}
	updateSource = core.Patterns{core.Capture(`Update Source\s+:\s(\w+)`)}
	messageText  = core.Patterns{core.Capture(`Message Text\s+:\s(.*)`)}
)

// ActivityLogs explodes the dotted-key details blob of activity log rows
// into typed patch columns and drops the blob.
func ActivityLogs(t *core.Table) (*core.Table, error) {
	return Run(t, "activity_logs", Step{"explode_details", explodeDetails})
}

func parseDetails(v any) (map[string]any, error) {
	switch d := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return d, nil
	case string:
		if strings.TrimSpace(d) == "" {
			return map[string]any{}, nil
		}
		out := map[string]any{}
		if err := json.Unmarshal([]byte(d), &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("details is %T", v)
	}
}

func explodeDetails(t *core.Table) error {
	schema := core.Schema{}
	for _, c := range detailColumns {
		schema = append(schema, core.Column{Name: c.name, Type: c.typ})
	}
	schema = append(schema,
		core.Column{Name: "patch_activity_info", Type: core.TypeJSON},
		core.Column{Name: "patch_activity_hresult", Type: core.TypeString},
		core.Column{Name: "patch_activity_patch_title", Type: core.TypeString},
		core.Column{Name: "patch_activity_kb_id", Type: core.TypeString},
		core.Column{Name: "patch_activity_update_source", Type: core.TypeString},
		core.Column{Name: "patch_activity_message_text", Type: core.TypeString},
	)

	for i, r := range t.Rows {
		details, err := parseDetails(r["details"])
		if err != nil {
			return fmt.Errorf("row %d: details: %w", i, err)
		}
		for _, c := range detailColumns {
			r[c.name] = c.conv(details[c.key])
		}

		info := []any{}
		if s, ok := details["patch_activity.info"].(string); ok && s != "" {
			for _, line := range strings.Split(s, "\n") {
				info = append(info, line)
			}
		}
		r["patch_activity_info"] = info

		result, _ := details["patch_activity.result"].(string)
		title, _ := details["patch_update.title"].(string)
		r["patch_activity_hresult"] = hresult.FirstMatch(result)
		r["patch_activity_patch_title"] = patchTitle.FirstMatch(title)
		r["patch_activity_kb_id"] = kbID.FirstMatch(title)
		r["patch_activity_update_source"] = updateSource.FirstMatch(result)
		r["patch_activity_message_text"] = messageText.FirstMatch(result)
	}

	t.Schema = t.Schema.Union(schema)
	for _, c := range schema {
		if i := t.Schema.Index(c.Name); i >= 0 {
			t.Schema[i].Type = c.Type
		}
	}
	for _, r := range t.Rows {
		for _, c := range t.Schema {
			if _, ok := r[c.Name]; !ok {
				r[c.Name] = nil
			}
		}
	}
	t.DropColumns("details")
	return nil
}
