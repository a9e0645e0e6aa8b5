package transform

import (
	"fmt"
	"strings"
	"time"

	"github.com/nucleus/etl-flows/internal/core"
)

// DevicePolicy parameterizes the device staleness flags.
type DevicePolicy struct {
	// Now is the extraction instant the flags are measured from.
	Now time.Time
	// StaleAfterDays defaults to 30.
	StaleAfterDays int
}

// Days is the staleness window in effect, which also names the flag columns.
func (p DevicePolicy) Days() int {
	if p.StaleAfterDays <= 0 {
		return 30
	}
	return p.StaleAfterDays
}

var (
	osBuild   = core.Patterns{core.Capture(`.*\s(\d+\.\d+\.\d+).*`)}
	osName    = core.Patterns{core.Capture(`(.*)\s(\d+\.\d+\.\d+).*`)}
	osRelease = core.Patterns{core.CaptureGroup(`^(\w{5,}\s)+([\dA-Z\.]{1,4}\s?(R2)?).*`, 2)}
	awsHost   = core.Patterns{core.Capture(`^(\bEC2AMAZ\b|\bWSAMZN\b|\bIP-\b).*`)}
)

// Devices derives patch percentage, staleness flags, OS classification and
// cloud tagging on a device table.
func Devices(t *core.Table, p DevicePolicy) (*core.Table, error) {
	return Run(t, "devices",
		Step{"patch_percentage", patchPercentage},
		Step{"staleness", func(t *core.Table) error { return staleness(t, p) }},
		Step{"replace_undefined", func(t *core.Table) error { replaceBlanks(t, "null", ""); return nil }},
		Step{"os_info", osInfo},
		Step{"cloud_category", cloudCategory},
	)
}

func count(v any) float64 {
	if f, ok := core.Float(v).(float64); ok {
		return f
	}
	return 0
}

// patchPercentage is installed / (approved_pending + installed) * 100,
// rounded to 2 places and 0 when nothing is pending or installed.
func patchPercentage(t *core.Table) error {
	return t.SetColumn(core.Column{Name: "patch_status_percentage", Type: core.TypeFloat}, func(r core.Row) (any, error) {
		installed := count(r["patches_installed"])
		total := count(r["patches_approved_pending"]) + installed
		if total == 0 {
			return 0.0, nil
		}
		return core.Round(installed/total*100, 2), nil
	})
}

func staleness(t *core.Table, p DevicePolicy) error {
	days := p.Days()
	cutoff := p.Now.UTC().AddDate(0, 0, -days)
	flags := []struct{ name, source string }{
		{"no_audit_last_%d_days", "last_audit_date"},
		{"offline_last_%d_days", "adjusted_last_seen"},
		{"no_reboot_last_%d_days", "last_reboot"},
	}
	for _, f := range flags {
		source := f.source
		err := t.SetColumn(core.Column{Name: fmt.Sprintf(f.name, days), Type: core.TypeBool}, func(r core.Row) (any, error) {
			ts, ok := core.Time(r[source])
			return ok && ts.Before(cutoff), nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func osType(lower string) string {
	switch {
	case strings.Contains(lower, "windows"):
		return "Microsoft"
	case strings.Contains(lower, "linux"):
		return "Linux"
	case strings.Contains(lower, "mac"):
		return "MacOS"
	default:
		return "Unknown"
	}
}

func windowsEdition(lower string) string {
	for _, term := range []string{" pro", " home", " workstations", " business"} {
		if strings.Contains(lower, term) {
			return "Workstation"
		}
	}
	switch {
	case strings.Contains(lower, "enterprise"):
		return "Enterprise"
	case strings.Contains(lower, "iot"):
		return "IoT"
	default:
		return "Standard"
	}
}

func osInfo(t *core.Table) error {
	cols := core.Schema{
		{Name: "os_build", Type: core.TypeString},
		{Name: "os_name", Type: core.TypeString},
		{Name: "os_type", Type: core.TypeString},
		{Name: "os_release_edition", Type: core.TypeString},
		{Name: "os_is_lts", Type: core.TypeBool},
		{Name: "release_info", Type: core.TypeString},
	}
	t.Schema = t.Schema.Union(cols)
	for _, r := range t.Rows {
		name, _ := r["operating_system"].(string)
		lower := strings.ToLower(name)
		r["os_build"] = osBuild.FirstMatch(name)
		r["os_name"] = osName.FirstMatch(name)
		r["os_type"] = osType(lower)
		r["os_release_edition"] = nil
		if r["os_type"] == "Microsoft" {
			r["os_release_edition"] = windowsEdition(lower)
		}
		r["os_is_lts"] = strings.Contains(lower, " lts")
		r["release_info"] = osRelease.FirstMatch(name)
	}
	return nil
}

func cloudCategory(t *core.Table) error {
	t.Schema = t.Schema.Union(core.Schema{
		{Name: "cloud_category", Type: core.TypeString},
		{Name: "cloud_type", Type: core.TypeString},
	})
	for _, r := range t.Rows {
		r["cloud_category"], r["cloud_type"] = nil, nil
		if awsHost.FirstMatch(r["hostname"]) != nil {
			r["cloud_category"], r["cloud_type"] = "AWS", "Workspace"
		}
	}
	return nil
}
