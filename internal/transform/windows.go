package transform

import (
	"strings"

	"github.com/nucleus/etl-flows/internal/core"
)

// Edition tags written to os_release_edition.
const (
	EditionStandard    = "Standard"
	EditionWorkstation = "Workstation"
	EditionEnterprise  = "Enterprise"
	EditionIoT         = "IoT"
)

var (
	releaseModel   = core.Patterns{core.Capture(`^(\d+(?:\.\d+)?)`), core.Capture(`^(\S+)`)}
	releaseVersion = core.Patterns{core.Capture(`^(\d{2}[Hh]\d)`), core.Capture(`^(\d{4})`)}
	cycleR2        = core.Capture(`(?i)(-r2)(?:-|$)`)
	servicePack    = core.Capture(`(?i)SP(\d+)`)
)

// Windows parses lifecycle cycles into release info, edition and service
// pack, expands Standard rows into three editions, splits server LTS rows
// into LTSC and non-LTS variants and prunes the parsing columns.
func Windows(t *core.Table) (*core.Table, error) {
	return Run(t, "windows",
		Step{"cycle", parseCycles},
		Step{"duplicate_standard", duplicateStandard},
		Step{"duplicate_server_ltsc", duplicateServerLTSC},
		Step{"drop_release", func(t *core.Table) error {
			t.DropColumns("release_model", "release_version", "release_label")
			return nil
		}},
	)
}

func labelEdition(label string) string {
	lower := strings.ToLower(label)
	switch {
	case strings.Contains(lower, "iot"):
		return EditionIoT
	case strings.Contains(lower, "(e)"):
		return EditionEnterprise
	case strings.Contains(lower, "(w)"):
		return EditionWorkstation
	default:
		return EditionStandard
	}
}

func parseCycles(t *core.Table) error {
	t.Schema = t.Schema.Union(core.Schema{
		{Name: "release_model", Type: core.TypeString},
		{Name: "release_version", Type: core.TypeString},
		{Name: "os_release_edition", Type: core.TypeString},
		{Name: "service_pack", Type: core.TypeString},
		{Name: "release_info", Type: core.TypeString},
	})
	for _, r := range t.Rows {
		label, _ := r["release_label"].(string)
		cycle, _ := r["cycle"].(string)

		model := releaseModel.FirstMatch(label)
		version := releaseVersion.FirstMatch(cycle)
		if v, ok := version.(string); ok {
			version = strings.ToUpper(v)
		}
		r["release_model"] = model
		r["release_version"] = version
		r["os_release_edition"] = labelEdition(label)

		r["service_pack"] = nil
		if sp, ok := servicePack.Match(cycle); ok {
			r["service_pack"] = "SP" + sp
		}

		info := version
		if info == nil {
			info = model
		}
		if s, ok := info.(string); ok {
			if _, r2 := cycleR2.Match(cycle); r2 {
				info = s + " R2"
			}
		}
		r["release_info"] = info
	}
	return nil
}

func duplicateStandard(t *core.Table) error {
	out := make([]core.Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		if r["os_release_edition"] != EditionStandard {
			out = append(out, r)
			continue
		}
		cycle, _ := r["cycle"].(string)
		for _, v := range []struct{ edition, suffix string }{
			{EditionWorkstation, "-w"},
			{EditionEnterprise, "-e"},
			{EditionStandard, "-s"},
		} {
			dup := r.Clone()
			dup["os_release_edition"] = v.edition
			dup["cycle"] = cycle + v.suffix
			out = append(out, dup)
		}
	}
	t.Rows = out
	return nil
}

func duplicateServerLTSC(t *core.Table) error {
	out := make([]core.Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		if r["os_is_lts"] != true || r["is_server"] != true {
			out = append(out, r)
			continue
		}
		cycle, _ := r["cycle"].(string)
		ltsc := r.Clone()
		ltsc["cycle"] = cycle + "-ltsc"
		ltsc["os_is_lts"] = true
		standard := r.Clone()
		standard["os_is_lts"] = false
		out = append(out, ltsc, standard)
	}
	t.Rows = out
	return nil
}
