package flows

import (
	"context"
	"embed"
	"strings"
	"text/template"

	"github.com/nucleus/etl-flows/internal/config"
	"github.com/nucleus/etl-flows/internal/core"
	"github.com/nucleus/etl-flows/internal/logger"
	"github.com/nucleus/etl-flows/internal/orchestration"
	"github.com/nucleus/etl-flows/internal/transform"
)

// Mart flow names. Each reads staging through its query file and replaces
// one curated table.
const (
	MartDevices       = "mart_datto_rmm_devices"
	MartMSPatchEvents = "mart_datto_rmm_ms_patch_events"
)

//go:embed sql/*.sql
var martSQL embed.FS

// martGrain is the column each curated table holds one row per.
var martGrain = map[string]string{
	MartDevices: "device_uid",
}

// MartParams fill the placeholders of a mart query.
type MartParams struct {
	// StaleAfterDays names the device staleness columns, as staging wrote them.
	StaleAfterDays int
}

func init() {
	for _, name := range []string{MartDevices, MartMSPatchEvents} {
		name := name
		Register(name, func(ctx context.Context, d *Deps) error {
			return execute(ctx, name, d, func(ctx context.Context, fr *flowRun) error {
				return fr.mart(ctx, name)
			})
		})
	}
}

// MartQuery renders the embedded query of a mart flow.
func MartQuery(name string, p MartParams) (string, error) {
	b, err := martSQL.ReadFile("sql/" + name + ".sql")
	if err != nil {
		return "", err
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(b))
	if err != nil {
		return "", err
	}
	p.StaleAfterDays = transform.DevicePolicy{StaleAfterDays: p.StaleAfterDays}.Days()
	var sb strings.Builder
	if err := tmpl.Execute(&sb, p); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// mart reads with task 0 and writes the result with task 1.
func (fr *flowRun) mart(ctx context.Context, name string) error {
	query, err := MartQuery(name, MartParams{StaleAfterDays: fr.deps.Settings.StaleAfterDays})
	if err != nil {
		return err
	}
	read, err := fr.tasks.At(0)
	if err != nil {
		return err
	}
	t, err := orchestration.Extract(ctx, fr.Run, orchestration.Task{
		Name: read.Title(), Stage: orchestration.StageExtract, Tags: tags(orchestration.StageExtract, read, "postgresql"),
	}, func(ctx context.Context) (*core.Table, error) {
		return fr.query(ctx, read, query)
	})
	if err != nil {
		return err
	}
	if key, ok := martGrain[name]; ok {
		if n := t.DistinctBy(key); n > 0 {
			fr.Log.Warn("dropped duplicate mart rows", logger.String("key", key), logger.Int("rows", n))
		}
	}
	write, err := fr.tableLoad(1, t)
	if err != nil {
		return err
	}
	return orchestration.RunLoads(ctx, fr.Run, write)
}

func (fr *flowRun) query(ctx context.Context, task config.Task, query string) (*core.Table, error) {
	reader, err := fr.deps.Mart(ctx, task)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return reader.Query(ctx, query)
}
