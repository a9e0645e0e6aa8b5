package flows

import (
	"context"

	"github.com/nucleus/etl-flows/internal/config"
	"github.com/nucleus/etl-flows/internal/connector/scalepad"
	"github.com/nucleus/etl-flows/internal/core"
	"github.com/nucleus/etl-flows/internal/vault"
)

// ScalePadHardware stages the hardware asset spreadsheet.
const ScalePadHardware = "stg_frontend_scalepad_hardware_assets"

func init() {
	Register(ScalePadHardware, func(ctx context.Context, d *Deps) error {
		return execute(ctx, ScalePadHardware, d, func(ctx context.Context, fr *flowRun) error {
			return fr.pipeline(ctx, stage{
				extract: fr.hardwareAssets,
				// The relational table keys assets by id.
				forTable: func(t *core.Table) { t.RenameColumn("uid", "id") },
			})
		})
	})
}

func (fr *flowRun) hardwareAssets(ctx context.Context, task config.Task) (*core.Table, error) {
	var s scalepad.Secrets
	if err := vault.Read(ctx, fr.deps.Secrets, task.Secrets.MountPoint, task.Secrets.Path, &s); err != nil {
		return nil, err
	}
	src, err := scalepad.NewSource(s, fr.deps.Transport, fr.Log)
	if err != nil {
		return nil, err
	}
	return src.HardwareAssets(ctx)
}
