package flows

import (
	"context"

	"github.com/nucleus/etl-flows/internal/config"
	"github.com/nucleus/etl-flows/internal/connector/endoflife"
	"github.com/nucleus/etl-flows/internal/core"
	"github.com/nucleus/etl-flows/internal/transform"
	"github.com/nucleus/etl-flows/internal/vault"
)

// EndOfLifeWindows stages the desktop and server Windows lifecycle calendar.
const EndOfLifeWindows = "stg_api_end_of_life_date_microsoft_windows"

func init() {
	Register(EndOfLifeWindows, func(ctx context.Context, d *Deps) error {
		return execute(ctx, EndOfLifeWindows, d, func(ctx context.Context, fr *flowRun) error {
			return fr.pipeline(ctx, stage{
				extract:   fr.windowsCycles,
				transform: transform.Windows,
			})
		})
	})
}

// windowsCycles returns desktop cycles followed by server cycles.
func (fr *flowRun) windowsCycles(ctx context.Context, task config.Task) (*core.Table, error) {
	var s endoflife.Secrets
	if err := vault.Read(ctx, fr.deps.Secrets, task.Secrets.MountPoint, task.Secrets.Path, &s); err != nil {
		return nil, err
	}
	src, err := endoflife.NewSource(s, fr.deps.Transport, fr.Log)
	if err != nil {
		return nil, err
	}
	out, err := src.Windows(ctx)
	if err != nil {
		return nil, err
	}
	server, err := src.WindowsServer(ctx)
	if err != nil {
		return nil, err
	}
	out.Concat(server)
	return out, nil
}
