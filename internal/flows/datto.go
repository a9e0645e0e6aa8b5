package flows

import (
	"context"
	"fmt"

	"github.com/nucleus/etl-flows/internal/config"
	"github.com/nucleus/etl-flows/internal/connector/datto"
	"github.com/nucleus/etl-flows/internal/core"
	"github.com/nucleus/etl-flows/internal/transform"
	"github.com/nucleus/etl-flows/internal/vault"
)

// RMM flow names.
const (
	DattoAccount        = "stg_api_datto_rmm_account"
	DattoSites          = "stg_api_datto_rmm_account_sites"
	DattoMonitorsOpen   = "stg_api_datto_rmm_monitors_open"
	DattoMonitorsClosed = "stg_api_datto_rmm_monitors_resolved"
	DattoVariables      = "stg_api_datto_rmm_account_site_variables"
	DattoActivityJob    = "stg_api_datto_rmm_activity_logs_job"
	DattoActivityPatch  = "stg_api_datto_rmm_activity_logs_patch"
	DattoDevices        = "stg_api_datto_rmm_devices"
)

func init() {
	Register(DattoAccount, func(ctx context.Context, d *Deps) error {
		return execute(ctx, DattoAccount, d, func(ctx context.Context, fr *flowRun) error {
			return fr.pipeline(ctx, stage{extract: fr.dattoExtract(func(ctx context.Context, src *datto.Source, _ config.Task) (*core.Table, error) {
				return src.Account(ctx)
			})})
		})
	})
	Register(DattoSites, func(ctx context.Context, d *Deps) error {
		return execute(ctx, DattoSites, d, func(ctx context.Context, fr *flowRun) error {
			return fr.pipeline(ctx, stage{extract: fr.dattoExtract(func(ctx context.Context, src *datto.Source, _ config.Task) (*core.Table, error) {
				return src.Sites(ctx)
			})})
		})
	})
	Register(DattoMonitorsOpen, func(ctx context.Context, d *Deps) error {
		return execute(ctx, DattoMonitorsOpen, d, func(ctx context.Context, fr *flowRun) error {
			return fr.pipeline(ctx, stage{
				extract:   fr.dattoExtract(openAlerts),
				transform: transform.Alerts,
			})
		})
	})
	Register(DattoMonitorsClosed, func(ctx context.Context, d *Deps) error {
		return execute(ctx, DattoMonitorsClosed, d, func(ctx context.Context, fr *flowRun) error {
			return fr.pipeline(ctx, stage{
				extract:   fr.dattoExtract(fr.resolvedAlerts),
				transform: transform.Alerts,
			})
		})
	})
	Register(DattoVariables, func(ctx context.Context, d *Deps) error {
		return execute(ctx, DattoVariables, d, func(ctx context.Context, fr *flowRun) error {
			return fr.pipeline(ctx, stage{extract: fr.dattoExtract(variables)})
		})
	})
	Register(DattoActivityJob, func(ctx context.Context, d *Deps) error {
		return execute(ctx, DattoActivityJob, d, func(ctx context.Context, fr *flowRun) error {
			return fr.pipeline(ctx, stage{
				extract:   fr.dattoExtract(fr.activityLogs("job")),
				transform: transform.ActivityLogs,
			})
		})
	})
	Register(DattoActivityPatch, func(ctx context.Context, d *Deps) error {
		return execute(ctx, DattoActivityPatch, d, func(ctx context.Context, fr *flowRun) error {
			return fr.pipeline(ctx, stage{
				extract:   fr.dattoExtract(fr.activityLogs("patch")),
				transform: transform.ActivityLogs,
			})
		})
	})
	Register(DattoDevices, func(ctx context.Context, d *Deps) error {
		return execute(ctx, DattoDevices, d, func(ctx context.Context, fr *flowRun) error {
			return fr.pipeline(ctx, stage{
				extract: fr.dattoExtract(func(ctx context.Context, src *datto.Source, task config.Task) (*core.Table, error) {
					return src.Devices(ctx, task.Timestamps.Now)
				}),
				transform: func(t *core.Table) (*core.Table, error) {
					return transform.Devices(t, transform.DevicePolicy{
						Now:            fr.Now,
						StaleAfterDays: fr.deps.Settings.StaleAfterDays,
					})
				},
			})
		})
	})
}

type dattoFetch func(ctx context.Context, src *datto.Source, task config.Task) (*core.Table, error)

// dattoExtract authenticates with the task's secret before fetching.
func (fr *flowRun) dattoExtract(fetch dattoFetch) func(context.Context, config.Task) (*core.Table, error) {
	return func(ctx context.Context, task config.Task) (*core.Table, error) {
		var s datto.Secrets
		if err := vault.Read(ctx, fr.deps.Secrets, task.Secrets.MountPoint, task.Secrets.Path, &s); err != nil {
			return nil, err
		}
		rps, err := floatOption(task, "rate_limit", 0)
		if err != nil {
			return nil, err
		}
		src, err := datto.NewSource(ctx, s, datto.Options{
			Transport: fr.deps.Transport,
			RateLimit: rps,
			Logger:    fr.Log,
		})
		if err != nil {
			return nil, err
		}
		return fetch(ctx, src, task)
	}
}

func account(ctx context.Context, src *datto.Source) (datto.Parent, error) {
	t, err := src.Account(ctx)
	if err != nil {
		return datto.Parent{}, err
	}
	return datto.AccountParent(t)
}

func openAlerts(ctx context.Context, src *datto.Source, _ config.Task) (*core.Table, error) {
	acct, err := account(ctx, src)
	if err != nil {
		return nil, err
	}
	return src.OpenAlerts(ctx, acct)
}

// resolvedAlerts keeps alerts raised within lookback_days of the extraction.
func (fr *flowRun) resolvedAlerts(ctx context.Context, src *datto.Source, task config.Task) (*core.Table, error) {
	days, err := intOption(task, "lookback_days", fr.deps.Settings.AlertLookbackDays)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		return nil, fmt.Errorf("lookback_days must be positive, got %d", days)
	}
	acct, err := account(ctx, src)
	if err != nil {
		return nil, err
	}
	return src.ResolvedAlerts(ctx, acct, task.Timestamps.Now.AddDate(0, 0, -days))
}

// variables collects account-scoped variables followed by each site's.
func variables(ctx context.Context, src *datto.Source, _ config.Task) (*core.Table, error) {
	out, err := src.AccountVariables(ctx, datto.AccountScope)
	if err != nil {
		return nil, err
	}
	sites, err := src.Sites(ctx)
	if err != nil {
		return nil, err
	}
	siteVars, err := src.SiteVariables(ctx, datto.SiteParents(sites))
	if err != nil {
		return nil, err
	}
	out.Concat(siteVars)
	return out, nil
}

// activityLogs lists the window [now - lookback_days, now] for the
// task's categories, falling back to category.
func (fr *flowRun) activityLogs(category string) dattoFetch {
	return func(ctx context.Context, src *datto.Source, task config.Task) (*core.Table, error) {
		days, err := intOption(task, "lookback_days", fr.deps.Settings.ActivityLookbackDays)
		if err != nil {
			return nil, err
		}
		size, err := intOption(task, "page_size", 0)
		if err != nil {
			return nil, err
		}
		categories := task.OptionList("categories")
		if len(categories) == 0 {
			categories = []string{category}
		}
		now := task.Timestamps.Now
		return src.ActivityLogs(ctx, datto.ActivityQuery{
			Size:       size,
			From:       now.AddDate(0, 0, -days),
			Until:      now,
			Categories: categories,
			Entities:   task.OptionList("entities"),
		})
	}
}
