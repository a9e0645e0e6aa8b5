package flows

import (
	"context"
	"fmt"
	"strconv"

	"github.com/nucleus/etl-flows/internal/config"
	"github.com/nucleus/etl-flows/internal/connector/minio"
	"github.com/nucleus/etl-flows/internal/core"
	"github.com/nucleus/etl-flows/internal/logger"
	"github.com/nucleus/etl-flows/internal/orchestration"
)

// flowRun is one execution of a flow over its stamped task document.
type flowRun struct {
	*orchestration.Run
	deps  *Deps
	tasks config.Tasks
}

// execute loads the flow's task document, runs body and reports. The summary
// is rendered and metrics pushed whatever body returns.
func execute(ctx context.Context, name string, d *Deps, body func(context.Context, *flowRun) error) error {
	d = d.withDefaults()
	now := d.Clock().UTC()
	tasks, err := config.LoadTasks(config.TaskFile(d.Settings.ConfigDir, name), now)
	if err != nil {
		return err
	}

	run := orchestration.NewRun(name, now, d.Log)
	run.Log.Info("flow started", logger.Int("tasks", len(tasks)))
	err = body(ctx, &flowRun{Run: run, deps: d, tasks: tasks})

	run.Results.Render(d.Out, run.ID, name)
	if url := d.Settings.PushgatewayURL; url != "" {
		if perr := run.Metrics.Push(ctx, url, name); perr != nil {
			run.Log.Warn("push metrics", logger.Err(perr))
		}
	}
	if err != nil {
		run.Log.Error("flow failed", logger.Err(err))
		return err
	}
	run.Log.Info("flow finished", logger.Int("failed", run.Results.Failed()))
	return nil
}

func tags(stage orchestration.Stage, task config.Task, extra ...string) []string {
	return append([]string{string(stage), task.Data.Origin, task.Details.Product}, extra...)
}

// extract runs task i through fn and stamps the lineage columns.
func (fr *flowRun) extract(ctx context.Context, i int, fn func(context.Context, config.Task) (*core.Table, error)) (*core.Table, error) {
	task, err := fr.tasks.At(i)
	if err != nil {
		return nil, err
	}
	t, err := orchestration.Extract(ctx, fr.Run, orchestration.Task{
		Name: task.Title(), Stage: orchestration.StageExtract, Tags: tags(orchestration.StageExtract, task),
	}, func(ctx context.Context) (*core.Table, error) {
		return fn(ctx, task)
	})
	if err != nil {
		return nil, err
	}
	return orchestration.AddMarkers(t, task), nil
}

func (fr *flowRun) transform(ctx context.Context, i int, in *core.Table, fn func(*core.Table) (*core.Table, error)) (*core.Table, error) {
	task, err := fr.tasks.At(i)
	if err != nil {
		return nil, err
	}
	return orchestration.Transform(ctx, fr.Run, orchestration.Task{
		Name: task.Title(), Stage: orchestration.StageTransform, Tags: tags(orchestration.StageTransform, task),
	}, in, fn)
}

// objectLoad uploads t with the sink of task i.
func (fr *flowRun) objectLoad(i int, t *core.Table) (orchestration.Load, error) {
	task, err := fr.tasks.At(i)
	if err != nil {
		return orchestration.Load{}, err
	}
	return orchestration.Load{
		Task: orchestration.Task{Name: task.Title(), Stage: orchestration.StageLoad, Tags: tags(orchestration.StageLoad, task, "minio")},
		Rows: t.Len(),
		Fn: func(ctx context.Context) core.Result[string] {
			store, err := fr.deps.ObjectStore(ctx, task)
			if err != nil {
				return core.Failure[string](task.Title(), err)
			}
			return minio.NewSink(store, fr.Log).Load(ctx, t, task)
		},
	}, nil
}

// tableLoad replaces the relational table of task i with t.
func (fr *flowRun) tableLoad(i int, t *core.Table) (orchestration.Load, error) {
	task, err := fr.tasks.At(i)
	if err != nil {
		return orchestration.Load{}, err
	}
	return orchestration.Load{
		Task: orchestration.Task{Name: task.Title(), Stage: orchestration.StageLoad, Tags: tags(orchestration.StageLoad, task, "postgresql")},
		Rows: t.Len(),
		Fn: func(ctx context.Context) core.Result[string] {
			db, err := fr.deps.Database(ctx, task)
			if err != nil {
				return core.Failure[string](task.Title(), err)
			}
			defer func() {
				if err := db.Close(); err != nil {
					fr.Log.Warn("close database", logger.String("task", task.Title()), logger.Err(err))
				}
			}()
			return db.Load(ctx, t, task)
		},
	}, nil
}

// stage describes the common extract, transform, store, table shape.
type stage struct {
	extract   func(context.Context, config.Task) (*core.Table, error)
	transform func(*core.Table) (*core.Table, error)
	// forTable adjusts a copy of the dataset for the relational load only.
	forTable func(*core.Table)
}

// pipeline runs task 0 as the extract, task 1 as the transform when one is
// set, then the next two tasks as the object and relational loads.
func (fr *flowRun) pipeline(ctx context.Context, s stage) error {
	t, err := fr.extract(ctx, 0, s.extract)
	if err != nil {
		return err
	}
	next := 1
	if s.transform != nil {
		if t, err = fr.transform(ctx, next, t, s.transform); err != nil {
			return err
		}
		next++
	}

	objects, err := fr.objectLoad(next, t)
	if err != nil {
		return err
	}
	rel := t
	if s.forTable != nil {
		rel = t.Clone()
		s.forTable(rel)
	}
	tables, err := fr.tableLoad(next+1, rel)
	if err != nil {
		return err
	}
	return orchestration.RunLoads(ctx, fr.Run, objects, tables)
}

// intOption reads an integer task option. A malformed value is an error.
func intOption(task config.Task, key string, fallback int) (int, error) {
	raw := task.Option(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("option %s: %w", key, err)
	}
	return n, nil
}

func floatOption(task config.Task, key string, fallback float64) (float64, error) {
	raw := task.Option(key, "")
	if raw == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("option %s: %w", key, err)
	}
	return f, nil
}
