package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nucleus/etl-flows/internal/core"
	"github.com/nucleus/etl-flows/internal/logger"
)

// Stage classifies a task.
type Stage string

const (
	StageExtract   Stage = "extract"
	StageTransform Stage = "transform"
	StageLoad      Stage = "load"
)

// MaxConcurrentLoads bounds RunLoads.
const MaxConcurrentLoads = 2

var (
	// ErrFlowAborted is returned when an extract fails and loads are skipped.
	ErrFlowAborted = errors.New("flow aborted")
	// ErrLoadFailed is returned when at least one load failed.
	ErrLoadFailed = errors.New("load failed")
)

// Task names one step of a flow.
type Task struct {
	Name  string
	Stage Stage
	Tags  []string
}

// Run is the state of one flow execution.
type Run struct {
	ID      string
	Flow    string
	Now     time.Time
	Log     logger.Logger
	Results *Results
	Metrics *Metrics
}

// NewRun starts a run of flow at now with a fresh id.
func NewRun(flow string, now time.Time, log logger.Logger) *Run {
	if log == nil {
		log = logger.NewNop()
	}
	id := uuid.NewString()
	return &Run{
		ID:      id,
		Flow:    flow,
		Now:     now.UTC(),
		Log:     log.With(logger.String("flow", flow), logger.String("run_id", id)),
		Results: NewResults(),
		Metrics: NewMetrics(),
	}
}

// Issue records a warning against a task and logs it.
func (r *Run) Issue(task, format string, args ...any) {
	r.Results.AddIssue(task, format, args...)
	r.Log.Warn(fmt.Sprintf(format, args...), logger.String("task", task))
}

func (r *Run) record(task Task, meta core.Meta, ok bool, d time.Duration) {
	e := Entry{Stage: task.Stage, Meta: meta, Duration: d, Succeeded: ok}
	r.Results.Add(e)
	r.Metrics.observe(r.Flow, task.Name, task.Stage, e.OK(), d)

	fields := []logger.Field{
		logger.String("task", task.Name),
		logger.String("stage", string(task.Stage)),
		logger.Strings("tags", task.Tags),
		logger.Int("status_code", meta.StatusCode),
		logger.Duration("duration", d),
	}
	if e.OK() {
		r.Log.Info(meta.Message, fields...)
	} else {
		r.Log.Error(meta.Message, fields...)
	}
}

type sized interface{ Len() int }

func successMessage(v any) string {
	if s, ok := v.(sized); ok {
		return fmt.Sprintf("%d rows", s.Len())
	}
	return "completed"
}

// Execute runs fn as one recorded task and returns its envelope. The error
// is returned unchanged so callers can tell fatal failures apart.
func Execute[T any](ctx context.Context, run *Run, task Task, fn func(context.Context) (T, error)) (core.Result[T], error) {
	start := time.Now()
	data, err := fn(ctx)
	var res core.Result[T]
	if err != nil {
		res = core.Failure[T](task.Name, err)
	} else {
		res = core.Success(data, task.Name, successMessage(data))
	}
	run.record(task, res.Meta, res.OK(), time.Since(start))
	return res, err
}

// Extract runs an extract task. Fatal model errors pass through; any other
// failure is wrapped in ErrFlowAborted.
func Extract(ctx context.Context, run *Run, task Task, fn func(context.Context) (*core.Table, error)) (*core.Table, error) {
	if task.Stage == "" {
		task.Stage = StageExtract
	}
	res, err := Execute(ctx, run, task, fn)
	if err != nil {
		if core.IsFatal(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrFlowAborted, task.Name, err)
	}
	return res.Data, nil
}

// Transform runs a dataset transform over in. Every failure is fatal.
func Transform(ctx context.Context, run *Run, task Task, in *core.Table, fn func(*core.Table) (*core.Table, error)) (*core.Table, error) {
	if task.Stage == "" {
		task.Stage = StageTransform
	}
	res, err := Execute(ctx, run, task, func(context.Context) (*core.Table, error) {
		return fn(in)
	})
	if err != nil {
		var te *core.TransformError
		if !errors.As(err, &te) {
			err = &core.TransformError{Step: task.Name, Err: err}
		}
		return nil, err
	}
	return res.Data, nil
}

// Load is one sink invocation.
type Load struct {
	Task Task
	Rows int
	Fn   func(context.Context) core.Result[string]
}

// RunLoads runs loads with at most MaxConcurrentLoads in flight. Every load
// runs to completion and records its own envelope; failures are joined
// under ErrLoadFailed.
func RunLoads(ctx context.Context, run *Run, loads ...Load) error {
	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures []string
	)
	g.SetLimit(MaxConcurrentLoads)
	for _, l := range loads {
		l := l
		if l.Task.Stage == "" {
			l.Task.Stage = StageLoad
		}
		g.Go(func() error {
			start := time.Now()
			res := l.Fn(ctx)
			if res.Meta.JobTitle == "" {
				res.Meta.JobTitle = l.Task.Name
			}
			run.record(l.Task, res.Meta, res.OK(), time.Since(start))
			if !res.OK() {
				mu.Lock()
				failures = append(failures, l.Task.Name+": "+res.Meta.Message)
				mu.Unlock()
				return nil
			}
			run.Metrics.RowsLoaded.WithLabelValues(run.Flow, l.Task.Name).Set(float64(l.Rows))
			return nil
		})
	}
	_ = g.Wait()
	if len(failures) > 0 {
		return fmt.Errorf("%w: %s", ErrLoadFailed, strings.Join(failures, "; "))
	}
	return nil
}
