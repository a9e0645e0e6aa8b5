package orchestration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nucleus/etl-flows/internal/logger"
)

// Scheduler runs flows on cron schedules. A tick is skipped while the
// previous run of the same flow is still going. Runs share a context that
// Stop cancels.
type Scheduler struct {
	cron    *cron.Cron
	log     logger.Logger
	mu      sync.Mutex
	entries map[string]cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a stopped scheduler. Schedules use the standard
// five-field syntax plus descriptors such as @hourly, evaluated in UTC.
func NewScheduler(log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	cl := cronLogger{log: log}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log:     log,
		entries: make(map[string]cron.EntryID),
	}
}

// Add schedules fn for flow. Adding a flow twice replaces its schedule.
func (s *Scheduler) Add(flow, spec string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[flow]; ok {
		s.cron.Remove(id)
		delete(s.entries, flow)
	}
	id, err := s.cron.AddFunc(spec, func() {
		if err := fn(s.ctx); err != nil {
			s.log.Warn("scheduled flow failed", logger.String("flow", flow), logger.Err(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", flow, spec, err)
	}
	s.entries[flow] = id
	s.log.Info("flow scheduled", logger.String("flow", flow), logger.String("spec", spec))
	return nil
}

// Flows lists the scheduled flows with their next activation.
func (s *Scheduler) Flows() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.entries))
	for flow, id := range s.entries {
		out[flow] = s.cron.Entry(id).Next.String()
	}
	return out
}

// Start begins dispatching in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", logger.Int("flows", len(s.entries)))
}

// Stop stops dispatching, cancels running flows and waits for them to
// return or for ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(kvFields(keysAndValues), logger.Err(err))...)
}

func kvFields(kv []any) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
