package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nucleus/etl-flows/internal/flows"
	"github.com/nucleus/etl-flows/internal/logger"
	"github.com/nucleus/etl-flows/internal/orchestration"
)

var scheduleSpecs []string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run flows on cron schedules until interrupted",
	Long: `Runs each flow on its cron schedule (UTC) until SIGINT or SIGTERM.

  etl-flows schedule --cron "stg_api_datto_rmm_devices=0 */4 * * *" --cron "mart_datto_rmm_devices=@daily"`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringArrayVar(&scheduleSpecs, "cron", nil, `Schedule as "<flow>=<cron spec>" (repeatable)`)
	_ = scheduleCmd.MarkFlagRequired("cron")
	rootCmd.AddCommand(scheduleCmd)
}

// parseSchedules splits "<flow>=<spec>" pairs and checks every flow exists.
func parseSchedules(specs []string, reg *flows.Registry) (map[string]string, error) {
	out := make(map[string]string, len(specs))
	for _, s := range specs {
		name, spec, ok := strings.Cut(s, "=")
		name, spec = strings.TrimSpace(name), strings.TrimSpace(spec)
		if !ok || name == "" || spec == "" {
			return nil, fmt.Errorf("invalid schedule %q, want <flow>=<cron spec>", s)
		}
		if _, ok := reg.Get(name); !ok {
			return nil, fmt.Errorf("unknown flow %q", name)
		}
		out[name] = spec
	}
	return out, nil
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	reg := flows.DefaultRegistry()
	schedules, err := parseSchedules(scheduleSpecs, reg)
	if err != nil {
		return err
	}

	sched := orchestration.NewScheduler(log)
	for name, spec := range schedules {
		name := name
		err := sched.Add(name, spec, func(ctx context.Context) error {
			d, err := newDeps(ctx)
			if err != nil {
				return err
			}
			d.Out = cmd.OutOrStdout()
			return reg.Run(ctx, name, d)
		})
		if err != nil {
			return err
		}
	}
	for flow, next := range sched.Flows() {
		log.Info("next run", logger.String("flow", flow), logger.String("at", next))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sched.Start()
	<-ctx.Done()

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	sched.Stop(shutdown)
	return nil
}
