package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nucleus/etl-flows/internal/flows"
	"github.com/nucleus/etl-flows/internal/vault"
)

var runCmd = &cobra.Command{
	Use:   "run <flow>",
	Short: "Run one flow now",
	Long:  "Runs the named flow once against its task document, prints the results summary and exits non-zero when any task failed.",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlow,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runFlow(cmd *cobra.Command, args []string) error {
	name := args[0]
	if _, ok := flows.DefaultRegistry().Get(name); !ok {
		return fmt.Errorf("unknown flow %q (see etl-flows list)", name)
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := newDeps(ctx)
	if err != nil {
		return err
	}
	d.Out = cmd.OutOrStdout()
	return flows.DefaultRegistry().Run(ctx, name, d)
}

// newDeps connects to vault with the process settings.
func newDeps(ctx context.Context) (*flows.Deps, error) {
	secrets, err := vault.NewClient(ctx, vault.Config{
		Address:    settings.VaultAddr,
		Token:      settings.VaultToken,
		AuthMethod: settings.VaultAuthMethod,
		CACert:     settings.VaultCACert,
		ClientCert: settings.VaultClientCert,
		ClientKey:  settings.VaultClientKey,
		Namespace:  settings.VaultNamespace,
	}, log)
	if err != nil {
		return nil, err
	}
	return &flows.Deps{Settings: settings, Secrets: secrets, Log: log}, nil
}
