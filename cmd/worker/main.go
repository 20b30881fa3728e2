// Command worker runs the frame-extraction worker and its operator tooling.
//
// Subcommands:
//
//	run      consume jobs, relay retries, expire old archives, serve admin endpoints
//	migrate  apply pending database migrations and exit
//	enqueue  create a job and publish it to the job queue
//	cancel   cancel a job no worker has picked up yet
//	status   print a job and its event history
package main

import (
	"fmt"
	"os"

	// Sets GOMEMLIMIT from the cgroup memory limit.
	_ "github.com/KimMachineGun/automemlimit"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"frame-worker/internal/config"
	"frame-worker/internal/infra/logging"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

type rootFlags struct {
	configPath string
	dev        bool
}

func main() {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "worker",
		Short:         "Frame extraction worker",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to YAML config file (env vars override)")
	root.PersistentFlags().BoolVar(&flags.dev, "dev", false, "development mode (console logs)")

	root.AddCommand(
		runCmd(flags),
		migrateCmd(flags),
		enqueueCmd(flags),
		cancelCmd(flags),
		statusCmd(flags),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func (f *rootFlags) load() (*config.Config, *zerolog.Logger, error) {
	cfg, err := config.Load(f.configPath, f.dev)
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	return cfg, logger, nil
}
