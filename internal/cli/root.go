// Package cli implements the lifecyclectl operator commands.
package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/digiurban/lifecycle/internal/calendar"
	"github.com/digiurban/lifecycle/internal/config"
	"github.com/digiurban/lifecycle/internal/definition"
	"github.com/digiurban/lifecycle/internal/lifecycle"
	"github.com/digiurban/lifecycle/internal/observability"
	"github.com/digiurban/lifecycle/internal/store"
)

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed)
	warnColor = color.New(color.FgYellow)
	headColor = color.New(color.Bold)
)

// NewRootCmd builds the lifecyclectl command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:     "lifecyclectl",
		Short:   "Operate the protocol lifecycle service",
		Version: version,
		Long: `lifecyclectl inspects workflow definitions and holiday calendars, validates
form submissions and runs maintenance against the protocol store configured
for lifecycled.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", os.Getenv("LIFECYCLE_CONFIG"), "path to configuration file")
	root.PersistentFlags().Bool("verbose", false, "log engine activity to stderr")

	root.AddCommand(WorkflowsCmd())
	root.AddCommand(SweepCmd())
	root.AddCommand(PurgeCmd())
	root.AddCommand(ValidateFormCmd())
	root.AddCommand(HolidaysCmd())

	return root
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func loadRegistry(cfg *config.Config) (*definition.Registry, error) {
	defs, err := definition.Load(cfg.Definitions.Directories, cfg.Definitions.SeedDefaults)
	if err != nil {
		return nil, err
	}
	return definition.NewRegistry(defs), nil
}

// openLifecycle wires the engines against the configured store. The caller
// must invoke the returned close function.
func openLifecycle(cmd *cobra.Command) (*lifecycle.Lifecycle, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	registry, err := loadRegistry(cfg)
	if err != nil {
		return nil, nil, err
	}
	cal, err := calendar.Open(cfg.Calendar.HolidaysFile, cfg.Location())
	if err != nil {
		return nil, nil, err
	}

	logger := zap.NewNop()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		if logger, err = observability.NewLogger(cfg.Observability); err != nil {
			return nil, nil, err
		}
	}

	st, closeStore, err := store.Open(cmd.Context(), cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Store.Driver == "memory" {
		warnColor.Fprintln(cmd.ErrOrStderr(), "warning: memory store configured, nothing persists between runs")
	}

	lc := lifecycle.New(st, registry,
		lifecycle.WithCalendar(cal),
		lifecycle.WithLogger(logger),
		lifecycle.WithNearDueDays(cfg.SLA.NearDueDays),
	)
	return lc, func() {
		closeStore()
		logger.Sync()
	}, nil
}

func checkMark(ok bool) string {
	if ok {
		return okColor.Sprint("✓")
	}
	return failColor.Sprint("✗")
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
