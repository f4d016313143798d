// Package cli implements the retailbi command-line interface.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"retail-bi/internal/config"
	"retail-bi/internal/observability"
	"retail-bi/pkg/version"
)

// app carries the global flags and the state initConfig derives from them.
type app struct {
	cfgFile  string
	logLevel string

	cfg    *config.Config
	logger *slog.Logger
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the command tree. Each call returns independent flag
// state.
func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "retailbi",
		Short: "Retail sales analytics pipeline and dashboard",
		Long: `retailbi turns a table of retail sales transactions into business
intelligence: monthly sales with a linear forecast, product associations for
bundling, RFM customer segments and seasonal patterns.

Results are written as flat CSV/XLSX tables with 'run', or served read-only
over HTTP with a live dashboard with 'serve'.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "",
		"config file (default: ./retailbi.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "",
		"log level (debug, info, warn, error)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newGenerateCmd(a))

	return rootCmd
}

func (a *app) initConfig() error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}

	if a.logLevel != "" {
		cfg.Logger.Level = a.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	a.cfg = cfg
	a.logger = observability.NewLogger(cfg.Logger)
	slog.SetDefault(a.logger)
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version.Info())
		},
	}
}
