package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/talgya/hexatlas/internal/config"
	"github.com/talgya/hexatlas/internal/persistence"
	"github.com/talgya/hexatlas/internal/printer"
)

// app carries state shared by all subcommands of one invocation.
type app struct {
	cfgPath  string
	logLevel string
	logJSON  bool
	logFile  string

	cfg       *config.Config
	logCloser io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "hexatlas",
		Short: "Geographic hex maps with terrain classification and regions",
		Long: `hexatlas lays a hexagonal grid over a point on the Earth, projects every
hex center with Vincenty's formulae, classifies terrain from environmental
attributes and splits the map into contiguous, balanced regions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logCloser != nil {
				a.logCloser.Close()
			}
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "path to hexatlas.yml")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&a.logJSON, "log-json", false, "log as JSON")
	root.PersistentFlags().StringVar(&a.logFile, "log-file", "", "also log to this file, rotated by size")

	root.AddCommand(newGenerateCmd(a), newServeCmd(a), newRunsCmd(a))
	return root
}

// setup loads the configuration and installs the default logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	printer.Out = cmd.OutOrStdout()
	printer.Err = cmd.ErrOrStderr()

	cfg, err := config.LoadOrDefault(a.cfgPath)
	if err != nil {
		return printer.Error("Invalid configuration", err.Error(),
			"fix the file passed with --config", "run without --config to use the defaults")
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON = a.logJSON
	}
	if flags.Changed("log-file") {
		cfg.Log.File = a.logFile
	}

	logger, closer, err := config.NewLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return printer.Error("Invalid logging options", err.Error())
	}
	slog.SetDefault(logger)
	a.cfg = cfg
	a.logCloser = closer
	return nil
}

// openDB opens the run store, creating its directory.
func (a *app) openDB(path string) (*persistence.DB, error) {
	if path == "" {
		path = a.cfg.Database.Path
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := persistence.Open(path)
	if err != nil {
		return nil, err
	}
	slog.Info("database opened", "path", path)
	return db, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
