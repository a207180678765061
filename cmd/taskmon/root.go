package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/opd-ai/go-taskmon/internal/config"
	"github.com/opd-ai/go-taskmon/internal/profiling"
	"github.com/opd-ai/go-taskmon/pkg/taskmon"
)

// app holds the global flags and the state shared by every subcommand.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	cpuProfile string
	memProfile string

	out     io.Writer
	errOut  io.Writer
	session *profiling.Session

	// newLoader replaces the platform loader in tests.
	newLoader func(taskmon.LoaderOptions) (taskmon.Loader, error)
}

func newApp(out, errOut io.Writer) *app {
	return &app{out: out, errOut: errOut}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "taskmon",
		Short: "Process and system resource monitor",
		Long: `taskmon samples the process table and system counters on a fixed
interval, keeping a short history of every series.

Configuration is read from a Lua or YAML file given with -c; without one
the built-in defaults apply.`,
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: a.beginProfiling,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.endProfiling()
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate(fmt.Sprintf("taskmon version %s\n", Version))

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "path to a Lua or YAML configuration file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format override (text, json)")
	flags.StringVar(&a.cpuProfile, "cpuprofile", "", "write a CPU profile to file")
	flags.StringVar(&a.memProfile, "memprofile", "", "write a heap profile to file on exit")

	root.AddCommand(
		a.watchCommand(),
		a.snapshotCommand(),
		a.serveCommand(),
		a.versionCommand(),
	)
	return root
}

func (a *app) beginProfiling(*cobra.Command, []string) error {
	opts := profiling.Options{CPUPath: a.cpuProfile, HeapPath: a.memProfile}
	if !opts.Enabled() {
		return nil
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	opts.Logger = a.logger(cfg)
	a.session = profiling.NewSession(opts)
	if err := a.session.Begin(); err != nil {
		return fmt.Errorf("failed to start profiling: %w", err)
	}
	return nil
}

func (a *app) endProfiling() error {
	if a.session == nil {
		return nil
	}
	return a.session.End()
}

// loadConfig reads the configuration file, or the defaults without one,
// and applies the logging flags.
func (a *app) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if a.configPath == "" {
		def := config.DefaultConfig()
		cfg = &def
	} else {
		var err error
		if cfg, err = config.Load(a.configPath); err != nil {
			return nil, err
		}
	}

	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *app) logger(cfg *config.Config) *slog.Logger {
	return taskmon.NewLogger(a.errOut, cfg.SlogLevel(), cfg.LogFormat).Slog()
}

// openMonitor creates a monitor for the configured source. opts is filled
// with the logger and loader factory.
func (a *app) openMonitor(cfg *config.Config, opts taskmon.Options) (taskmon.Monitor, error) {
	opts.Logger = taskmon.NewSlogAdapter(a.logger(cfg))
	if a.newLoader != nil {
		opts.NewLoader = a.newLoader
	}
	if a.configPath != "" {
		return taskmon.New(a.configPath, &opts)
	}
	return taskmon.NewFromConfig(*cfg, &opts)
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "taskmon version %s\n", Version)
		},
	}
}
