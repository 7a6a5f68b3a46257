package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/INLOpen/loged/config"
	"github.com/INLOpen/loged/hooks"
	"github.com/INLOpen/loged/hooks/listeners"
	"github.com/INLOpen/loged/store"
)

// app carries what every subcommand needs once the config is loaded.
type app struct {
	configPath string
	storePath  string

	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	stdout    io.Writer
	stderr    io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "loged",
		Short:         "Fixed-capacity memory-mapped log store",
		Long:          "loged manages append-only log files of fixed capacity that wrap around and overwrite their oldest entries when full.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logCloser != nil {
				return a.logCloser.Close()
			}
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "loged.yaml", "config file (.yaml or .toml); a missing file means defaults")
	root.PersistentFlags().StringVarP(&a.storePath, "store", "s", "", "store file, overrides store.path")

	root.AddCommand(
		newCreateCmd(a),
		newAppendCmd(a),
		newCatCmd(a),
		newExportCmd(a),
		newReadExportCmd(a),
		newInfoCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.storePath != "" {
		cfg.Store.Path = a.storePath
	}
	logger, closer, err := createLogger(cfg.Logging, a.stderr)
	if err != nil {
		return err
	}
	a.cfg, a.logger, a.logCloser = cfg, logger, closer
	return nil
}

// createLogger builds the CLI logger from the logging section. stderr is
// the destination of the "stderr" output.
func createLogger(cfg config.LoggingConfig, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("invalid log level: %s", cfg.Level)
	}

	var output io.Writer
	var closer io.Closer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	case "stderr":
		output = stderr
	case "file":
		if cfg.File == "" {
			return nil, nil, fmt.Errorf("log output is 'file' but no file path is specified")
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		output = file
		closer = file
	case "none":
		output = io.Discard
	default:
		return nil, nil, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	logger := slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level}))
	return logger, closer, nil
}

// storeOptions translates the store section into store.Options, with the
// hooks and metrics the config enables.
func (a *app) storeOptions() (store.Options, error) {
	sc := a.cfg.Store
	if sc.Path == "" {
		return store.Options{}, fmt.Errorf("no store path: set store.path or pass --store")
	}
	mask, err := sc.LevelMask()
	if err != nil {
		return store.Options{}, err
	}
	syncMode, err := store.ParseSyncMode(sc.SyncMode)
	if err != nil {
		return store.Options{}, err
	}
	opts := store.Options{
		Path:        sc.Path,
		MaxSize:     sc.MaxSizeBytes,
		StartPos:    sc.StartPosBytes,
		LevelMask:   mask,
		AuditOnly:   sc.AuditOnly,
		SyncMode:    syncMode,
		Preallocate: sc.Preallocate,
		LockTimeout: config.ParseDuration(sc.LockTimeout, 0, a.logger),
		Logger:      a.logger,
		HookManager: a.hookManager(),
	}
	if a.cfg.Metrics.Enabled {
		opts.Metrics = store.PublishMetrics(a.cfg.Metrics.Prefix)
	}
	return opts, nil
}

func (a *app) hookManager() hooks.HookManager {
	hc := a.cfg.Hooks
	hm := hooks.NewHookManager(a.logger.With("component", "HookManager"))
	if hc.WrapAlert {
		hm.Register(hooks.EventOnWrap, listeners.NewWrapAlerterListener(a.logger))
	}
	if hc.SeverityCounters {
		counter := listeners.NewSeverityCounterListener(a.logger)
		hm.Register(hooks.EventPostAppend, counter)
		hm.Register(hooks.EventOnPolicyReject, counter)
	}
	if len(hc.FieldBounds) > 0 {
		rules := make([]listeners.FieldRule, len(hc.FieldBounds))
		for i, fb := range hc.FieldBounds {
			rules[i] = listeners.FieldRule{
				Field:      fb.Field,
				Thresholds: listeners.Thresholds{Min: fb.Min, Max: fb.Max},
				Reject:     fb.Reject,
			}
		}
		hm.Register(hooks.EventPreAppend, listeners.NewFieldBoundsListener(a.logger, rules))
	}
	return hm
}

// openStore opens the configured store for writing.
func (a *app) openStore() (*store.Store, func(), error) {
	opts, err := a.storeOptions()
	if err != nil {
		return nil, nil, err
	}
	s, err := store.Open(opts)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := s.Close(); err != nil {
			a.logger.Error("Failed to close store", "path", opts.Path, "error", err)
		}
		opts.HookManager.Stop()
	}
	return s, cleanup, nil
}

// pathsOrStore returns args, or the configured store when none are given.
func (a *app) pathsOrStore(args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if a.cfg.Store.Path == "" {
		return nil, fmt.Errorf("no store path: pass a file or set store.path")
	}
	return []string{a.cfg.Store.Path}, nil
}
