package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/span/internal/checkpoint"
	"github.com/bamsammich/span/internal/config"
	"github.com/bamsammich/span/internal/engine"
	"github.com/bamsammich/span/internal/event"
	"github.com/bamsammich/span/internal/metrics"
	"github.com/bamsammich/span/internal/platform"
	"github.com/bamsammich/span/internal/stats"
	"github.com/bamsammich/span/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// flags holds the root command's flag values.
type flags struct {
	freePercent int
	retries     int
	retryDelay  time.Duration
	stateFile   string
	logFile     string
	bwLimit     sizeFlag
	metricsAddr string
	verbose     bool
	quiet       bool
	reset       bool
	showVersion bool
}

func run() int {
	var f flags
	rootCmd := newRootCmd(&f)

	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

// newRootCmd builds the span command tree with its flags bound to f.
func newRootCmd(f *flags) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "span [flags] <source> <target>...",
		Short: "Resumable one-way sync that spans a source tree across several disks",
		Long: `span mirrors a source directory onto an ordered list of target disks.
When the current target runs low on space, span moves on to the next one.
Progress is checkpointed after every item, so an interrupted run resumes
where it stopped. Files already up to date on the target are counted as
synced items (with zero bytes) and advance the checkpoint, so the item
total covers every file the target now holds. Send SIGUSR1 to pause or
resume a running sync.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if f.showVersion {
				return nil
			}
			return cobra.MinimumNArgs(2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.showVersion {
				fmt.Fprintf(os.Stdout, "span %s\n", version)
				return nil
			}
			return runSync(cmd, args, f)
		},
	}

	rootCmd.Flags().BoolVar(&f.showVersion, "version", false, "print version and exit")
	rootCmd.Flags().
		IntVar(&f.freePercent, "free-percent", config.DefaultFreeSpacePercent, "percent of each target to keep free (0-90)")
	rootCmd.Flags().
		IntVar(&f.retries, "retries", config.DefaultRetries, "copy attempts per file")
	rootCmd.Flags().
		DurationVar(&f.retryDelay, "retry-delay", config.DefaultRetryDelay, "pause between copy attempts")
	rootCmd.Flags().
		StringVar(&f.stateFile, "state-file", "", "checkpoint file (default: derived from source and targets)")
	rootCmd.Flags().StringVar(&f.logFile, "log", "", "write structured JSON log to FILE")
	rootCmd.Flags().Var(&f.bwLimit, "bwlimit", "bandwidth limit (e.g. 100M, 1G)")
	rootCmd.Flags().
		StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on ADDR (e.g. :9100)")
	rootCmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "verbose output")
	rootCmd.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.Flags().BoolVar(&f.reset, "reset", false, "discard the checkpoint and start from the beginning")

	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newDocsCmd())

	return rootCmd
}

//nolint:gocyclo,revive // sequential setup of logging, checkpoint, metrics and presenter
func runSync(cmd *cobra.Command, args []string, f *flags) error {
	source, targets, err := absPaths(args)
	if err != nil {
		return err
	}

	// Load optional config file.
	cfg, err := config.Load()
	if err != nil {
		slog.Warn("failed to load config", "error", err)
	}

	settings, err := cfg.Defaults.Apply(config.DefaultSettings())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	applyFlagOverrides(cmd, f, &settings)
	if err := settings.Validate(); err != nil {
		return err
	}

	if !cmd.Flags().Changed("bwlimit") && cfg.Defaults.BWLimit != nil {
		if err := f.bwLimit.Set(*cfg.Defaults.BWLimit); err != nil {
			return fmt.Errorf("config bwlimit: %w", err)
		}
	}
	if !cmd.Flags().Changed("log") && cfg.Defaults.LogFile != nil {
		f.logFile = *cfg.Defaults.LogFile
	}
	statePath := resolveStatePath(f.stateFile, cfg.Defaults, source, targets)

	// Configure logging.
	logLevel := slog.LevelWarn
	if f.verbose {
		logLevel = slog.LevelDebug
	} else if !f.quiet {
		logLevel = slog.LevelInfo
	}
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	var logHandler slog.Handler = textHandler
	if f.logFile != "" {
		lf, lfErr := os.OpenFile(f.logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if lfErr != nil {
			return fmt.Errorf("open log file: %w", lfErr)
		}
		defer lf.Close()
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
		logHandler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	store := checkpoint.NewStore(statePath)
	if f.reset {
		if err := store.Remove(); err != nil {
			return err
		}
		slog.Info("checkpoint discarded", "path", statePath)
	}

	// Set up context with signal handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pauser := &engine.Pauser{}
	go togglePauseOnSignal(ctx, pauser)

	var syncMetrics metrics.SyncMetrics = metrics.Nop{}
	if f.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		syncMetrics = metrics.New(reg)
		go func() {
			if err := metrics.Serve(ctx, f.metricsAddr, reg); err != nil {
				slog.Error("metrics server failed", "addr", f.metricsAddr, "error", err)
			}
		}()
	}

	opts := engine.Options{
		Pauser:  pauser,
		Logger:  logger,
		Store:   store,
		Metrics: syncMetrics,
	}
	if f.bwLimit.bytes > 0 {
		opts.Limiter = platform.NewBWLimiter(f.bwLimit.bytes)
	}

	collector := stats.NewCollector()
	events := make(chan event.Event, 256)
	opts.Events = events

	isTTY, width := ui.DetectTerminal(os.Stderr)
	presenter := ui.NewPresenter(ui.Config{
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		Stats:     collector,
		Source:    source,
		IsTTY:     isTTY,
		Quiet:     f.quiet,
		Width:     width,
	})

	sess := engine.Session{
		Source:   source,
		Targets:  targets,
		Settings: settings,
	}

	slog.Debug("starting sync",
		"source", source,
		"targets", targets,
		"state", statePath,
		"free_percent", settings.FreeSpacePercent,
		"retries", settings.Retries,
		"retry_delay", settings.RetryDelay,
	)

	// Presenter in background, engine in foreground.
	var presenterErr error
	var presenterWg sync.WaitGroup
	presenterWg.Add(1)
	go func() {
		defer presenterWg.Done()
		presenterErr = presenter.Run(events)
	}()

	result := engine.Run(ctx, sess, opts)
	stop()
	close(events)
	presenterWg.Wait()

	if presenterErr != nil {
		fmt.Fprintf(os.Stderr, "presenter: %v\n", presenterErr)
	}

	if !f.quiet {
		if summary := presenter.Summary(); summary != "" {
			fmt.Fprintln(os.Stderr, summary)
		}
	}
	if report := ui.FailureReport(presenter.Failed()); report != "" {
		fmt.Fprint(os.Stderr, report)
	}

	return exitFor(result)
}

// sizeFlag is a pflag.Value for byte counts written as "100M" or "1G".
type sizeFlag struct {
	bytes int64
	raw   string
}

var _ pflag.Value = (*sizeFlag)(nil)

func (s *sizeFlag) String() string { return s.raw }
func (*sizeFlag) Type() string     { return "size" }

func (s *sizeFlag) Set(val string) error {
	n, err := config.ParseSize(val)
	if err != nil {
		return err
	}
	s.bytes, s.raw = n, val
	return nil
}

// resolveStatePath picks the checkpoint file: the flag, then the config
// file, then the per-job default.
func resolveStatePath(flagVal string, defaults config.DefaultsConfig, source string, targets []string) string {
	if flagVal != "" {
		return flagVal
	}
	if defaults.StateFile != nil && *defaults.StateFile != "" {
		return *defaults.StateFile
	}
	return checkpoint.DefaultPath(source, targets)
}

// applyFlagOverrides lets explicitly set flags win over config file values.
func applyFlagOverrides(cmd *cobra.Command, f *flags, s *config.Settings) {
	if cmd.Flags().Changed("free-percent") {
		s.FreeSpacePercent = f.freePercent
	}
	if cmd.Flags().Changed("retries") {
		s.Retries = f.retries
	}
	if cmd.Flags().Changed("retry-delay") {
		s.RetryDelay = f.retryDelay
	}
}

// absPaths splits args into an absolute source and absolute targets.
func absPaths(args []string) (string, []string, error) {
	source, err := filepath.Abs(args[0])
	if err != nil {
		return "", nil, fmt.Errorf("source %s: %w", args[0], err)
	}
	targets := make([]string, 0, len(args)-1)
	for _, a := range args[1:] {
		t, err := filepath.Abs(a)
		if err != nil {
			return "", nil, fmt.Errorf("target %s: %w", a, err)
		}
		targets = append(targets, t)
	}
	return source, targets, nil
}

// togglePauseOnSignal flips the pause state on every SIGUSR1 until ctx ends.
func togglePauseOnSignal(ctx context.Context, p *engine.Pauser) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1)
	defer signal.Stop(sig)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			if p.Toggle() {
				slog.Info("paused; send SIGUSR1 again to resume")
			} else {
				slog.Info("resumed")
			}
		}
	}
}

// exitFor maps a run result to the process exit status: 0 for a clean run,
// 1 for item failures or cancellation, 2 for a run-fatal error.
func exitFor(result engine.Result) error {
	switch result.Outcome {
	case engine.OutcomeError:
		slog.Error("sync failed", "error", result.Err)
		return &exitError{code: 2}
	case engine.OutcomeCancelled:
		return &exitError{code: 1}
	}
	if len(result.Failed) > 0 {
		return &exitError{code: 1}
	}
	return nil
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
