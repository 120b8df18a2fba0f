package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/matveylogee/OS-HW2-BMW/config"
	"github.com/matveylogee/OS-HW2-BMW/coordinator"
	"github.com/matveylogee/OS-HW2-BMW/fault"
	"github.com/matveylogee/OS-HW2-BMW/metrics"
)

// Коды завершения
const (
	exitOK      = 0
	exitUsage   = 1
	exitRuntime = 2
	exitSetup   = 10
)

// flags хранит значения флагов командной строки
type flags struct {
	config     string
	capacity   int
	iterations int
	think      time.Duration
	hold       time.Duration
	maxValue   int
	shmDir     string
	shmName    string
	logLevel   string
	metricsOut string
}

func (f *flags) bind(fs *pflag.FlagSet) {
	def := config.Default()
	fs.StringVar(&f.config, "config", "", "path to a YAML config file")
	fs.IntVar(&f.capacity, "capacity", def.Capacity, "number of elements in the shared array")
	fs.IntVar(&f.iterations, "iterations", def.Iterations, "operations per worker")
	fs.DurationVar(&f.think, "think", def.Think, "pause between a worker's operations")
	fs.DurationVar(&f.hold, "hold", def.Hold, "pause inside the critical section")
	fs.IntVar(&f.maxValue, "max-value", def.MaxValue, "largest value a writer stores")
	fs.StringVar(&f.shmDir, "shm-dir", def.ShmDir, "directory of the shared segment")
	fs.StringVar(&f.shmName, "shm-name", def.ShmName, "name of the shared segment, empty for an anonymous one")
	fs.StringVar(&f.logLevel, "log-level", def.LogLevel, "log level")
	fs.StringVar(&f.metricsOut, "metrics-out", "", "file to write metrics to after the run")
}

// resolve loads the config file, if any, and applies the flags that were set
// explicitly on top of it.
func (f *flags) resolve(fs *pflag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if f.config != "" {
		var err error
		if cfg, err = config.Load(f.config); err != nil {
			return cfg, err
		}
	}

	fs.Visit(func(fl *pflag.Flag) {
		switch fl.Name {
		case "capacity":
			cfg.Capacity = f.capacity
		case "iterations":
			cfg.Iterations = f.iterations
		case "think":
			cfg.Think = f.think
		case "hold":
			cfg.Hold = f.hold
		case "max-value":
			cfg.MaxValue = f.maxValue
		case "shm-dir":
			cfg.ShmDir = f.shmDir
		case "shm-name":
			cfg.ShmName = f.shmName
		case "log-level":
			cfg.LogLevel = f.logLevel
		case "metrics-out":
			cfg.MetricsOut = f.metricsOut
		}
	})
	return cfg, cfg.Validate()
}

// exitError carries the exit code of a failure found after the arguments were
// accepted.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func parseCount(name, arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, arg)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %d", name, n)
	}
	return n, nil
}

// newLogger пишет info и ниже в stdout, ошибки в stderr
func newLogger(level zapcore.Level, stdout, stderr io.Writer) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	enc := zapcore.NewConsoleEncoder(encCfg)

	low := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= level && l < zapcore.ErrorLevel
	})
	high := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= level && l >= zapcore.ErrorLevel
	})

	core := zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(stdout)), low),
		zapcore.NewCore(enc.Clone(), zapcore.Lock(zapcore.AddSync(stderr)), high),
	)
	return zap.New(core)
}

func newCommand(ctx context.Context, stdout, stderr io.Writer) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "rwdb [flags] <readerCount> <writerCount>",
		Short:         "Run readers and writers over a shared array with writer preference",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			readers, err := parseCount("readerCount", args[0])
			if err != nil {
				return err
			}
			writers, err := parseCount("writerCount", args[1])
			if err != nil {
				return err
			}
			cfg, err := f.resolve(cmd.Flags())
			if err != nil {
				return err
			}
			return execute(ctx, cfg, readers, writers, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	f.bind(cmd.Flags())
	return cmd
}

func execute(ctx context.Context, cfg config.Config, readers, writers int, stdout, stderr io.Writer) error {
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	logger := newLogger(level, stdout, stderr)
	defer func() { _ = logger.Sync() }()

	registry := prometheus.NewRegistry()
	c := coordinator.New(cfg,
		coordinator.WithLogger(logger),
		coordinator.WithMetrics(metrics.New(registry)),
	)

	report, runErr := c.Run(ctx, readers, writers)
	if report.Interrupted {
		logger.Info("run interrupted", zap.String("run", report.RunID))
	}
	if err := dumpMetrics(cfg.MetricsOut, registry); err != nil {
		logger.Error("metrics not written", zap.Error(err))
	}

	if runErr == nil {
		return nil
	}
	switch fault.KindOf(runErr) {
	case fault.Configuration:
		return &exitError{code: exitUsage, err: runErr}
	case fault.ResourceSetup:
		return &exitError{code: exitSetup, err: runErr}
	default:
		return &exitError{code: exitRuntime, err: runErr}
	}
}

func dumpMetrics(path string, g prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := metrics.WriteText(out, g); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newCommand(ctx, stdout, stderr)
	if args == nil {
		// cobra подставит os.Args, если аргументы не заданы
		args = []string{}
	}
	cmd.SetArgs(args)

	err := cmd.Execute()
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		fmt.Fprintln(stderr, "rwdb:", ee.err)
		return ee.code
	}
	// ошибки разбора аргументов, флагов и конфига
	fmt.Fprintln(stderr, "Error:", err)
	fmt.Fprint(stderr, cmd.UsageString())
	return exitUsage
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
