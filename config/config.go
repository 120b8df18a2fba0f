// Package config holds the settings of a run.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"

	"github.com/matveylogee/OS-HW2-BMW/fault"
	"github.com/matveylogee/OS-HW2-BMW/rwdb"
	"github.com/matveylogee/OS-HW2-BMW/segment"
	"github.com/matveylogee/OS-HW2-BMW/worker"
)

// Config представляет настройки запуска
type Config struct {
	// Capacity is the number of elements in the shared array.
	Capacity int `yaml:"capacity"`
	// Iterations is the number of operations every worker performs.
	Iterations int `yaml:"iterations"`
	// Think is the pause between a worker's operations.
	Think time.Duration `yaml:"think"`
	// Hold is the pause inside the critical section.
	Hold time.Duration `yaml:"hold"`
	// MaxValue bounds the values writers store, at most worker.MaxValueLimit.
	MaxValue int `yaml:"max_value"`
	// ShmDir and ShmName locate the shared segment. An empty name maps an
	// anonymous segment.
	ShmDir  string `yaml:"shm_dir"`
	ShmName string `yaml:"shm_name"`
	// LogLevel is a zap level name.
	LogLevel string `yaml:"log_level"`
	// MetricsOut is a file the metrics are written to after the run.
	MetricsOut string `yaml:"metrics_out"`
}

// Default returns ten elements, one operation per worker and two second
// pauses.
func Default() Config {
	return Config{
		Capacity:   rwdb.DefaultCapacity,
		Iterations: 1,
		Think:      2 * time.Second,
		Hold:       2 * time.Second,
		MaxValue:   worker.DefaultMaxValue,
		ShmDir:     segment.DefaultDir,
		ShmName:    "rwdb",
		LogLevel:   "info",
	}
}

// Load reads a YAML file over the defaults. An empty file gives the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fault.Config("read config", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return cfg, nil
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fault.Config("parse config "+path, err)
	}
	return cfg, nil
}

// Validate checks the values and returns the first problem found.
func (c Config) Validate() error {
	switch {
	case c.Capacity <= 0:
		return fault.Configf("validate", "capacity must be positive, got %d", c.Capacity)
	case c.Iterations < 0:
		return fault.Configf("validate", "iterations must not be negative, got %d", c.Iterations)
	case c.Think < 0:
		return fault.Configf("validate", "think must not be negative, got %s", c.Think)
	case c.Hold < 0:
		return fault.Configf("validate", "hold must not be negative, got %s", c.Hold)
	case c.MaxValue <= 0 || c.MaxValue > worker.MaxValueLimit:
		return fault.Configf("validate", "max_value must be in [1, %d], got %d", worker.MaxValueLimit, c.MaxValue)
	case strings.Contains(strings.TrimPrefix(c.ShmName, "/"), "/"):
		return fault.Configf("validate", "shm_name %q must not contain '/'", c.ShmName)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return lvl, fault.Config("validate", fmt.Errorf("log_level: %w", err))
	}
	return lvl, nil
}
