package bootstrap

import (
	"errors"
	"fmt"
	"os"

	"github.com/cicconel11/TruthLayer-sub001/internal/config"
	"github.com/cicconel11/TruthLayer-sub001/internal/logger"
)

// defaultConfigPath is tried when no explicit config path is given.
const defaultConfigPath = "config.yml"

// CommandDeps holds the dependencies every command starts from.
type CommandDeps struct {
	Config *config.Config
	Logger logger.Logger
}

// NewCommandDeps loads configuration and builds the engine logger.
func NewCommandDeps(configPath string, debug bool) (*CommandDeps, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := CreateLogger(cfg, debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	log = log.With(logger.String("service", "orchestration-engine"))

	return &CommandDeps{Config: cfg, Logger: log}, nil
}

// LoadConfig loads the engine configuration. An explicit path must exist; the
// default path may be absent, in which case built-in defaults apply.
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); errors.Is(err, os.ErrNotExist) {
			return config.Default(), nil
		}
		path = defaultConfigPath
	}
	return config.Load(path)
}

// CreateLogger builds the logger described by the configuration. Debug mode
// forces the debug level regardless of the configured one.
func CreateLogger(cfg *config.Config, debug bool) (logger.Logger, error) {
	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	return logger.New(logger.Config{
		Level:       level,
		Format:      cfg.Logging.Format,
		Development: cfg.Logging.Development || debug,
	})
}
