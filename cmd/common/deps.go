// Package common provides shared helpers for command implementations.
package common

import (
	"github.com/spf13/viper"

	"github.com/cicconel11/TruthLayer-sub001/internal/bootstrap"
)

// Version is the CLI version string. Override at build time with
// -ldflags "-X github.com/cicconel11/TruthLayer-sub001/cmd/common.Version=v1.2.3".
var Version = "dev"

// ConfigPath returns the config file path from the --config flag or the
// TRUTHLAYER_CONFIG environment variable. Empty means the default lookup.
func ConfigPath() string {
	return viper.GetString("config")
}

// Debug reports whether debug logging was requested.
func Debug() bool {
	return viper.GetBool("debug")
}

// NewDeps loads configuration and builds the logger every command shares.
func NewDeps() (*bootstrap.CommandDeps, error) {
	return bootstrap.NewCommandDeps(ConfigPath(), Debug())
}
