package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"INFO", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
		{"bogus", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name        string
		format      string
		development bool
		want        string
	}{
		{"explicit json", "json", true, "json"},
		{"explicit console", "console", false, "console"},
		{"default production", "", false, "json"},
		{"default development", "", true, "console"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := parseFormat(tt.format, tt.development); got != tt.want {
				t.Errorf("parseFormat(%q, %v) = %q, want %q", tt.format, tt.development, got, tt.want)
			}
		})
	}
}

func TestConfigSetDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	if cfg.Level != DefaultLevel {
		t.Errorf("expected default level %q, got %q", DefaultLevel, cfg.Level)
	}
	if cfg.Format != DefaultFormat {
		t.Errorf("expected default format %q, got %q", DefaultFormat, cfg.Format)
	}
	if len(cfg.OutputPaths) == 0 {
		t.Error("expected default output paths to be set")
	}
}

func TestConfigSetDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{Level: "debug", Format: "console", OutputPaths: []string{"stderr"}}
	cfg.SetDefaults()

	if cfg.Level != "debug" || cfg.Format != "console" {
		t.Errorf("explicit values overwritten: %+v", cfg)
	}
	if len(cfg.OutputPaths) != 1 || cfg.OutputPaths[0] != "stderr" {
		t.Errorf("explicit output paths overwritten: %v", cfg.OutputPaths)
	}
}

func TestNewBuildsLogger(t *testing.T) {
	l, err := New(Config{Level: "debug", Format: "json"})
	if err != nil {
		t.Fatalf("expected logger to build, got %v", err)
	}
	l.Debug("debug message", String("key", "value"))
	l.Info("info message", Int("count", 1))

	child := l.With(String("component", "test"))
	child.Info("child message")
}

func TestNopLogger(t *testing.T) {
	l := NewNop()
	l.Info("ignored")
	l.Error("ignored", Error(nil))
	if l.With(String("k", "v")) == nil {
		t.Error("With returned nil")
	}
	if err := l.Sync(); err != nil {
		t.Errorf("Sync returned error: %v", err)
	}
}
