// Package logger configures the process-wide slog logger.
package logger

import (
	"log/slog"
	"os"
)

// Init builds the logger for cfg and installs it with slog.SetDefault.
func Init(cfg Config) *slog.Logger {
	if cfg.Env == "" {
		cfg.Env = DetectEnv()
	}
	if cfg.Service == "" {
		cfg.Service = "chat-service"
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendZap
		if cfg.Env == EnvDev {
			cfg.Backend = BackendStd
		}
	}

	h := newStdHandler(cfg)
	if cfg.Backend == BackendZap {
		h = newZapHandler(cfg)
	}

	l := slog.New(h.WithAttrs(processAttrs(cfg)))
	slog.SetDefault(l)
	return l
}
