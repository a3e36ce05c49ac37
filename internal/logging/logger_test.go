package logging

import (
	"context"
	"log/slog"
	"testing"

	"tempest-gateway/internal/config"
)

func TestNew(t *testing.T) {
	t.Run("prod uses the json handler", func(t *testing.T) {
		logger := New(config.Config{AppEnv: "prod", LogLevel: slog.LevelInfo}, "1.0.0", "tempest-gateway")
		if _, ok := logger.Handler().(*slog.JSONHandler); !ok {
			t.Errorf("handler = %T; want *slog.JSONHandler", logger.Handler())
		}
	})

	t.Run("dev does not use the json handler", func(t *testing.T) {
		logger := New(config.Config{AppEnv: "dev", LogLevel: slog.LevelInfo}, "dev", "tempest-gateway")
		if _, ok := logger.Handler().(*slog.JSONHandler); ok {
			t.Error("dev logger got the prod json handler")
		}
	})

	t.Run("honors the configured level", func(t *testing.T) {
		ctx := context.Background()
		for _, env := range []string{"dev", "prod"} {
			logger := New(config.Config{AppEnv: env, LogLevel: slog.LevelWarn}, "1.0.0", "tempest-gateway")
			if logger.Enabled(ctx, slog.LevelInfo) {
				t.Errorf("%s: info enabled at warn level", env)
			}
			if !logger.Enabled(ctx, slog.LevelWarn) {
				t.Errorf("%s: warn disabled at warn level", env)
			}
		}
	})
}
