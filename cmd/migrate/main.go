package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/odyssey-erp/odyssey-wms/internal/app"
	"github.com/odyssey-erp/odyssey-wms/migrations"
)

func main() {
	_ = godotenv.Load()
	seed := flag.String("seed", "", "JSON seed file applied after migrating")
	flag.Parse()

	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.StoreDriver != app.DriverPostgres {
		slog.Default().Error("migrate requires the postgres store driver", slog.String("driver", cfg.StoreDriver))
		os.Exit(1)
	}
	cfg.SeedFile = ""
	cfg.AMQPURL = ""
	cfg.RedisAddr = ""
	logger := app.NewLogger(cfg)

	container, err := app.Build(ctx, cfg, logger, nil, app.Options{})
	if err != nil {
		logger.Error("connect", slog.Any("error", err))
		os.Exit(1)
	}
	defer container.Close()

	applied, err := migrations.Up(ctx, container.Pool, logger)
	if err != nil {
		logger.Error("migrate", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("schema up to date", slog.Int("applied", applied))

	if *seed != "" {
		if err := container.ApplySeedFile(ctx, *seed); err != nil {
			logger.Error("seed", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
