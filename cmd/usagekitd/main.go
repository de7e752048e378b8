// Command usagekitd serves the usage and plan-limit API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/Cachi0001/Biz-sub011/pkg/config"
	"github.com/Cachi0001/Biz-sub011/pkg/httpserver"
	"github.com/Cachi0001/Biz-sub011/pkg/logger"
	"github.com/Cachi0001/Biz-sub011/svc/usagekit"
)

func main() {
	if err := run(); err != nil {
		slog.Error("usagekitd stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := usagekit.LoadConfig()
	if err != nil {
		return err
	}
	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return err
	}

	kit, err := usagekit.New(ctx, cfg)
	if err != nil {
		return err
	}
	logger.SetAsDefault(kit.Logger)

	r := chi.NewRouter()
	r.Get("/healthz", httpserver.Liveness())
	r.Get("/readyz", httpserver.Readiness(kit.Logger, kit.Healthcheck))
	r.Mount("/", kit.Handler())

	srv := httpserver.New(httpCfg,
		httpserver.WithLogger(kit.Logger),
		httpserver.OnShutdown(kit.Close),
	)
	return srv.Run(ctx, r)
}
