package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/aster/config"
	"github.com/Ramsey-B/aster/internal/handlers"
	"github.com/Ramsey-B/aster/pkg/health"
	"github.com/Ramsey-B/aster/pkg/middleware"
)

// newServer builds the HTTP surface: health probes, metrics and the approval
// endpoints
func newServer(cfg *config.Config, logger ectologger.Logger, checker *health.Checker, gate handlers.ApprovalGate) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	checker.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	handlers.NewApprovalHandler(gate, logger).RegisterRoutes(api)

	return e
}

func serveRun(cmd *cobra.Command, cfg *config.Config) error {
	logger, sync, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg, logger)

	var (
		checker *health.Checker
		server  *http.Server
		served  = make(chan error, 1)
	)
	a.AddDependency("server",
		func(context.Context) error {
			redisCheck := health.Check{Name: "redis", Optional: true, Disabled: "redis not configured, run lock and credential quotas disabled"}
			if a.redis != nil {
				redisCheck.Probe = a.redis.Ping
			}
			checker = health.NewChecker(cfg.AppVersion,
				health.Check{Name: "database", Probe: a.db.PingContext},
				redisCheck,
			)

			listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
			if err != nil {
				return fmt.Errorf("failed to listen on port %d: %w", cfg.Port, err)
			}
			server = &http.Server{
				Handler:      newServer(cfg, logger, checker, a.gate),
				ReadTimeout:  cfg.HttpReadTimeout,
				WriteTimeout: cfg.HttpWriteTimeout,
				IdleTimeout:  cfg.HttpIdleTimeout,
			}
			go func() {
				served <- server.Serve(listener)
			}()

			checker.SetReady(true)
			logger.Infof("Listening on :%d", cfg.Port)
			return nil
		},
		func(ctx context.Context) error {
			checker.SetReady(false)
			return server.Shutdown(ctx)
		},
	)

	if err := a.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
		err = nil
	case err = <-served:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	a.Stop(stopCtx)
	return err
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the approval endpoints, health probes and metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serveRun(cmd, config.FromContext(cmd.Context()))
		},
	}
}
