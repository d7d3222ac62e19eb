package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"

	attendancehandler "tally/internal/attendance/handler"
	attendancemetrics "tally/internal/attendance/metrics"
	"tally/internal/attendance/publish"
	"tally/internal/attendance/service"
	devicehandler "tally/internal/device/handler"
	httpapi "tally/internal/http"
	jwttoken "tally/internal/jwt_token"
	"tally/internal/platform/config"
	"tally/internal/platform/httpserver"
	"tally/internal/platform/logger"
	"tally/internal/platform/metrics"
	"tally/internal/pseudonym"
	"tally/pkg/platform/middleware/admin"
	"tally/pkg/platform/middleware/auth"
)

// main wires configuration, backends and the HTTP surface, then serves until
// SIGINT or SIGTERM.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tally: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	for _, w := range cfg.Warnings() {
		log.Warn("configuration warning", "key", w.Key, "message", w.Message)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	in, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer in.Close()

	health := httpapi.NewHealthHandler(log, 0)
	in.registerHealth(health)

	ledgerStore, locker, err := buildLedger(cfg, in)
	if err != nil {
		return err
	}
	rosters, err := buildRoster(ctx, cfg, in)
	if err != nil {
		return err
	}
	router := publish.NewRouter(publish.Topic(cfg.Publisher.AttendanceTopic), publish.Topic(cfg.Publisher.TelemetryTopic))
	publisher, err := buildPublisher(ctx, cfg, in, router, m, log)
	if err != nil {
		return err
	}
	revocations, err := buildRevocations(cfg, in, m)
	if err != nil {
		return err
	}

	deriver := pseudonym.NewDeriver([]byte(cfg.Security.SecretKey))
	svc, err := service.New(ledgerStore, locker, publisher, router, rosters, deriver,
		service.WithLogger(log),
		service.WithMetrics(attendancemetrics.New(m.Registry)),
		service.WithPublishConcurrency(cfg.Attendance.PublishConcurrency),
		service.WithTracer(otel.Tracer("tally/attendance")),
	)
	if err != nil {
		return fmt.Errorf("build attendance service: %w", err)
	}

	jwtService := jwttoken.NewJWTService(cfg.Security.DeviceSigningKey, cfg.Security.TokenIssuer)
	deviceAuth := auth.RequireDevice(jwttoken.NewDeviceValidator(jwtService), revocations, log)
	adminAuth := admin.RequireAdminToken([]byte(cfg.Security.AdminTokenHash), log)

	handler := httpapi.NewRouter(httpapi.RouterConfig{
		Logger:         log,
		RequestTimeout: cfg.Server.RequestTimeout,
		Latency:        m,
		Metrics:        m.Handler(),
		Health:         health,
	},
		attendancehandler.New(svc, log, deviceAuth, adminAuth),
		devicehandler.New(jwtService, revocations, log, adminAuth, cfg.Security.DeviceTokenMaxTTL),
	)

	srv := httpserver.New(cfg.Server.Addr, handler, cfg.Server.RequestTimeout, cfg.Server.ReadHeaderTimeout)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting tally",
			"addr", cfg.Server.Addr,
			"ledger", cfg.Ledger.Backend,
			"publisher", cfg.Publisher.Backend,
			"roster", cfg.Roster.Backend,
			"degraded_key", deriver.Degraded(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
