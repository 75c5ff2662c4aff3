// Package server provides the shared service lifecycle runner.
// Every cmd/ binary delegates to server.Run for config loading,
// observability init, binding, serving and shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/kuo-hm/devdeck-backends/internal/config"
	"github.com/kuo-hm/devdeck-backends/internal/domain"
	"github.com/kuo-hm/devdeck-backends/internal/observability"
	"github.com/kuo-hm/devdeck-backends/internal/plaintext"
)

// AnnounceFunc reports that the server is bound to port. It runs once per
// Run, after the bind and before the first request is accepted.
type AnnounceFunc func(ctx context.Context, logger *slog.Logger, port int)

// Params configures a service's lifecycle runner.
type Params struct {
	// Name identifies the service (e.g. "hello", "api-core").
	Name string

	// Body is the fixed response to every request.
	Body string

	// LogRequests logs one record per request with its method and path.
	LogRequests bool

	// PortFromConfig picks the port to bind from config. An error here is
	// fatal, before anything is bound.
	PortFromConfig func(cfg *config.Config) (int, error)

	// Announce defaults to a single "listening" record.
	Announce AnnounceFunc

	// LogOutput defaults to os.Stdout.
	LogOutput io.Writer
}

// Run executes the full service lifecycle: config loading, observability
// initialization, bind, announce, serve, and shutdown on SIGTERM/SIGINT or
// ctx cancellation. If ln is non-nil it is served instead of binding the
// configured port (enables port-0 testing).
//
// A bind failure is returned wrapped as "listen: ..." and is never retried.
func Run(ctx context.Context, p Params, ln net.Listener) error {
	if p.PortFromConfig == nil {
		return fmt.Errorf("%s: no port selector", p.Name)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	port, err := p.PortFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("resolve port: %w", err)
	}

	logger := observability.InitLogger(observability.LogConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: p.Name,
		Environment: cfg.Environment,
		Output:      p.LogOutput,
	})

	// --- Startup order: tracer -> metrics -> handler -> listener ---

	service := observability.ServiceInfo{
		Name:        p.Name,
		Version:     cfg.Service.Version,
		Environment: cfg.Environment,
	}

	tracerProvider, err := observability.InitTracer(ctx, observability.TracerConfig{
		Service:      service,
		OTLPEndpoint: cfg.OTEL.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer flushTracer(logger, tracerProvider)

	metricsProvider, err := observability.InitMetrics(ctx, observability.MetricsConfig{
		Service:      service,
		OTLPEndpoint: cfg.OTEL.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("initialize metrics: %w", err)
	}
	defer flushMetrics(logger, metricsProvider)

	responder, err := plaintext.New(plaintext.Options{
		Service:     p.Name,
		Body:        p.Body,
		Logger:      logger,
		LogRequests: p.LogRequests,
	})
	if err != nil {
		return fmt.Errorf("build handler: %w", err)
	}

	if ln == nil {
		ln, err = (&net.ListenConfig{}).Listen(ctx, "tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	port = boundPort(ln, port)
	announce := p.Announce
	if announce == nil {
		announce = defaultAnnounce
	}
	announce(ctx, logger, port)

	server := &http.Server{
		Handler:      responder.Handler(),
		ReadTimeout:  domain.ReadTimeout,
		WriteTimeout: domain.WriteTimeout,
		IdleTimeout:  domain.IdleTimeout,

		// "OPTIONS *" gets the fixed body like any other request.
		DisableGeneralOptionsHandler: true,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Debug("serving", slog.String("addr", ln.Addr().String()))
		if serveErr := server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", serveErr)
		}
		return nil
	})

	// Waits for cancellation, then stops accepting and drains in-flight requests.
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down", slog.Duration("budget", domain.GracefulShutdownTimeout))

		httpCtx, cancel := context.WithTimeout(context.Background(), domain.ShutdownHTTPTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(httpCtx); shutdownErr != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", shutdownErr.Error()))
		}
		return nil
	})

	return g.Wait()
}

func defaultAnnounce(ctx context.Context, logger *slog.Logger, port int) {
	logger.InfoContext(ctx, "listening", slog.Int("port", port))
}

// boundPort reports the TCP port ln is bound to, or fallback for non-TCP listeners.
func boundPort(ln net.Listener, fallback int) int {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return fallback
}

// Metrics flush before the tracer: reverse of startup.
func flushMetrics(logger *slog.Logger, mp *observability.MetricsProvider) {
	ctx, cancel := context.WithTimeout(context.Background(), domain.ShutdownOTELTimeout)
	defer cancel()
	if err := mp.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown metrics", slog.String("error", err.Error()))
	}
}

func flushTracer(logger *slog.Logger, tp *observability.TracerProvider) {
	ctx, cancel := context.WithTimeout(context.Background(), domain.ShutdownOTELTimeout)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
	}
}
