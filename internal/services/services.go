// Package services defines the three server binaries as server.Params.
// Each cmd/ main passes one of these to server.Run.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kuo-hm/devdeck-backends/internal/config"
	"github.com/kuo-hm/devdeck-backends/internal/domain"
	"github.com/kuo-hm/devdeck-backends/internal/server"
)

// Hello answers "Hello, World!" on a fixed port. PORT is ignored and
// requests are not logged.
func Hello() server.Params {
	return server.Params{
		Name:           "hello",
		Body:           domain.HelloBody,
		PortFromConfig: func(_ *config.Config) (int, error) { return domain.HelloPort, nil },
		Announce:       helloBanner,
	}
}

// CoreAPI answers "Core API Running" on PORT, default 3001.
func CoreAPI() server.Params {
	return server.Params{
		Name:           "api-core",
		Body:           domain.CoreAPIBody,
		LogRequests:    true,
		PortFromConfig: func(cfg *config.Config) (int, error) { return cfg.PortOr(domain.CoreAPIPort) },
		Announce:       listeningOn("Core API"),
	}
}

// WorkerAPI answers "Worker API Running" on PORT, default 3003.
func WorkerAPI() server.Params {
	return server.Params{
		Name:           "api-worker",
		Body:           domain.WorkerAPIBody,
		LogRequests:    true,
		PortFromConfig: func(cfg *config.Config) (int, error) { return cfg.PortOr(domain.WorkerAPIPort) },
		Announce:       listeningOn("Worker API"),
	}
}

func helloBanner(ctx context.Context, logger *slog.Logger, port int) {
	for i := 0; i < domain.BannerRepeats; i++ {
		logger.InfoContext(ctx, domain.BannerLine)
	}
	logger.InfoContext(ctx, fmt.Sprintf("Server running at http://localhost:%d/", port))
}

func listeningOn(label string) server.AnnounceFunc {
	return func(ctx context.Context, logger *slog.Logger, port int) {
		logger.InfoContext(ctx, fmt.Sprintf("%s listening on port %d", label, port), slog.Int("port", port))
	}
}
