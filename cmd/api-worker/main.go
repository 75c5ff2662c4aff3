// Package main is the entrypoint for the Worker API server.
// It answers every request with "Worker API Running" on PORT (default 3003).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kuo-hm/devdeck-backends/internal/domain"
	"github.com/kuo-hm/devdeck-backends/internal/server"
	"github.com/kuo-hm/devdeck-backends/internal/services"
)

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		if domain.IsConfigError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	return server.Run(ctx, services.WorkerAPI(), nil)
}
