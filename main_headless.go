//go:build headless

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/doclens/doclens/pkg/utils"
)

// main runs the API server without a window until interrupted.
func main() {
	utils.InitLogger()
	logger := utils.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := NewServer(ctx)
	if err != nil {
		logger.Error("Failed to initialize server", "error", err)
		os.Exit(1)
	}
	if err := server.Start(ctx); err != nil {
		logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
	logger.Info("DocLens running headless", "url", server.URL())

	<-ctx.Done()
	logger.Info("Shutting down")
	server.Wait()
}
