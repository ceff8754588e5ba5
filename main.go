//go:build !headless

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/wailsapp/wails/v3/pkg/application"

	"github.com/doclens/doclens/pkg/utils"
)

// resolveFrontendURL decides what URL the webview should load.
//
// In Wails dev mode the webview must load the Vite dev server for hot reload,
// not the Go backend URL.
func resolveFrontendURL(serverURL string) string {
	for _, k := range []string{"DOCLENS_DEV_SERVER_URL", "WAILS_DEV_SERVER_URL", "WAILS_FRONTEND_URL"} {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	if p := strings.TrimSpace(os.Getenv("WAILS_VITE_PORT")); p != "" {
		return fmt.Sprintf("http://localhost:%s", p)
	}
	return serverURL
}

// main opens the desktop window on top of the local API server.
func main() {
	utils.InitLogger()
	logger := utils.GetLogger()

	app := application.New(application.Options{
		Name:        "doclens",
		Description: "DocLens - AI reading companion for research documents",
		LogLevel:    slog.LevelInfo,
		Services:    []application.Service{},
		Mac: application.MacOptions{
			ApplicationShouldTerminateAfterLastWindowClosed: true,
		},
	})

	server, err := NewServer(app.Context())
	if err != nil {
		logger.Error("Failed to initialize server", "error", err)
		os.Exit(1)
	}
	// Start the http server (API + WebSocket) before opening the window.
	if err := server.Start(app.Context()); err != nil {
		fmt.Println("Server start failed", err)
		logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}

	app.Window.NewWithOptions(application.WebviewWindowOptions{
		Title: "DocLens",
		Mac: application.MacWindow{
			InvisibleTitleBarHeight: 50,
			Backdrop:                application.MacBackdropTranslucent,
			TitleBar:                application.MacTitleBarHiddenInset,
		},
		URL: resolveFrontendURL(server.URL()),
	})

	// Run the application. This blocks until the application has been exited.
	if err := app.Run(); err != nil {
		logger.Error("Failed to run application", "error", err)
		os.Exit(1)
	}
}
