package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/doclens/doclens/pkg/config"
	"github.com/doclens/doclens/pkg/document"
	"github.com/doclens/doclens/pkg/event"
	"github.com/doclens/doclens/pkg/handler"
	"github.com/doclens/doclens/pkg/mindmap"
	"github.com/doclens/doclens/pkg/models"
	"github.com/doclens/doclens/pkg/service"
	"github.com/doclens/doclens/pkg/store"
	"github.com/doclens/doclens/pkg/synthesis"
	"github.com/doclens/doclens/pkg/utils"
)

type Server struct {
	ginEngine *gin.Engine
	cfg       *config.AppConfig
	emitter   *event.Emitter
	logger    *slog.Logger
	port      int

	backend       store.Backend
	conversations *service.ConversationController
	cleanup       []func()
	done          chan struct{}
}

// NewServer loads the configuration, opens the conversation store and wires
// every service behind the HTTP API.
func NewServer(ctx context.Context) (*Server, error) {
	logger := utils.GetLogger()
	cfg, cfgPath, err := config.Load()
	if err != nil {
		logger.Warn("Failed to load config; falling back to defaults", "error", err)
		cfg = &config.AppConfig{}
	}
	utils.SetLogLevel(cfg.LogLevel())
	logger.Info("Configuration loaded", "path", cfgPath, "storage", cfg.StorageBackend(),
		"chatModel", cfg.ChatModel(), "imageModel", cfg.ImageModel())

	backend, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StorageBackend(), err)
	}

	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())

	// CORS middleware: allow Wails dev origins (wails://localhost:*) and common localhost origins.
	ginEngine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// If there's no Origin header, it's not a browser CORS request.
		if origin != "" {
			allowed := strings.HasPrefix(origin, "wails://localhost") ||
				strings.HasPrefix(origin, "wails://127.0.0.1") ||
				strings.HasPrefix(origin, "http://localhost") ||
				strings.HasPrefix(origin, "http://127.0.0.1") ||
				strings.HasPrefix(origin, "https://localhost") ||
				strings.HasPrefix(origin, "https://127.0.0.1")

			if !allowed {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			// Must echo the Origin when Origin is a custom scheme (like wails://) to satisfy browsers.
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	attachStatic(ginEngine, os.Getenv("DOCLENS_WEB_DIR"))

	server := &Server{
		ginEngine: ginEngine,
		cfg:       cfg,
		emitter:   event.Global(),
		logger:    logger,
		backend:   backend,
		done:      make(chan struct{}),
	}
	if err := server.SetupRoutes(ctx); err != nil {
		_ = backend.Close()
		return nil, err
	}
	return server, nil
}

func (s *Server) SetupRoutes(ctx context.Context) error {
	modelService := service.NewModelService()

	resolver := service.NewModelResolver(modelService, s.cfg.ChatModel(), s.cfg.ImageModel())
	s.cleanup = append(s.cleanup, resolver.InvalidateOnChange(s.emitter))
	client := synthesis.NewClient(resolver, resolver)

	var engineOpts []mindmap.EngineOption
	embed, err := modelService.ConceptEmbeddingFunc(ctx, s.cfg.Embedding)
	switch {
	case err != nil:
		s.logger.Warn("Concept index disabled", "error", err)
	case embed != nil:
		idx, err := mindmap.NewConceptIndex(embed)
		if err != nil {
			s.logger.Warn("Concept index disabled", "error", err)
		} else {
			engineOpts = append(engineOpts, mindmap.WithConceptIndex(idx))
		}
	}

	doc := document.NewSession(s.emitter)
	conversations := service.NewConversationController(client, store.NewConversationStore(s.backend), doc, s.emitter)
	if err := conversations.Load(ctx); err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	s.conversations = conversations

	maps := service.NewMapService(mindmap.NewEngine(s.emitter, engineOpts...), client, doc, s.emitter)
	s.cleanup = append(s.cleanup, maps.HandleExpandRequests(context.WithoutCancel(ctx)))
	drill := service.NewDrillDownService(client, maps, conversations, s.emitter)
	commands := service.NewCommandService()

	// API group
	// /api
	apiGroup := s.ginEngine.Group("/api")

	// Runtime info (for GUI/wails:// and headless clients to discover correct base URLs)
	apiGroup.GET("/runtime", func(c *gin.Context) {
		host := s.cfg.Host()
		if host == "0.0.0.0" || host == "" {
			host = "127.0.0.1"
		}
		c.JSON(http.StatusOK, models.RuntimeInfo{
			HTTPBaseURL:    fmt.Sprintf("http://%s:%d", host, s.port),
			WSBaseURL:      fmt.Sprintf("ws://%s:%d", host, s.port),
			Port:           s.port,
			StorageBackend: s.cfg.StorageBackend(),
			ChatModel:      s.cfg.ChatModel(),
			ImageModel:     s.cfg.ImageModel(),
		})
	})

	// Event notifications
	// /api/events/ws
	apiGroup.GET("/events/ws", event.NewWSHandler(s.emitter).Handle)

	handler.NewConversationHandler(conversations, doc, s.emitter, s.logger).RegisterRoutes(apiGroup)
	handler.NewDocumentHandler(doc, s.logger).RegisterRoutes(apiGroup)
	handler.NewMindMapHandler(maps, drill, s.logger).RegisterRoutes(apiGroup)
	handler.NewDrillDownHandler(drill, maps, s.logger).RegisterRoutes(apiGroup)
	handler.NewCommandHandler(commands, s.logger).RegisterRoutes(apiGroup)

	// Model management API routes
	// /api/models
	apiGroup.GET("/models", modelService.GetModelList)
	apiGroup.POST("/models", modelService.AddModel)
	apiGroup.PUT("/models/:id", modelService.EditModel)
	apiGroup.DELETE("/models/:id", modelService.DeleteModel)
	apiGroup.POST("/models/test", modelService.TestModelConnection)
	apiGroup.GET("/models/provider-keys", modelService.GetProviderApiKeys)
	apiGroup.GET("/models/presets", modelService.GetProviderPresets)

	s.ginEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, models.Response{Code: 200, Message: "OK"})
	})
	return nil
}

// Start binds the listener and serves in the background until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	port := s.cfg.Port()
	if v := os.Getenv("DOCLENS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 && p <= 65535 {
			port = p
		} else {
			s.logger.Warn("Invalid DOCLENS_PORT value, falling back to config", "value", v, "port", port)
		}
	}

	addr := net.JoinHostPort(s.cfg.Host(), strconv.Itoa(port))
	srv := &http.Server{Addr: addr, Handler: s.ginEngine}

	// Attempt to listen on port first; if occupied return error immediately
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}

	// Record the actual port (useful with port 0).
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	} else {
		s.port = port
	}
	s.logger.Info("Server listening", "addr", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	// Listen for context cancellation for graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.close()
		close(s.done)
	}()

	// Non-blocking: if startup fails immediately return error; otherwise return nil to let main continue
	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	default:
	}
	return nil
}

// URL is the base URL clients should use once the server has started.
func (s *Server) URL() string {
	host := s.cfg.Host()
	if host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, strconv.Itoa(s.port)))
}

// Wait blocks until the server has shut down and the store is closed.
func (s *Server) Wait() {
	<-s.done
}

func (s *Server) close() {
	for _, fn := range s.cleanup {
		fn()
	}
	if s.conversations != nil {
		s.conversations.Wait()
	}
	if err := s.backend.Close(); err != nil {
		s.logger.Warn("Failed to close store", "error", err)
	}
}
