package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kubev2v/inventory-collector/internal/config"
	"github.com/kubev2v/inventory-collector/internal/server/middlewares"
)

const apiV1 string = "/api/v1"

type Server struct {
	srv    *http.Server
	engine *gin.Engine
}

func NewServer(cfg *config.Configuration, registerHandlerFn func(router *gin.RouterGroup)) (*Server, error) {
	gin.SetMode(gin.DebugMode)
	if config.ServerModeType(cfg.Server.ServerMode) == config.ServerModeProd {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(
		middlewares.Logger(),
		ginzap.RecoveryWithZap(zap.L().Named("http"), true),
	)

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	router := engine.Group(apiV1)
	registerHandlerFn(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", cfg.Server.HTTPPort),
		Handler: engine,
	}

	return &Server{srv: srv, engine: engine}, nil
}

// Handler exposes the router, mostly for tests.
func (r *Server) Handler() http.Handler {
	return r.engine
}

// Start blocks serving requests until the server is stopped.
func (r *Server) Start(ctx context.Context) error {
	if err := r.srv.ListenAndServe(); err != nil {
		if !errors.Is(err, http.ErrServerClosed) {
			zap.S().Named("http").Errorw("failed to start server", "error", err)
		}
		return err
	}

	return nil
}

func (r *Server) Stop(ctx context.Context) {
	if err := r.srv.Shutdown(ctx); err != nil {
		zap.S().Named("http").Errorw("server shutdown", "error", err)
	}
}
