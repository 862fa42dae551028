package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/suggest/internal/logger"
)

// Server is the HTTP API server.
type Server struct {
	ports  *Ports
	router *gin.Engine
}

// NewServer creates a new HTTP API server with the given ports.
func NewServer(ports *Ports) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	s := &Server{
		ports:  ports,
		router: router,
	}

	router.GET("/healthz", s.handleHealth)

	api := router.Group("/api/v1")
	{
		project := api.Group("/projects/:project")
		project.POST("/predict", s.handlePredict)
		project.GET("/status", s.handleStatus)
		project.GET("/predictions", s.handlePredictions)
		project.POST("/predictions/switch", s.handleSwitch)
		project.GET("/suggestions/:vid", s.handleSuggestion)
		project.POST("/suggestions/:vid/:action", s.handleAction)
		project.GET("/documents", s.handleDocuments)
		project.GET("/text/*name", s.handleDocumentText)

		api.POST("/recommenders/:id/sync", s.handleSync)
		api.POST("/recommenders/:id/evaluate", s.handleEvaluate)
		api.GET("/recommenders/:id/classifiers", s.handleClassifiers)

		api.GET("/tasks", s.handleTasks)
		api.GET("/tasks/:id/history", s.handleTaskHistory)
	}

	return s, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves the API on addr until the context is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	logger.Info("HTTP API listening on %s", addr)
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// requestLogger logs every request at debug level.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugw("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
