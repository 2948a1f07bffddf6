package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/imkonsowa/catalog-recommender/recommender"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const requestIDHeader = "X-Request-ID"

type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

type Server struct {
	answerer Answerer
	ping     func(ctx context.Context) error
	engine   *gin.Engine
}

type QuestionRequest struct {
	Query string `json:"query" binding:"required"`
}

// NewServer wires the routes. ping backs /healthz and may be nil.
func NewServer(answerer Answerer, ping func(ctx context.Context) error) *Server {
	s := &Server{
		answerer: answerer,
		ping:     ping,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog())

	r.POST("/post_question", s.postQuestion)
	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine = r

	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) postQuestion(c *gin.Context) {
	var req QuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, `request body must be a JSON object with a "query" string`)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		c.String(http.StatusBadRequest, "query must not be empty")
		return
	}

	answer, err := s.answerer.Answer(c.Request.Context(), req.Query)
	if err != nil {
		status, body := errorResponse(err)
		c.String(status, body)
		return
	}

	c.String(http.StatusOK, answer)
}

// errorResponse maps a pipeline failure to a status and a body naming the
// stage and a short cause. Wrapped details stay in the logs.
func errorResponse(err error) (int, string) {
	var stageErr *recommender.StageError
	if !errors.As(err, &stageErr) {
		return http.StatusInternalServerError, "internal error"
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, recommender.ErrEmptyQuestion):
		status = http.StatusBadRequest
	case stageErr.Timeout():
		status = http.StatusGatewayTimeout
	}

	return status, string(stageErr.Stage) + " failed: " + stageErr.Cause()
}

func (s *Server) healthz(c *gin.Context) {
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := s.ping(ctx); err != nil {
			slog.Warn("health check failed", "error", err)
			c.String(http.StatusServiceUnavailable, "catalog unavailable")
			return
		}
	}

	c.String(http.StatusOK, "ok")
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(recommender.WithRequestID(c.Request.Context(), id))

		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		id, _ := recommender.RequestID(c.Request.Context())
		slog.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(started),
			"request_id", id,
		)
	}
}

// Run serves on addr until ctx is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		slog.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
