// Package server exposes the HTTP surface: the WhatsApp webhook, a classification
// endpoint, health and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xaenox/micronote/internal/models"
	"github.com/xaenox/micronote/internal/pipeline"
	"github.com/xaenox/micronote/internal/replies"
	"github.com/xaenox/micronote/internal/whatsapp"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type Processor interface {
	Process(ctx context.Context, in pipeline.Input) (*pipeline.Result, error)
}

type Classifier interface {
	Classify(ctx context.Context, text string, aiEligible bool) models.ClassificationResult
}

// Replier sends a confirmation back to a WhatsApp sender.
type Replier interface {
	SendText(ctx context.Context, to, text string) error
}

type Config struct {
	Port int
	// VerifyToken answers the hub.verify_token handshake of the webhook subscription.
	VerifyToken string
}

type Server struct {
	router     *gin.Engine
	cfg        Config
	processor  Processor
	classifier Classifier
	replier    Replier
	logger     *zap.Logger

	// inflight tracks webhook messages still running after their 200 went out.
	inflight sync.WaitGroup
}

func New(cfg Config, processor Processor, classifier Classifier, replier Replier, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:     router,
		cfg:        cfg,
		processor:  processor,
		classifier: classifier,
		replier:    replier,
		logger:     logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	wa := s.router.Group("/webhook/whatsapp")
	{
		wa.GET("", s.handleVerify)
		wa.POST("", s.handleWhatsApp)
	}

	api := s.router.Group("/api/v1")
	{
		api.POST("/classify", s.handleClassify)
	}
}

// Handler returns the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server starting", zap.Int("port", s.cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Wait()
	if err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// Wait blocks until every acknowledged webhook message has been processed.
func (s *Server) Wait() {
	s.inflight.Wait()
}

func (s *Server) handleVerify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || s.cfg.VerifyToken == "" || token != s.cfg.VerifyToken {
		s.logger.Warn("Rejected webhook verification", zap.String("mode", mode))
		c.Status(http.StatusForbidden)
		return
	}
	c.String(http.StatusOK, challenge)
}

func (s *Server) handleWhatsApp(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		s.logger.Error("Failed to read webhook body", zap.Error(err))
		c.Status(http.StatusOK)
		return
	}

	messages, err := whatsapp.ParseWebhook(body)
	if err != nil {
		s.logger.Warn("Ignoring malformed webhook", zap.Error(err))
		c.Status(http.StatusOK)
		return
	}

	// The Cloud API retries anything but a prompt 200, so processing happens after the ack.
	ctx := context.WithoutCancel(c.Request.Context())
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		for _, msg := range messages {
			s.processWhatsApp(ctx, msg)
		}
	}()

	c.Status(http.StatusOK)
}

func (s *Server) processWhatsApp(ctx context.Context, msg whatsapp.InboundMessage) {
	correlationID := uuid.New().String()
	result, err := s.processor.Process(ctx, pipeline.Input{
		Channel:       models.ChannelWhatsApp,
		SenderID:      msg.From,
		Text:          msg.Text,
		RawPayload:    msg.Payload,
		CorrelationID: correlationID,
	})

	var reply string
	switch {
	case errors.Is(err, pipeline.ErrUserNotFound):
		reply = replies.UnknownUser
	case err != nil:
		s.logger.Error("Failed to process WhatsApp message",
			zap.Error(err),
			zap.String("correlation_id", correlationID),
			zap.String("message_id", msg.ID))
		reply = replies.Failure
	default:
		types := make([]models.NoteType, 0, len(result.Notes))
		for _, note := range result.Notes {
			types = append(types, note.Type)
		}
		reply = replies.Confirmation(types...)
	}

	if s.replier == nil {
		return
	}
	if err := s.replier.SendText(ctx, msg.From, reply); err != nil {
		s.logger.Error("Failed to send WhatsApp reply",
			zap.Error(err),
			zap.String("correlation_id", correlationID))
	}
}

type classifyRequest struct {
	Text       string `json:"text" binding:"required"`
	AIEligible bool   `json:"ai_eligible"`
}

func (s *Server) handleClassify(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text must not be empty"})
		return
	}

	result := s.classifier.Classify(c.Request.Context(), req.Text, req.AIEligible)
	c.JSON(http.StatusOK, gin.H{
		"type":   result.Type,
		"source": result.Source,
	})
}
