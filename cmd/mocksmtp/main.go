package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/beaconblast/campaign-delivery/internal/config"
	"github.com/beaconblast/campaign-delivery/internal/mocksmtp"
	"github.com/beaconblast/campaign-delivery/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Handler exposes the mock server's mailbox and settings over HTTP.
type Handler struct {
	smtp *mocksmtp.Server
}

func NewHandler(smtp *mocksmtp.Server) *Handler {
	return &Handler{smtp: smtp}
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"smtp_addr": h.smtp.Addr(),
		"sessions":  h.smtp.Sessions(),
		"timestamp": time.Now(),
	})
}

// ListMessages returns accepted mail, optionally only mail addressed to ?to=.
func (h *Handler) ListMessages(c *gin.Context) {
	to := strings.ToLower(c.Query("to"))
	messages := h.smtp.Messages()
	if to != "" {
		filtered := messages[:0]
		for _, m := range messages {
			for _, rcpt := range m.To {
				if strings.ToLower(rcpt) == to {
					filtered = append(filtered, m)
					break
				}
			}
		}
		messages = filtered
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(messages),
		"messages": messages,
	})
}

func (h *Handler) ClearMessages(c *gin.Context) {
	h.smtp.ClearMessages()
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.smtp.Settings())
}

// UpdateConfig changes the bounce rate and the per address rejections at
// runtime. A rejections object replaces the current rules.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var req struct {
		BounceRate *float64                  `json:"bounce_rate"`
		Rejections map[string]mocksmtp.Reply `json:"rejections"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	for addr, reply := range req.Rejections {
		if reply.Code < 400 || reply.Code > 599 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "rejection code must be 4xx or 5xx", "address": addr})
			return
		}
	}

	if req.BounceRate != nil {
		if err := h.smtp.SetBounceRate(*req.BounceRate); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.Info("Updated bounce rate", "rate", *req.BounceRate)
	}
	if req.Rejections != nil {
		h.smtp.ClearRejections()
		for addr, reply := range req.Rejections {
			h.smtp.Reject(addr, reply)
		}
		logger.Info("Updated rejections", "count", len(req.Rejections))
	}

	c.JSON(http.StatusOK, h.smtp.Settings())
}

func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Request processed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	})

	router.GET("/health", handler.HealthCheck)
	router.GET("/messages", handler.ListMessages)
	router.DELETE("/messages", handler.ClearMessages)
	router.GET("/config", handler.GetConfig)
	router.PUT("/config", handler.UpdateConfig)

	return router
}

func main() {
	if err := config.Load(config.EnvPathFromArgs(os.Args)); err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	if config.Get().AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	smtpCfg := mocksmtp.Config{
		RequireAuth: config.Get().MockSMTPRequireAuth,
		Username:    config.Get().MockSMTPUsername,
		Password:    config.Get().MockSMTPPassword,
		BounceRate:  config.Get().MockSMTPBounceRate,
	}
	if config.Get().MockSMTPTLS {
		host, _, _ := net.SplitHostPort(config.Get().MockSMTPListenAddr)
		tlsCfg, _, err := mocksmtp.SelfSignedTLS("localhost", host)
		if err != nil {
			logger.Error("failed to create mock smtp certificate", "error", err)
			return
		}
		smtpCfg.TLSConfig = tlsCfg
	}
	smtpServer := mocksmtp.New(smtpCfg)
	if err := smtpServer.Start(config.Get().MockSMTPListenAddr); err != nil {
		logger.Error("failed to start mock smtp", "error", err)
		return
	}

	srv := &http.Server{
		Addr:         config.Get().MockSMTPAdminAddr,
		Handler:      SetupRouter(NewHandler(smtpServer)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Mock SMTP admin started", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down mock smtp...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("admin server forced to shutdown", "error", err)
	}
	if err := smtpServer.Close(); err != nil {
		logger.Error("failed closing mock smtp", "error", err)
	}
}
