package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dekoor/whatsapp-crm-backend/internal/api"
	"github.com/dekoor/whatsapp-crm-backend/internal/attribution"
	"github.com/dekoor/whatsapp-crm-backend/internal/cache"
	"github.com/dekoor/whatsapp-crm-backend/internal/capi"
	"github.com/dekoor/whatsapp-crm-backend/internal/config"
	"github.com/dekoor/whatsapp-crm-backend/internal/ingest"
	"github.com/dekoor/whatsapp-crm-backend/internal/logging"
	"github.com/dekoor/whatsapp-crm-backend/internal/media"
	"github.com/dekoor/whatsapp-crm-backend/internal/metrics"
	"github.com/dekoor/whatsapp-crm-backend/internal/store"
	"github.com/dekoor/whatsapp-crm-backend/internal/webhook"
	"github.com/dekoor/whatsapp-crm-backend/internal/whatsapp"
	"github.com/dekoor/whatsapp-crm-backend/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting whatsapp-crm-backend", "port", cfg.Port)

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	contactStore, err := store.Open(cfg.DatabaseURL, cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	// The redis dedup guard is optional; without it duplicate webhook
	// deliveries fall through to the store.
	var dedup ingest.DedupGuard
	if cfg.RedisAddr != "" {
		redisClient := cache.New(cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		defer redisClient.Close()
		if err := redisClient.Ping(context.Background()); err != nil {
			logger.Warn("redis ping failed, dedup guard degraded", "error", err)
		}
		dedup = redisClient
	}

	waClient := whatsapp.New(whatsapp.Config{
		GraphVersion:  cfg.GraphVersion,
		Token:         cfg.WhatsAppToken,
		PhoneNumberID: cfg.PhoneNumberID,
	}, logger, metricRegistry)

	mediaStorage, err := media.NewStorage(cfg.MediaDir, cfg.PublicBaseURL, waClient, logger)
	if err != nil {
		return fmt.Errorf("init media storage: %w", err)
	}

	capiClient := capi.New(capi.Config{
		PixelID: cfg.PixelID,
		Token:   cfg.CAPIToken,
	}, logger, metricRegistry)
	engine := attribution.NewEngine(contactStore, capiClient, cfg.Currency, metricRegistry, logger)

	hub := ws.NewHub(logger)
	go hub.Run()

	ingestor := ingest.NewIngestor(contactStore, mediaStorage, engine, dedup, hub, metricRegistry, logger)
	reconciler := ingest.NewReconciler(contactStore, hub, metricRegistry, logger)

	webhookHandler := webhook.NewHandler(cfg.VerifyToken, ingestor, reconciler, metricRegistry, logger)
	contactHandler := api.NewContactHandler(contactStore, logger)
	sendHandler := api.NewSendHandler(contactStore, waClient, hub, cfg.SessionWindow, logger)
	conversionHandler := api.NewConversionHandler(engine, logger)

	r := gin.Default()

	// CORS for the inbox frontend.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, Origin")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	r.GET("/webhook", webhookHandler.Verify)
	r.POST("/webhook", webhookHandler.Receive)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/contacts", contactHandler.GetContacts)
		apiGroup.GET("/contacts/:waId/messages", contactHandler.GetMessages)
		apiGroup.POST("/contacts/:waId/send", sendHandler.Send)
		apiGroup.POST("/contacts/:waId/register", conversionHandler.MarkRegistration)
		apiGroup.POST("/contacts/:waId/purchase", conversionHandler.MarkPurchase)
		apiGroup.POST("/contacts/:waId/view-content", conversionHandler.SendViewContent)
	}

	r.GET("/ws", func(c *gin.Context) {
		hub.ServeWs(c.Writer, c.Request)
	})
	r.Static("/media", cfg.MediaDir)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	logger.Info("server listening", "port", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		return fmt.Errorf("run server: %w", err)
	}
	return nil
}
