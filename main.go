package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/crafttrace/settlement/internal/handler"
	"github.com/crafttrace/settlement/internal/infrastructure"
	"github.com/crafttrace/settlement/internal/middleware"
	"github.com/crafttrace/settlement/internal/service"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg := infrastructure.LoadConfig()

	// Initialize database connection
	db, err := infrastructure.ConnectDatabase(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := infrastructure.MigrateAllSchemas(db); err != nil {
		logger.Fatal("Failed to migrate database schemas", zap.Error(err))
	}

	// Initialize services
	ledgerClient := infrastructure.NewFabricGatewayClient(cfg.Ledger, logger)
	assetService := service.NewAssetTransferService(db, ledgerClient, logger, cfg.Ledger.TransferTimeout)
	inventoryService := service.NewInventoryService(db)
	cartService := service.NewCartService(db)

	payments, err := buildPaymentManager(cfg.Payment, logger)
	if err != nil {
		logger.Fatal("Failed to initialize payment gateways", zap.Error(err))
	}
	orderService := service.NewOrderService(db, inventoryService, payments, assetService, logger)

	// Initialize handlers
	orderHandler := handler.NewOrderHandler(orderService)
	paymentHandler := handler.NewPaymentHandler(orderService, logger)
	cartHandler := handler.NewCartHandler(cartService)
	assetHandler := handler.NewAssetHandler(assetService)

	// Setup Gin router
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider callbacks are authenticated by signature, not by token
	notify := r.Group("/api/payment/notify")
	notify.POST("/alipay", paymentHandler.AlipayNotify)
	notify.POST("/wechat", paymentHandler.WechatNotify)
	notify.POST("/stripe", paymentHandler.StripeNotify)
	r.GET("/api/payment/return", paymentHandler.Return)

	// Protected routes
	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware([]byte(cfg.JWTSecret)))

	api.GET("/cart", cartHandler.List)
	api.POST("/cart/items", cartHandler.Add)
	api.PUT("/cart/items/:productId", cartHandler.Update)
	api.DELETE("/cart/items/:productId", cartHandler.Remove)
	api.DELETE("/cart", cartHandler.Clear)

	api.POST("/orders", orderHandler.Create)
	api.GET("/orders/my", orderHandler.ListMine)
	api.GET("/orders/:id", orderHandler.Get)
	api.GET("/orders/number/:orderNumber", orderHandler.GetByNumber)
	api.POST("/orders/:id/cancel", orderHandler.Cancel)
	api.PUT("/orders/:id/status", middleware.RequireAdmin(), orderHandler.UpdateStatus)

	api.POST("/payment/create/:id", paymentHandler.CreatePayment)
	api.GET("/payment/status/:id", paymentHandler.Status)
	api.POST("/payment/refund/:id", paymentHandler.Refund)

	api.GET("/assets/:assetId", assetHandler.Get)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Info("Server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Drain in-flight asset transfers before exiting
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
	}
	assetService.Wait()
}

// buildPaymentManager registers every provider whose credentials are
// configured.
func buildPaymentManager(cfg infrastructure.PaymentConfig, logger *zap.Logger) (*service.PaymentManager, error) {
	manager := service.NewPaymentManager()
	shared := service.GatewayConfig{
		ReturnURL: cfg.ReturnURL,
		NotifyURL: cfg.NotifyURL,
		Subject:   cfg.Subject,
	}

	if cfg.AlipayAppID != "" {
		privateKey, err := service.LoadRSAPrivateKey(cfg.AlipayPrivateKeyPath)
		if err != nil {
			return nil, err
		}
		publicKey, err := service.LoadRSAPublicKey(cfg.AlipayPublicKeyPath)
		if err != nil {
			return nil, err
		}
		manager.Register(service.NewAlipayGateway(service.AlipayConfig{
			GatewayConfig: shared,
			AppID:         cfg.AlipayAppID,
			GatewayURL:    cfg.AlipayGatewayURL,
			PrivateKey:    privateKey,
			PublicKey:     publicKey,
		}, logger))
		logger.Info("Registered payment gateway", zap.String("method", "ALIPAY"))
	}

	if cfg.WechatMchID != "" {
		privateKey, err := service.LoadRSAPrivateKey(cfg.WechatPrivateKeyPath)
		if err != nil {
			return nil, err
		}
		platformKey, err := service.LoadRSAPublicKey(cfg.WechatPlatformCertPath)
		if err != nil {
			return nil, err
		}
		manager.Register(service.NewWechatGateway(service.WechatConfig{
			GatewayConfig:     shared,
			AppID:             cfg.WechatAppID,
			MchID:             cfg.WechatMchID,
			SerialNo:          cfg.WechatSerialNo,
			APIv3Key:          []byte(cfg.WechatAPIv3Key),
			PrivateKey:        privateKey,
			PlatformPublicKey: platformKey,
			APIBaseURL:        cfg.WechatAPIBaseURL,
		}, logger))
		logger.Info("Registered payment gateway", zap.String("method", "WECHAT_PAY"))
	}

	if cfg.StripeAPIKey != "" {
		manager.Register(service.NewStripeGateway(service.StripeConfig{
			GatewayConfig: shared,
			APIKey:        cfg.StripeAPIKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			SuccessURL:    cfg.StripeSuccessURL,
			CancelURL:     cfg.StripeCancelURL,
			Currency:      cfg.StripeCurrency,
		}, logger))
		logger.Info("Registered payment gateway", zap.String("method", "CREDIT_CARD"))
	}

	return manager, nil
}
