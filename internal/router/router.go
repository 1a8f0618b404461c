package router

import (
	"net/http"
	"time"

	"market/config"
	"market/internal/gateway"
	"market/internal/handler"
	"market/internal/middleware"
	"market/internal/repository"
	"market/internal/service"
	"market/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

func Setup(cfg *config.Config, db *gorm.DB) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.RequestLogger())
	r.Use(middleware.RateLimit(middleware.NewInMemoryRateLimiter(100, 60*time.Second)))

	// Repositories
	orderRepo := repository.NewOrderRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	productRepo := repository.NewProductRepository(db)

	// Gateways
	click := gateway.NewClick(cfg.Click, orderRepo)
	payme := gateway.NewPayme(cfg.Payme, orderRepo, paymentRepo)
	registry := gateway.NewRegistry()
	registry.Register(click.Name(), click)
	registry.Register(payme.Name(), payme)

	// Services
	notifier := service.NewLogNotifier()
	orderSvc := service.NewOrderService(orderRepo, productRepo, notifier, cfg.Orders.StrictStatusFlow)
	paymentSvc := service.NewPaymentService(paymentRepo, registry, cfg.Server.SiteURL)

	// Handlers
	orderHandler := handler.NewOrderHandler(orderSvc, cfg.Orders.Currency)
	paymentHandler := handler.NewPaymentHandler(paymentSvc, orderSvc)
	productHandler := handler.NewProductHandler(productRepo)
	webhookHandler := handler.NewWebhookHandler(click, payme)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		api.GET("/products", productHandler.List)
		api.GET("/products/:id", productHandler.Get)

		orders := api.Group("/orders")
		{
			orders.POST("", orderHandler.Create)
			orders.GET("", orderHandler.List)
			orders.GET("/:id", orderHandler.Get)
			orders.PATCH("/:id/status", orderHandler.UpdateStatus)
			orders.POST("/:id/cancel", orderHandler.Cancel)
		}

		payments := api.Group("/payments")
		{
			payments.POST("", paymentHandler.Create)
			payments.GET("/success", paymentHandler.Success)
			payments.GET("/:payment_id", paymentHandler.Get)
			payments.POST("/:payment_id/cancel", paymentHandler.Cancel)
			payments.POST("/:payment_id/refund", paymentHandler.Refund)
		}
	}

	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/click", webhookHandler.HandleClick)
		webhooks.POST("/payme", webhookHandler.HandlePayme)
	}

	return r
}
