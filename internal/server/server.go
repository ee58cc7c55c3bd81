// Package server wires the HTTP surface: the gateway callback endpoint plus
// the operator actions on payments, invoices, notifications and webhooks.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/payline/internal/config"
	"github.com/smallbiznis/payline/internal/dunning"
	"github.com/smallbiznis/payline/internal/notification"
	paymentservice "github.com/smallbiznis/payline/internal/payment/service"
	"github.com/smallbiznis/payline/internal/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log.Named("http")))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	webhooksvc *webhook.Service
	paymentsvc *paymentservice.Service
	notifier   *notification.Dispatcher
	dunningsvc *dunning.Scheduler
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	Webhooksvc *webhook.Service
	Paymentsvc *paymentservice.Service
	Notifier   *notification.Dispatcher
	Dunningsvc *dunning.Scheduler
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("server"),
		webhooksvc: p.Webhooksvc,
		paymentsvc: p.Paymentsvc,
		notifier:   p.Notifier,
		dunningsvc: p.Dunningsvc,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.POST("/webhooks/midtrans", s.handleWebhook)

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/invoices/:id/payments", s.createPayment)
		v1.POST("/invoices/:id/void", s.voidInvoice)
		v1.POST("/invoices/:id/refund", s.refundInvoice)
		v1.POST("/payments/:id/verify", s.verifyPayment)
		v1.POST("/notifications/:id/resend", s.resendNotification)
		v1.POST("/webhook-events/:id/retry", s.retryWebhookEvent)
		v1.GET("/webhook-events/stalled", s.listStalledEvents)
		v1.POST("/dunning/run", s.runDunning)
	}
}

// actor reads the acting identity stamped on audit fields. Authentication
// itself lives outside this subsystem.
func actor(c *gin.Context) string {
	if v := c.GetHeader("X-Actor-Id"); v != "" {
		return v
	}
	return "system"
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
