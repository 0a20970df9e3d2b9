package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	commissiondomain "github.com/tekwealth/tekwealth/internal/commission/domain"
	"github.com/tekwealth/tekwealth/internal/config"
	"github.com/tekwealth/tekwealth/internal/observability"
	obsmiddleware "github.com/tekwealth/tekwealth/internal/observability/logger"
	obsmetrics "github.com/tekwealth/tekwealth/internal/observability/metrics"
	obstracing "github.com/tekwealth/tekwealth/internal/observability/tracing"
	paymentdomain "github.com/tekwealth/tekwealth/internal/payment/domain"
	plandomain "github.com/tekwealth/tekwealth/internal/plan/domain"
	"github.com/tekwealth/tekwealth/internal/ratelimit"
	referraldomain "github.com/tekwealth/tekwealth/internal/referral/domain"
	subscriptiondomain "github.com/tekwealth/tekwealth/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, log *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Logger:          log,
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(obstracing.MiddlewareConfig{ErrorClassifier: classifyErrorForLog}))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(CORS(cfg.CORS))
	r.Use(ErrorHandlingMiddleware())

	r.NoMethod(func(c *gin.Context) {
		AbortWithError(c, ErrMethodNotAllowed)
	})
	r.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if obsCfg.PrometheusEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, log *zap.Logger) *gin.Engine {
	return NewEngine(cfg, obsCfg, httpMetrics, log)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
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

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	subscriptionSvc subscriptiondomain.Service
	referralSvc     referraldomain.Service
	commissionSvc   commissiondomain.Service
	planSvc         plandomain.Service
	gateway         paymentdomain.Gateway
	limiter         *ratelimit.Limiter
	obsMetrics      *obsmetrics.Metrics
	referralCfg     *config.ReferralConfigHolder
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	SubscriptionSvc subscriptiondomain.Service
	ReferralSvc     referraldomain.Service
	CommissionSvc   commissiondomain.Service
	PlanSvc         plandomain.Service
	Gateway         paymentdomain.Gateway
	Limiter         *ratelimit.Limiter           `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics          `optional:"true"`
	ReferralCfg     *config.ReferralConfigHolder `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		subscriptionSvc: p.SubscriptionSvc,
		referralSvc:     p.ReferralSvc,
		commissionSvc:   p.CommissionSvc,
		planSvc:         p.PlanSvc,
		gateway:         p.Gateway,
		limiter:         p.Limiter,
		obsMetrics:      p.ObsMetrics,
		referralCfg:     p.ReferralCfg,
	}

	svc.registerPaymentRoutes()
	svc.registerReferralRoutes()
	svc.registerSubscriptionRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPaymentRoutes() {
	s.engine.POST("/payment", s.RateLimit(endpointPayment, s.limiter.AllowPayment), s.CreatePayment)
	s.engine.PUT("/payment", s.PaymentWebhook)
	s.engine.POST("/payment/reconcile", s.ReconcilePayment)
}

func (s *Server) registerReferralRoutes() {
	s.engine.POST("/referral", s.RateLimit(endpointReferral, s.limiter.AllowReferral), s.ReferralAction)
	s.engine.GET("/referral", s.ReferralStats)

	s.engine.GET("/referral/commissions", s.ListCommissions)
	s.engine.POST("/referral/commissions/:id/paid", s.MarkCommissionPaid)
}

func (s *Server) registerSubscriptionRoutes() {
	s.engine.GET("/plans", s.ListPlans)

	s.engine.GET("/subscriptions", s.ListSubscriptions)
	s.engine.GET("/subscriptions/:id", s.GetSubscription)
	s.engine.POST("/subscriptions/:id/cancel", s.CancelSubscription)
	s.engine.POST("/subscriptions/expire", s.ExpireSubscriptions)
}
