package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	checkoutdomain "github.com/smallbiznis/boxoffice/internal/checkout/domain"
	"github.com/smallbiznis/boxoffice/internal/config"
	eventdomain "github.com/smallbiznis/boxoffice/internal/event/domain"
	inventorydomain "github.com/smallbiznis/boxoffice/internal/inventory/domain"
	ledgerdomain "github.com/smallbiznis/boxoffice/internal/ledger/domain"
	"github.com/smallbiznis/boxoffice/internal/observability"
	obsmiddleware "github.com/smallbiznis/boxoffice/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/boxoffice/internal/observability/metrics"
	obstracing "github.com/smallbiznis/boxoffice/internal/observability/tracing"
	payoutdomain "github.com/smallbiznis/boxoffice/internal/payout/domain"
	promodomain "github.com/smallbiznis/boxoffice/internal/promocode/domain"
	"github.com/smallbiznis/boxoffice/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg)
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
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	eventSvc        eventdomain.Service
	inventorySvc    inventorydomain.Service
	ledgerSvc       ledgerdomain.Service
	payoutSvc       payoutdomain.Service
	promoSvc        promodomain.Service
	checkoutSvc     checkoutdomain.Service
	checkoutLimiter *ratelimit.CheckoutLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	EventSvc        eventdomain.Service
	InventorySvc    inventorydomain.Service
	LedgerSvc       ledgerdomain.Service
	PayoutSvc       payoutdomain.Service
	PromoSvc        promodomain.Service
	CheckoutSvc     checkoutdomain.Service
	CheckoutLimiter *ratelimit.CheckoutLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics        `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		eventSvc:        p.EventSvc,
		inventorySvc:    p.InventorySvc,
		ledgerSvc:       p.LedgerSvc,
		payoutSvc:       p.PayoutSvc,
		promoSvc:        p.PromoSvc,
		checkoutSvc:     p.CheckoutSvc,
		checkoutLimiter: p.CheckoutLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerOrganizerRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerOrganizerRoutes() {
	api := s.engine.Group("/api/organizer")
	api.Use(OrganizerContext())

	api.POST("/events", s.CreateEvent)
	api.GET("/bank-accounts", s.ListBankAccounts)
	api.POST("/bank-accounts", s.RegisterBankAccount)

	event := api.Group("/events/:id", s.RequireEventOwner())
	{
		event.GET("", s.GetEvent)
		event.PATCH("", s.UpdateEvent)
		event.POST("/schedule", s.ScheduleEvent)
		event.POST("/publish", s.PublishEvent)
		event.POST("/postpone", s.PostponeEvent)
		event.POST("/cancel", s.CancelEvent)

		event.POST("/categories", s.CreateCategory)
		event.GET("/categories", s.ListCategories)

		event.GET("/ledger", s.GetLedger)
		event.GET("/ledger/transactions", s.ListLedgerTransactions)
		event.POST("/ledger/verify", s.VerifyLedger)
		event.POST("/ledger/retire", s.RetireLedger)

		event.POST("/payouts", s.RequestPayout)
		event.GET("/payouts", s.ListPayouts)
		event.GET("/payouts/pending", s.ListPendingPayouts)
		event.GET("/payouts/summary", s.PayoutSummary)

		event.POST("/promo-codes", s.CreatePromoCode)
		event.GET("/promo-codes", s.ListPromoCodes)
		event.POST("/promo-codes/validate", s.ValidatePromoCode)

		event.POST("/sales", s.CheckoutRateLimit(), s.Sell)
		event.POST("/refunds", s.CheckoutRateLimit(), s.Refund)
	}

	api.PUT("/categories/:id/quantity", s.AdjustCategoryQuantity)
	api.PUT("/categories/:id/sold-out", s.SetCategorySoldOut)
	api.GET("/payouts/:id", s.GetPayout)
	api.POST("/payouts/:id/advance", s.AdvancePayout)
	api.PATCH("/promo-codes/:id", s.UpdatePromoCode)
	api.GET("/promo-codes/:id/stats", s.PromoCodeStats)
	api.POST("/promo-codes/:id/deactivate", s.DeactivatePromoCode)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
