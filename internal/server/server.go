package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/storefront-ledger/internal/authorization"
	bonusdomain "github.com/smallbiznis/storefront-ledger/internal/bonus/domain"
	"github.com/smallbiznis/storefront-ledger/internal/config"
	discountdomain "github.com/smallbiznis/storefront-ledger/internal/discount/domain"
	obslogger "github.com/smallbiznis/storefront-ledger/internal/observability/logger"
	obstracing "github.com/smallbiznis/storefront-ledger/internal/observability/tracing"
	"github.com/smallbiznis/storefront-ledger/internal/orderevents"
	payoutdomain "github.com/smallbiznis/storefront-ledger/internal/payout/domain"
	referraldomain "github.com/smallbiznis/storefront-ledger/internal/referral/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(classifyErrorForLog))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
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
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	referralSvc referraldomain.Service
	bonusSvc    bonusdomain.Service
	payoutSvc   payoutdomain.Service
	discountSvc discountdomain.Service
	authzSvc    authorization.Service
	orderEvents *orderevents.Handler
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	ReferralSvc referraldomain.Service
	BonusSvc    bonusdomain.Service
	PayoutSvc   payoutdomain.Service
	DiscountSvc discountdomain.Service
	AuthzSvc    authorization.Service
	OrderEvents *orderevents.Handler
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		referralSvc: p.ReferralSvc,
		bonusSvc:    p.BonusSvc,
		payoutSvc:   p.PayoutSvc,
		discountSvc: p.DiscountSvc,
		authzSvc:    p.AuthzSvc,
		orderEvents: p.OrderEvents,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerInternalRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.IdentityRequired())

	referral := api.Group("/referral")
	{
		referral.GET("/me", s.GetMyReferral)
		referral.GET("/me/children", s.ListMyChildren)
		referral.GET("/me/children/search", s.SearchMyChildren)
		referral.GET("/me/top", s.ListTopChildren)
		referral.GET("/me/bonuses", s.ListMyBonuses)
		referral.POST("/me/sign-conditions", s.SignConditions)
		referral.POST("/me/sign-user-terms", s.SignUserTerms)
		referral.POST("/attach", s.AttachReferral)

		referral.POST("/payouts", s.CreatePayout)
		referral.GET("/payouts", s.ListMyPayouts)

		referral.GET("/:id", s.GetReferralNode)
		referral.GET("/:id/children", s.ListNodeChildren)
	}

	discount := api.Group("/discount")
	{
		discount.GET("/me/progress", s.GetDiscountProgress)
		discount.GET("/me/multiplier", s.GetDiscountMultiplier)
	}
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", s.IdentityRequired())

	admin.GET("/payouts", s.authorizeAction(authorization.ObjectPayoutRequest, authorization.ActionPayoutView), s.ListPayouts)
	admin.GET("/payouts/:id", s.authorizeAction(authorization.ObjectPayoutRequest, authorization.ActionPayoutView), s.GetPayout)
	admin.POST("/payouts/:id/approve", s.authorizeAction(authorization.ObjectPayoutRequest, authorization.ActionPayoutApprove), s.ApprovePayout)
	admin.POST("/payouts/:id/reject", s.authorizeAction(authorization.ObjectPayoutRequest, authorization.ActionPayoutReject), s.RejectPayout)
}

func (s *Server) registerInternalRoutes() {
	internal := s.engine.Group("/internal")

	internal.POST("/order-events", s.IngestOrderEvent)
}
