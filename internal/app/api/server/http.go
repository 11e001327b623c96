package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jameswitika/iei.org.au/docs"
	"github.com/jameswitika/iei.org.au/internal/app/api/handlers"
	"github.com/jameswitika/iei.org.au/internal/app/service/activitylog"
	"github.com/jameswitika/iei.org.au/internal/app/service/application"
	"github.com/jameswitika/iei.org.au/internal/app/service/board"
	"github.com/jameswitika/iei.org.au/internal/app/service/identity"
	"github.com/jameswitika/iei.org.au/internal/app/service/member"
	"github.com/jameswitika/iei.org.au/internal/app/service/payment"
	cfgpkg "github.com/jameswitika/iei.org.au/pkg/config"
	"github.com/jameswitika/iei.org.au/pkg/types"

	mw "github.com/jameswitika/iei.org.au/internal/app/api/middleware"

	metrics "github.com/jameswitika/iei.org.au/pkg/metrics"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Add request tracing middleware only; request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

type routeDeps struct {
	fx.In

	Log      *zap.SugaredLogger
	Cfg      *cfgpkg.Config
	Identity *identity.Service
	AppSvc   *application.Service
	Board    *board.Service
	Member   *member.Service
	Payment  *payment.Service
	Audit    *activitylog.Service
}

func registerRoutes(r *gin.Engine, d routeDeps) {
	// Prometheus metrics
	if d.Cfg != nil && d.Cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: d.Log,
		})
		p.SetListenAddress(d.Cfg.MetricsAddr)
		p.Use(r)

		d.Log.Infow("metrics started", "addr", d.Cfg.MetricsAddr)
	}

	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(d.Log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)
	// Swagger UI
	docs.SwaggerInfo.BasePath = "/"
	pub.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Gateway webhooks: no auth, always acked
	handlers.RegisterWebhookRoutes(pub.Group("/webhooks"), d.Payment, d.Log)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(d.Log), mw.AccessLogMiddleware())

	// Public application submission (guarded by the form token, not auth)
	handlers.RegisterAuthRoutes(apiV1.Group("/auth"), d.Identity)
	handlers.RegisterApplicationRoutes(apiV1.Group("/applications"), d.AppSvc, d.Identity)

	// Member account surface
	account := apiV1.Group("/account")
	account.Use(mw.AuthMiddleware(d.Identity))
	handlers.RegisterAccountRoutes(account, d.Member, d.Payment)

	// Director board review
	boardGroup := apiV1.Group("/board")
	boardGroup.Use(mw.AuthMiddleware(d.Identity), mw.RequireRole(types.MembershipRoleDirector))
	handlers.RegisterBoardRoutes(boardGroup, d.AppSvc, d.Board)

	// Admin surface for officers
	admin := apiV1.Group("/admin")
	admin.Use(mw.AuthMiddleware(d.Identity), mw.RequireRole(types.MembershipRolePreapprovalOfficer))
	handlers.RegisterAdminRoutes(admin, d.AppSvc, d.Member, d.Payment, d.Audit)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
