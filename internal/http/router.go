package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/inkwell-backend/internal/http/handlers"
	httpMW "github.com/yungbote/inkwell-backend/internal/http/middleware"
	"github.com/yungbote/inkwell-backend/internal/observability"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
	"github.com/yungbote/inkwell-backend/internal/services"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	TracingEnabled bool
	CORSOrigins    []string

	AuthMiddleware *httpMW.AuthMiddleware
	ToolRateLimit  *httpMW.RateLimiter
	UsageService   services.UsageService

	AuthHandler       *httpH.AuthHandler
	UserHandler       *httpH.UserHandler
	BillingHandler    *httpH.BillingHandler
	ToolHandler       *httpH.ToolHandler
	GenerationHandler *httpH.GenerationHandler
	JobHandler        *httpH.JobHandler
	ProjectHandler    *httpH.ProjectHandler
	InviteHandler     *httpH.InviteHandler
	TemplateHandler   *httpH.TemplateHandler
	AssetHandler      *httpH.AssetHandler
	RealtimeHandler   *httpH.RealtimeHandler
	AdminHandler      *httpH.AdminHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingEnabled {
		r.Use(otelgin.Middleware("inkwell-api"))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))

	api := r.Group("/api")
	{
		// Auth (public)
		if cfg.AuthHandler != nil {
			api.POST("/register", cfg.AuthHandler.Register)
			api.POST("/login", cfg.AuthHandler.Login)
			api.POST("/refresh", cfg.AuthHandler.Refresh)
		}
		// Stripe authenticates with the signature header.
		if cfg.BillingHandler != nil {
			api.POST("/billing/webhook", cfg.BillingHandler.Webhook)
		}
	}

	protected := api.Group("/")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}
	{
		if cfg.AuthHandler != nil {
			protected.POST("/logout", cfg.AuthHandler.Logout)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			protected.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
			protected.POST("/sse/subscribe", cfg.RealtimeHandler.SSESubscribe)
			protected.POST("/sse/unsubscribe", cfg.RealtimeHandler.SSEUnsubscribe)
		}

		// User (Me)
		if cfg.UserHandler != nil {
			protected.GET("/me", cfg.UserHandler.GetMe)
			protected.GET("/usage", cfg.UserHandler.GetUsage)
		}

		// Billing
		if cfg.BillingHandler != nil {
			protected.GET("/plans", cfg.BillingHandler.ListPlans)
			protected.GET("/billing/subscription", cfg.BillingHandler.GetSubscription)
			protected.POST("/billing/checkout", cfg.BillingHandler.Checkout)
			protected.POST("/billing/portal", cfg.BillingHandler.Portal)
		}

		// Tools: auth -> rate limit -> quota
		if cfg.ToolHandler != nil {
			chain := []gin.HandlerFunc{}
			if cfg.ToolRateLimit != nil {
				chain = append(chain, cfg.ToolRateLimit.Middleware())
			}
			if cfg.UsageService != nil {
				chain = append(chain, httpMW.RequireQuota(cfg.UsageService, "tool"))
			}
			chain = append(chain, cfg.ToolHandler.Run)
			protected.POST("/tools/:tool", chain...)
		}

		// Generations
		if cfg.GenerationHandler != nil {
			protected.GET("/generations", cfg.GenerationHandler.List)
			protected.GET("/generations/published", cfg.GenerationHandler.Published)
			protected.GET("/generations/:id", cfg.GenerationHandler.Get)
			protected.DELETE("/generations/:id", cfg.GenerationHandler.Delete)
		}

		// Job
		if cfg.JobHandler != nil {
			protected.GET("/jobs/:id", cfg.JobHandler.GetJob)
		}

		// Projects
		if cfg.ProjectHandler != nil {
			protected.GET("/projects", cfg.ProjectHandler.List)
			protected.POST("/projects", cfg.ProjectHandler.Create)
			protected.GET("/projects/:id", cfg.ProjectHandler.Get)
			protected.PATCH("/projects/:id", cfg.ProjectHandler.Update)
			protected.DELETE("/projects/:id", cfg.ProjectHandler.Delete)
			protected.GET("/projects/:id/members", cfg.ProjectHandler.ListMembers)
			protected.PATCH("/projects/:id/members/:userId", cfg.ProjectHandler.UpdateMemberRole)
			protected.DELETE("/projects/:id/members/:userId", cfg.ProjectHandler.RemoveMember)
			protected.POST("/projects/:id/transfer", cfg.ProjectHandler.TransferOwnership)
		}

		// Invites
		if cfg.InviteHandler != nil {
			protected.GET("/projects/:id/invites", cfg.InviteHandler.ListByProject)
			protected.POST("/projects/:id/invites", cfg.InviteHandler.Create)
			protected.DELETE("/projects/:id/invites/:inviteId", cfg.InviteHandler.Revoke)
			protected.GET("/invites", cfg.InviteHandler.ListMine)
			protected.POST("/invites/claim", cfg.InviteHandler.Claim)
		}

		// Templates
		if cfg.TemplateHandler != nil {
			protected.GET("/projects/:id/templates", cfg.TemplateHandler.List)
			protected.POST("/projects/:id/templates", cfg.TemplateHandler.Create)
			protected.GET("/templates/:id", cfg.TemplateHandler.Get)
			protected.PATCH("/templates/:id", cfg.TemplateHandler.Update)
			protected.DELETE("/templates/:id", cfg.TemplateHandler.Delete)
			protected.POST("/templates/:id/render", cfg.TemplateHandler.Render)
		}

		// Assets
		if cfg.AssetHandler != nil {
			protected.GET("/projects/:id/assets", cfg.AssetHandler.ListProject)
			protected.POST("/assets/:id/share", cfg.AssetHandler.Share)
			protected.DELETE("/assets/:id", cfg.AssetHandler.Delete)
		}
	}

	// Admin
	if cfg.AdminHandler != nil && cfg.AuthMiddleware != nil {
		admin := api.Group("/admin", cfg.AuthMiddleware.RequireAuth(), cfg.AuthMiddleware.RequireAdmin())
		admin.GET("/overview", cfg.AdminHandler.Overview)
		admin.GET("/timeseries", cfg.AdminHandler.Timeseries)
		admin.GET("/users", cfg.AdminHandler.ListUsers)
		admin.PATCH("/users/:id/plan", cfg.AdminHandler.SetUserPlan)
		admin.POST("/snapshot", cfg.AdminHandler.Snapshot)
	}

	return r
}
