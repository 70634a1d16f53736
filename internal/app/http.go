package app

import (
	"gorm.io/gorm"

	apphttp "github.com/yungbote/inkwell-backend/internal/http"
	httpH "github.com/yungbote/inkwell-backend/internal/http/handlers"
	httpMW "github.com/yungbote/inkwell-backend/internal/http/middleware"
	"github.com/yungbote/inkwell-backend/internal/observability"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
	"github.com/yungbote/inkwell-backend/internal/realtime"
)

func wireRouterConfig(db *gorm.DB, log *logger.Logger, cfg Config, svc Services, hub *realtime.SSEHub, metrics *observability.Metrics) apphttp.RouterConfig {
	log.Info("Wiring handlers...")
	return apphttp.RouterConfig{
		Log:            log,
		Metrics:        metrics,
		TracingEnabled: cfg.OTelEnabled,
		CORSOrigins:    cfg.CORSOrigins,

		AuthMiddleware: httpMW.NewAuthMiddleware(log, svc.Auth),
		ToolRateLimit:  httpMW.NewRateLimiter(cfg.ToolRatePerSecond, cfg.ToolRateBurst),
		UsageService:   svc.Usage,

		AuthHandler:       httpH.NewAuthHandler(svc.Auth),
		UserHandler:       httpH.NewUserHandler(svc.User, svc.Usage),
		BillingHandler:    httpH.NewBillingHandler(log, svc.Billing),
		ToolHandler:       httpH.NewToolHandler(log, svc.Tool, svc.Usage),
		GenerationHandler: httpH.NewGenerationHandler(svc.Generation),
		JobHandler:        httpH.NewJobHandler(svc.Job),
		ProjectHandler:    httpH.NewProjectHandler(svc.Project),
		InviteHandler:     httpH.NewInviteHandler(svc.Invite),
		TemplateHandler:   httpH.NewTemplateHandler(svc.Template),
		AssetHandler:      httpH.NewAssetHandler(svc.Asset),
		RealtimeHandler:   httpH.NewRealtimeHandler(log, hub, svc.Project),
		AdminHandler:      httpH.NewAdminHandler(svc.Analytics),
		HealthHandler:     httpH.NewHealthHandler(db),
	}
}
