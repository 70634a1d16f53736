package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/inkwell-backend/internal/billing/plans"
	"github.com/yungbote/inkwell-backend/internal/jobs/pipeline/tool_image"
	jobruntime "github.com/yungbote/inkwell-backend/internal/jobs/runtime"
	"github.com/yungbote/inkwell-backend/internal/jobs/scheduler"
	"github.com/yungbote/inkwell-backend/internal/jobs/worker"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
	"github.com/yungbote/inkwell-backend/internal/realtime"
	"github.com/yungbote/inkwell-backend/internal/services"
)

type Services struct {
	Imaging     services.ImagingService
	Mailer      services.Mailer
	Billing     services.BillingService
	Usage       services.UsageService
	Auth        services.AuthService
	User        services.UserService
	Project     services.ProjectService
	Invite      services.InviteService
	Template    services.TemplateService
	Asset       services.AssetService
	Generation  services.GenerationService
	Job         services.JobService
	Tool        services.ToolService
	Analytics   services.AnalyticsService
	JobNotifier services.JobNotifier

	JobRegistry *jobruntime.Registry
	JobWorker   *worker.Worker
	Scheduler   *scheduler.Scheduler
}

// emitterFor picks where events go. With a bus every instance publishes and
// each API process forwards the bus into its own hub.
func emitterFor(log *logger.Logger, clients Clients, hub *realtime.SSEHub) services.SSEEmitter {
	if clients.SSEBus != nil {
		return &services.RedisEmitter{Bus: clients.SSEBus, Log: log}
	}
	return &services.HubEmitter{Hub: hub}
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, catalog *plans.Catalog, r Repos, clients Clients, hub *realtime.SSEHub) (Services, error) {
	log.Info("Wiring services...")

	imaging, err := services.NewImagingService(log, clients.Bucket)
	if err != nil {
		return Services{}, fmt.Errorf("init imaging service: %w", err)
	}

	emitter := emitterFor(log, clients, hub)
	events := services.NewEventNotifier(emitter)
	jobNotifier := services.NewJobNotifier(emitter)
	mailer := services.NewMailer(log, clients.Mail)

	billing := services.NewBillingService(db, log, catalog, r.User, r.Plan, r.Subscription, r.BillingEvent, clients.Stripe, events, cfg.AppBaseURL)
	usage := services.NewUsageService(db, log, billing, r.Usage)
	auth := services.NewAuthService(
		db, log,
		catalog,
		r.User,
		r.UserToken,
		r.Subscription,
		imaging,
		cfg.JWTSecretKey,
		cfg.AccessTokenTTL,
		cfg.RefreshTokenTTL,
		cfg.AdminEmails,
	)
	user := services.NewUserService(log, r.User, billing, usage)
	projects := services.NewProjectService(db, log, billing, r.Project, r.Member, r.Invite, r.Template, r.Asset, r.User, imaging, events, hub)
	invites := services.NewInviteService(db, log, billing, r.Project, r.Member, r.Invite, r.User, mailer, events, cfg.AppBaseURL, cfg.InviteTTL)
	templates := services.NewTemplateService(log, projects, r.Template)
	assets := services.NewAssetService(db, log, r.Asset, r.Generation, r.Project, r.Member, clients.Bucket, imaging, events)
	generations := services.NewGenerationService(log, r.Generation, r.Asset)
	jobs := services.NewJobService(db, log, r.JobRun, jobNotifier)
	tools := services.NewToolService(
		db, log,
		usage,
		templates,
		assets,
		jobs,
		r.Project,
		r.Member,
		r.Generation,
		clients.AI,
		clients.Document,
		clients.Bucket,
		jobNotifier,
	)
	analytics := services.NewAnalyticsService(log, billing, r.User, r.Subscription, r.Usage, r.Generation, r.Snapshot, clients.Cache)

	registry := jobruntime.NewRegistry()
	deps := tool_image.Deps{
		Log:         log,
		Generations: r.Generation,
		Assets:      assets,
		Failer:      tools,
		AI:          clients.AI,
		Bucket:      clients.Bucket,
	}
	if err := registry.Register(tool_image.NewGenerate(deps)); err != nil {
		return Services{}, err
	}
	if err := registry.Register(tool_image.NewEdit(deps)); err != nil {
		return Services{}, err
	}
	jobWorker := worker.NewWorker(db, log, r.JobRun, registry, jobNotifier, worker.ConfigFromEnv())
	cron := scheduler.New(log, analytics, invites)
	if err := cron.Register(); err != nil {
		return Services{}, fmt.Errorf("register cron entries: %w", err)
	}

	return Services{
		Imaging:     imaging,
		Mailer:      mailer,
		Billing:     billing,
		Usage:       usage,
		Auth:        auth,
		User:        user,
		Project:     projects,
		Invite:      invites,
		Template:    templates,
		Asset:       assets,
		Generation:  generations,
		Job:         jobs,
		Tool:        tools,
		Analytics:   analytics,
		JobNotifier: jobNotifier,
		JobRegistry: registry,
		JobWorker:   jobWorker,
		Scheduler:   cron,
	}, nil
}
