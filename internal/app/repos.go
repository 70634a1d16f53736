package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/inkwell-backend/internal/data/repos"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

type Repos struct {
	User         repos.UserRepo
	UserToken    repos.UserTokenRepo
	Plan         repos.PlanRepo
	Subscription repos.SubscriptionRepo
	BillingEvent repos.BillingEventRepo
	Usage        repos.UsageRepo
	Project      repos.ProjectRepo
	Member       repos.ProjectMemberRepo
	Invite       repos.ProjectInviteRepo
	Template     repos.TemplateRepo
	Generation   repos.GenerationRepo
	Asset        repos.AssetRepo
	JobRun       repos.JobRunRepo
	Snapshot     repos.SnapshotRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:         repos.NewUserRepo(db, log),
		UserToken:    repos.NewUserTokenRepo(db, log),
		Plan:         repos.NewPlanRepo(db, log),
		Subscription: repos.NewSubscriptionRepo(db, log),
		BillingEvent: repos.NewBillingEventRepo(db, log),
		Usage:        repos.NewUsageRepo(db, log),
		Project:      repos.NewProjectRepo(db, log),
		Member:       repos.NewProjectMemberRepo(db, log),
		Invite:       repos.NewProjectInviteRepo(db, log),
		Template:     repos.NewTemplateRepo(db, log),
		Generation:   repos.NewGenerationRepo(db, log),
		Asset:        repos.NewAssetRepo(db, log),
		JobRun:       repos.NewJobRunRepo(db, log),
		Snapshot:     repos.NewSnapshotRepo(db, log),
	}
}
