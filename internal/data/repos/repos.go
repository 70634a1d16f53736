package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/inkwell-backend/internal/data/repos/analytics"
	"github.com/yungbote/inkwell-backend/internal/data/repos/auth"
	"github.com/yungbote/inkwell-backend/internal/data/repos/billing"
	"github.com/yungbote/inkwell-backend/internal/data/repos/content"
	"github.com/yungbote/inkwell-backend/internal/data/repos/jobs"
	"github.com/yungbote/inkwell-backend/internal/data/repos/projects"
	"github.com/yungbote/inkwell-backend/internal/data/repos/user"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

type UserRepo = user.UserRepo
type UserTokenRepo = auth.UserTokenRepo

type PlanRepo = billing.PlanRepo
type SubscriptionRepo = billing.SubscriptionRepo
type BillingEventRepo = billing.BillingEventRepo
type UsageRepo = billing.UsageRepo

type ProjectRepo = projects.ProjectRepo
type ProjectMemberRepo = projects.ProjectMemberRepo
type ProjectInviteRepo = projects.ProjectInviteRepo
type TemplateRepo = projects.TemplateRepo

type GenerationRepo = content.GenerationRepo
type AssetRepo = content.AssetRepo
type GenerationCursor = content.Cursor

type JobRunRepo = jobs.JobRunRepo
type ClaimPolicy = jobs.ClaimPolicy

type SnapshotRepo = analytics.SnapshotRepo

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo { return user.NewUserRepo(db, baseLog) }
func NewUserTokenRepo(db *gorm.DB, baseLog *logger.Logger) UserTokenRepo {
	return auth.NewUserTokenRepo(db, baseLog)
}

func NewPlanRepo(db *gorm.DB, baseLog *logger.Logger) PlanRepo { return billing.NewPlanRepo(db, baseLog) }
func NewSubscriptionRepo(db *gorm.DB, baseLog *logger.Logger) SubscriptionRepo {
	return billing.NewSubscriptionRepo(db, baseLog)
}
func NewBillingEventRepo(db *gorm.DB, baseLog *logger.Logger) BillingEventRepo {
	return billing.NewBillingEventRepo(db, baseLog)
}
func NewUsageRepo(db *gorm.DB, baseLog *logger.Logger) UsageRepo {
	return billing.NewUsageRepo(db, baseLog)
}

func NewProjectRepo(db *gorm.DB, baseLog *logger.Logger) ProjectRepo {
	return projects.NewProjectRepo(db, baseLog)
}
func NewProjectMemberRepo(db *gorm.DB, baseLog *logger.Logger) ProjectMemberRepo {
	return projects.NewProjectMemberRepo(db, baseLog)
}
func NewProjectInviteRepo(db *gorm.DB, baseLog *logger.Logger) ProjectInviteRepo {
	return projects.NewProjectInviteRepo(db, baseLog)
}
func NewTemplateRepo(db *gorm.DB, baseLog *logger.Logger) TemplateRepo {
	return projects.NewTemplateRepo(db, baseLog)
}

func NewGenerationRepo(db *gorm.DB, baseLog *logger.Logger) GenerationRepo {
	return content.NewGenerationRepo(db, baseLog)
}
func NewAssetRepo(db *gorm.DB, baseLog *logger.Logger) AssetRepo {
	return content.NewAssetRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}

func NewSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) SnapshotRepo {
	return analytics.NewSnapshotRepo(db, baseLog)
}
