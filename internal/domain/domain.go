package domain

import (
	"github.com/yungbote/inkwell-backend/internal/domain/analytics"
	"github.com/yungbote/inkwell-backend/internal/domain/auth"
	"github.com/yungbote/inkwell-backend/internal/domain/billing"
	"github.com/yungbote/inkwell-backend/internal/domain/content"
	"github.com/yungbote/inkwell-backend/internal/domain/jobs"
	"github.com/yungbote/inkwell-backend/internal/domain/projects"
	"github.com/yungbote/inkwell-backend/internal/domain/user"
)

type User = user.User
type UserToken = auth.UserToken

type Plan = billing.Plan
type Subscription = billing.Subscription
type BillingEvent = billing.BillingEvent
type UsageCounter = billing.UsageCounter

type Role = projects.Role
type Project = projects.Project
type ProjectMember = projects.ProjectMember
type ProjectInvite = projects.ProjectInvite
type Template = projects.Template

type Generation = content.Generation
type Asset = content.Asset

type JobRun = jobs.JobRun

type AnalyticsSnapshot = analytics.AnalyticsSnapshot

const (
	RoleOwner  = projects.RoleOwner
	RoleEditor = projects.RoleEditor
	RoleViewer = projects.RoleViewer
)

var MaxRole = projects.MaxRole

const (
	GenerationQueued    = content.GenerationQueued
	GenerationRunning   = content.GenerationRunning
	GenerationSucceeded = content.GenerationSucceeded
	GenerationFailed    = content.GenerationFailed
)

const (
	AssetKindImage = content.AssetKindImage
	AssetKindText  = content.AssetKindText
)

const (
	JobQueued    = jobs.StatusQueued
	JobRunning   = jobs.StatusRunning
	JobSucceeded = jobs.StatusSucceeded
	JobFailed    = jobs.StatusFailed
	JobCanceled  = jobs.StatusCanceled
)

// AllModels lists every table, in migration order.
func AllModels() []any {
	return []any{
		&User{},
		&UserToken{},
		&Plan{},
		&Subscription{},
		&BillingEvent{},
		&UsageCounter{},
		&Project{},
		&ProjectMember{},
		&ProjectInvite{},
		&Template{},
		&Asset{},
		&Generation{},
		&JobRun{},
		&AnalyticsSnapshot{},
	}
}
