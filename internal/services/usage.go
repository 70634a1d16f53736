package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/inkwell-backend/internal/data/repos"
	"github.com/yungbote/inkwell-backend/internal/domain/billing"
	"github.com/yungbote/inkwell-backend/internal/observability"
	"github.com/yungbote/inkwell-backend/internal/platform/apierr"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

const (
	QuotaWindowDaily   = "daily"
	QuotaWindowMonthly = "monthly"
)

// Usage is the quota view of one user. Limits of -1 are unlimited.
type Usage struct {
	PlanKey         string    `json:"plan_key"`
	DailyUsed       int       `json:"daily_used"`
	DailyLimit      int       `json:"daily_limit"`
	MonthlyUsed     int       `json:"monthly_used"`
	MonthlyLimit    int       `json:"monthly_limit"`
	DailyResetsAt   time.Time `json:"daily_resets_at"`
	MonthlyResetsAt time.Time `json:"monthly_resets_at"`
}

func remaining(used, limit int) int {
	if limit < 0 {
		return billing.Unlimited
	}
	if used >= limit {
		return 0
	}
	return limit - used
}

func (u *Usage) DailyRemaining() int   { return remaining(u.DailyUsed, u.DailyLimit) }
func (u *Usage) MonthlyRemaining() int { return remaining(u.MonthlyUsed, u.MonthlyLimit) }

type UsageService interface {
	// CheckAndConsume takes one unit of the user's quota for tool. On
	// quota_exceeded the returned Usage still describes the exhausted state.
	CheckAndConsume(ctx context.Context, userID uuid.UUID, tool string) (*Usage, error)
	// Release gives back a unit consumed at consumedAt, if its windows are
	// still current.
	Release(ctx context.Context, userID uuid.UUID, consumedAt time.Time) error
	Peek(ctx context.Context, userID uuid.UUID) (*Usage, error)
}

type usageService struct {
	db        *gorm.DB
	log       *logger.Logger
	billing   BillingService
	usageRepo repos.UsageRepo
	now       func() time.Time
}

func NewUsageService(db *gorm.DB, log *logger.Logger, billingService BillingService, usageRepo repos.UsageRepo) UsageService {
	return &usageService{
		db:        db,
		log:       log.With("service", "UsageService"),
		billing:   billingService,
		usageRepo: usageRepo,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (us *usageService) view(plan billing.Plan, dailyUsed, monthlyUsed int, now time.Time) *Usage {
	return &Usage{
		PlanKey:         plan.Key,
		DailyUsed:       dailyUsed,
		DailyLimit:      plan.DailyLimit,
		MonthlyUsed:     monthlyUsed,
		MonthlyLimit:    plan.MonthlyLimit,
		DailyResetsAt:   billing.NextDayStart(now),
		MonthlyResetsAt: billing.NextMonthStart(now),
	}
}

func (us *usageService) CheckAndConsume(ctx context.Context, userID uuid.UUID, tool string) (*Usage, error) {
	plan, _, err := us.billing.EffectivePlan(ctx, userID)
	if err != nil {
		return nil, err
	}
	metrics := observability.Current()
	if !plan.AllowsTool(tool) {
		metrics.ObserveQuota(tool, "upgrade_required")
		return nil, apierr.Newf(http.StatusForbidden, "upgrade_required", "the %s plan does not include %s", plan.Name, tool)
	}

	now := us.now()
	day, month := billing.DayKey(now), billing.MonthKey(now)
	dbc := dbctx.Context{Ctx: ctx}
	if err := us.usageRepo.Ensure(dbc, userID, day, month); err != nil {
		return nil, fmt.Errorf("ensure usage counter: %w", err)
	}
	if _, err := us.usageRepo.ResetDaily(dbc, userID, day); err != nil {
		return nil, fmt.Errorf("reset daily usage: %w", err)
	}
	if _, err := us.usageRepo.ResetMonthly(dbc, userID, month); err != nil {
		return nil, fmt.Errorf("reset monthly usage: %w", err)
	}
	ok, err := us.usageRepo.Consume(dbc, userID, day, month, plan.DailyLimit, plan.MonthlyLimit)
	if err != nil {
		return nil, fmt.Errorf("consume usage: %w", err)
	}

	counter, err := us.usageRepo.Get(dbc, userID)
	if err != nil {
		return nil, fmt.Errorf("load usage counter: %w", err)
	}
	usage := us.view(plan, 0, 0, now)
	if counter != nil {
		usage.DailyUsed, usage.MonthlyUsed = counter.DailyCount, counter.MonthlyCount
	}
	if !ok {
		window := QuotaWindowMonthly
		if !billing.WithinLimit(usage.DailyUsed, usage.DailyLimit) {
			window = QuotaWindowDaily
		}
		metrics.ObserveQuota(tool, "exceeded_"+window)
		us.log.Debug("Quota exceeded", "user_id", userID, "tool", tool, "window", window)
		return usage, apierr.Newf(http.StatusTooManyRequests, "quota_exceeded", "%s quota exhausted for the %s plan", window, plan.Name)
	}
	metrics.ObserveQuota(tool, "allowed")
	return usage, nil
}

func (us *usageService) Release(ctx context.Context, userID uuid.UUID, consumedAt time.Time) error {
	if consumedAt.IsZero() {
		consumedAt = us.now()
	}
	err := us.usageRepo.Release(dbctx.Context{Ctx: ctx}, userID, billing.DayKey(consumedAt), billing.MonthKey(consumedAt))
	if err != nil {
		return fmt.Errorf("release usage: %w", err)
	}
	return nil
}

func (us *usageService) Peek(ctx context.Context, userID uuid.UUID) (*Usage, error) {
	plan, _, err := us.billing.EffectivePlan(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := us.now()
	usage := us.view(plan, 0, 0, now)
	counter, err := us.usageRepo.Get(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		return nil, fmt.Errorf("load usage counter: %w", err)
	}
	if counter != nil {
		if counter.DayKey == billing.DayKey(now) {
			usage.DailyUsed = counter.DailyCount
		}
		if counter.MonthKey == billing.MonthKey(now) {
			usage.MonthlyUsed = counter.MonthlyCount
		}
	}
	return usage, nil
}
