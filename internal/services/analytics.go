package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/yungbote/inkwell-backend/internal/data/repos"
	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/domain/billing"
	"github.com/yungbote/inkwell-backend/internal/platform/apierr"
	"github.com/yungbote/inkwell-backend/internal/platform/cache"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

const (
	overviewCacheTTL      = 60 * time.Second
	defaultOverviewWindow = 30 * 24 * time.Hour
	MaxTimeseriesDays     = 365
	maxAdminUserPage      = 100
)

type Overview struct {
	MRRCents            int64          `json:"mrr_cents"`
	ARRCents            int64          `json:"arr_cents"`
	ActiveSubscriptions map[string]int `json:"active_subscriptions"`
	PaidSubscriptions   int            `json:"paid_subscriptions"`
	ChurnRate           float64        `json:"churn_rate"`
	CanceledInWindow    int64          `json:"canceled_in_window"`
	ActiveAtWindowStart int64          `json:"active_at_window_start"`
	TotalUsers          int64          `json:"total_users"`
	NewUsers            int64          `json:"new_users"`
	GenerationsByTool   map[string]int `json:"generations_by_tool"`
	FailedGenerations   int64          `json:"failed_generations"`
	From                time.Time      `json:"from"`
	To                  time.Time      `json:"to"`
}

type AdminUser struct {
	*types.User
	Plan   string `json:"plan"`
	Status string `json:"status"`
	Usage  *Usage `json:"usage"`
}

type AdminUserPage struct {
	Items []*AdminUser `json:"items"`
	Total int64        `json:"total"`
}

type AnalyticsService interface {
	// Overview aggregates [from, to). Zero bounds default to the last 30 days.
	Overview(ctx context.Context, from, to time.Time) (*Overview, error)
	Timeseries(ctx context.Context, days int) ([]*types.AnalyticsSnapshot, error)
	// Snapshot computes the overview for the UTC day containing day and
	// stores it.
	Snapshot(ctx context.Context, day time.Time) (*types.AnalyticsSnapshot, error)
	ListUsers(ctx context.Context, query string, limit, offset int) (*AdminUserPage, error)
	SetUserPlan(ctx context.Context, userID uuid.UUID, planKey string) error
}

type analyticsService struct {
	log            *logger.Logger
	billing        BillingService
	userRepo       repos.UserRepo
	subRepo        repos.SubscriptionRepo
	usageRepo      repos.UsageRepo
	generationRepo repos.GenerationRepo
	snapshotRepo   repos.SnapshotRepo
	cache          cache.Cache
	now            func() time.Time
}

func NewAnalyticsService(
	log *logger.Logger,
	billingService BillingService,
	userRepo repos.UserRepo,
	subRepo repos.SubscriptionRepo,
	usageRepo repos.UsageRepo,
	generationRepo repos.GenerationRepo,
	snapshotRepo repos.SnapshotRepo,
	overviewCache cache.Cache,
) AnalyticsService {
	return &analyticsService{
		log:            log.With("service", "AnalyticsService"),
		billing:        billingService,
		userRepo:       userRepo,
		subRepo:        subRepo,
		usageRepo:      usageRepo,
		generationRepo: generationRepo,
		snapshotRepo:   snapshotRepo,
		cache:          overviewCache,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func overviewKey(from, to time.Time) string {
	return fmt.Sprintf("admin:overview:%d:%d", from.Unix(), to.Unix())
}

func (as *analyticsService) Overview(ctx context.Context, from, to time.Time) (*Overview, error) {
	if to.IsZero() {
		to = as.now()
	}
	if from.IsZero() {
		from = to.Add(-defaultOverviewWindow)
	}
	from, to = from.UTC().Truncate(time.Second), to.UTC().Truncate(time.Second)
	if !from.Before(to) {
		return nil, apierr.Invalid("from must be before to")
	}
	key := overviewKey(from, to)
	if as.cache != nil {
		var cached Overview
		ok, err := as.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			as.log.Warn("Overview cache read failed", "error", err)
		} else if ok {
			return &cached, nil
		}
	}
	out, err := as.compute(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if as.cache != nil {
		if err := as.cache.SetJSON(ctx, key, out, overviewCacheTTL); err != nil {
			as.log.Warn("Overview cache write failed", "error", err)
		}
	}
	return out, nil
}

func (as *analyticsService) paidPlanKeys() []string {
	var keys []string
	for _, p := range as.billing.Catalog().List() {
		if p.IsPaid() {
			keys = append(keys, p.Key)
		}
	}
	return keys
}

// compute runs every aggregate concurrently. MRR counts active and past_due
// subscriptions; churn divides paid cancellations in the window by paid
// subscriptions live at from.
func (as *analyticsService) compute(ctx context.Context, from, to time.Time) (*Overview, error) {
	out := &Overview{From: from, To: to}
	paid := as.paidPlanKeys()
	var billable map[string]int

	g, gctx := errgroup.WithContext(ctx)
	dbc := dbctx.Context{Ctx: gctx}
	g.Go(func() error {
		m, err := as.subRepo.CountByPlan(dbc, []string{billing.SubscriptionActive, billing.SubscriptionTrialing, billing.SubscriptionPastDue})
		out.ActiveSubscriptions = m
		return err
	})
	g.Go(func() error {
		m, err := as.subRepo.CountByPlan(dbc, []string{billing.SubscriptionActive, billing.SubscriptionPastDue})
		billable = m
		return err
	})
	g.Go(func() error {
		n, err := as.subRepo.CountCanceledBetween(dbc, paid, from, to)
		out.CanceledInWindow = n
		return err
	})
	g.Go(func() error {
		n, err := as.subRepo.CountActiveAt(dbc, paid, from)
		out.ActiveAtWindowStart = n
		return err
	})
	g.Go(func() error {
		n, err := as.userRepo.Count(dbc)
		out.TotalUsers = n
		return err
	})
	g.Go(func() error {
		n, err := as.userRepo.CountCreatedBetween(dbc, from, to)
		out.NewUsers = n
		return err
	})
	g.Go(func() error {
		m, err := as.generationRepo.CountByTool(dbc, from, to)
		out.GenerationsByTool = m
		return err
	})
	g.Go(func() error {
		n, err := as.generationRepo.CountByStatus(dbc, types.GenerationFailed, from, to)
		out.FailedGenerations = n
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("aggregate overview: %w", err)
	}

	catalog := as.billing.Catalog()
	for planKey, n := range billable {
		plan, ok := catalog.Get(planKey)
		if !ok || !plan.IsPaid() {
			continue
		}
		out.MRRCents += plan.MonthlyPriceCents * int64(n)
	}
	out.ARRCents = out.MRRCents * 12
	for planKey, n := range out.ActiveSubscriptions {
		if plan, ok := catalog.Get(planKey); ok && plan.IsPaid() {
			out.PaidSubscriptions += n
		}
	}
	if out.ActiveAtWindowStart > 0 {
		out.ChurnRate = float64(out.CanceledInWindow) / float64(out.ActiveAtWindowStart)
	}
	if out.ActiveSubscriptions == nil {
		out.ActiveSubscriptions = map[string]int{}
	}
	if out.GenerationsByTool == nil {
		out.GenerationsByTool = map[string]int{}
	}
	return out, nil
}

func (as *analyticsService) Timeseries(ctx context.Context, days int) ([]*types.AnalyticsSnapshot, error) {
	if days <= 0 {
		days = 30
	}
	if days > MaxTimeseriesDays {
		return nil, apierr.Invalid(fmt.Sprintf("days must be at most %d", MaxTimeseriesDays))
	}
	from := as.now().AddDate(0, 0, -(days - 1))
	rows, err := as.snapshotRepo.ListSince(dbctx.Context{Ctx: ctx}, billing.DayKey(from))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	if rows == nil {
		rows = []*types.AnalyticsSnapshot{}
	}
	return rows, nil
}

func (as *analyticsService) Snapshot(ctx context.Context, day time.Time) (*types.AnalyticsSnapshot, error) {
	day = day.UTC()
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	ov, err := as.compute(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	active, generations := 0, 0
	for _, n := range ov.ActiveSubscriptions {
		active += n
	}
	for _, n := range ov.GenerationsByTool {
		generations += n
	}
	breakdown, err := json.Marshal(map[string]any{
		"active_subscriptions":   ov.ActiveSubscriptions,
		"generations_by_tool":    ov.GenerationsByTool,
		"canceled_in_window":     ov.CanceledInWindow,
		"active_at_window_start": ov.ActiveAtWindowStart,
	})
	if err != nil {
		return nil, fmt.Errorf("encode breakdown: %w", err)
	}
	snap := &types.AnalyticsSnapshot{
		Day:                 billing.DayKey(start),
		MRRCents:            ov.MRRCents,
		ActiveSubscriptions: active,
		PaidSubscriptions:   ov.PaidSubscriptions,
		ChurnRate:           ov.ChurnRate,
		NewUsers:            int(ov.NewUsers),
		Generations:         generations,
		FailedGenerations:   int(ov.FailedGenerations),
		Breakdown:           datatypes.JSON(breakdown),
	}
	if err := as.snapshotRepo.Upsert(dbctx.Context{Ctx: ctx}, snap); err != nil {
		return nil, fmt.Errorf("store snapshot: %w", err)
	}
	as.log.Info("Analytics snapshot stored", "day", snap.Day, "mrr_cents", snap.MRRCents, "churn_rate", snap.ChurnRate)
	return snap, nil
}

func (as *analyticsService) ListUsers(ctx context.Context, query string, limit, offset int) (*AdminUserPage, error) {
	if limit <= 0 || limit > maxAdminUserPage {
		limit = maxAdminUserPage
	}
	if offset < 0 {
		offset = 0
	}
	dbc := dbctx.Context{Ctx: ctx}
	users, total, err := as.userRepo.Search(dbc, strings.TrimSpace(query), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	subs, err := as.subRepo.GetByUserIDs(dbc, ids)
	if err != nil {
		return nil, fmt.Errorf("load subscriptions: %w", err)
	}
	counters, err := as.usageRepo.GetByUserIDs(dbc, ids)
	if err != nil {
		return nil, fmt.Errorf("load usage: %w", err)
	}
	subByUser := make(map[uuid.UUID]*types.Subscription, len(subs))
	for _, s := range subs {
		subByUser[s.UserID] = s
	}
	counterByUser := make(map[uuid.UUID]*types.UsageCounter, len(counters))
	for _, c := range counters {
		counterByUser[c.UserID] = c
	}

	now := as.now()
	items := make([]*AdminUser, 0, len(users))
	for _, u := range users {
		sub := subByUser[u.ID]
		plan := as.billing.PlanFor(sub)
		item := &AdminUser{
			User:  u,
			Plan:  plan.Key,
			Usage: &Usage{PlanKey: plan.Key, DailyLimit: plan.DailyLimit, MonthlyLimit: plan.MonthlyLimit, DailyResetsAt: billing.NextDayStart(now), MonthlyResetsAt: billing.NextMonthStart(now)},
		}
		if sub != nil {
			item.Status = sub.Status
		}
		if c := counterByUser[u.ID]; c != nil {
			if c.DayKey == billing.DayKey(now) {
				item.Usage.DailyUsed = c.DailyCount
			}
			if c.MonthKey == billing.MonthKey(now) {
				item.Usage.MonthlyUsed = c.MonthlyCount
			}
		}
		items = append(items, item)
	}
	return &AdminUserPage{Items: items, Total: total}, nil
}

func (as *analyticsService) SetUserPlan(ctx context.Context, userID uuid.UUID, planKey string) error {
	return as.billing.SetPlan(ctx, userID, planKey)
}
