package billing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

type SubscriptionRepo interface {
	Create(dbc dbctx.Context, subs []*types.Subscription) ([]*types.Subscription, error)
	GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.Subscription, error)
	GetByUserIDs(dbc dbctx.Context, userIDs []uuid.UUID) ([]*types.Subscription, error)
	GetByStripeSubscriptionID(dbc dbctx.Context, stripeSubscriptionID string) (*types.Subscription, error)
	GetByStripeCustomerID(dbc dbctx.Context, stripeCustomerID string) (*types.Subscription, error)
	// LockByUserID loads the row FOR UPDATE; callers run it inside a transaction.
	LockByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.Subscription, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	CountByPlan(dbc dbctx.Context, statuses []string) (map[string]int, error)
	CountCanceledBetween(dbc dbctx.Context, planKeys []string, from, to time.Time) (int64, error)
	CountActiveAt(dbc dbctx.Context, planKeys []string, at time.Time) (int64, error)
}

type subscriptionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubscriptionRepo(db *gorm.DB, baseLog *logger.Logger) SubscriptionRepo {
	return &subscriptionRepo{db: db, log: baseLog.With("repo", "SubscriptionRepo")}
}

func (r *subscriptionRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *subscriptionRepo) Create(dbc dbctx.Context, subs []*types.Subscription) ([]*types.Subscription, error) {
	if len(subs) == 0 {
		return []*types.Subscription{}, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Create(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *subscriptionRepo) first(dbc dbctx.Context, locking bool, query string, args ...interface{}) (*types.Subscription, error) {
	q := r.dbx(dbc).WithContext(dbc.Ctx)
	if locking {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var sub types.Subscription
	if err := q.Where(query, args...).Limit(1).Find(&sub).Error; err != nil {
		return nil, err
	}
	if sub.ID == uuid.Nil {
		return nil, nil
	}
	return &sub, nil
}

func (r *subscriptionRepo) GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.Subscription, error) {
	return r.first(dbc, false, "user_id = ?", userID)
}

func (r *subscriptionRepo) LockByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.Subscription, error) {
	return r.first(dbc, true, "user_id = ?", userID)
}

func (r *subscriptionRepo) GetByStripeSubscriptionID(dbc dbctx.Context, stripeSubscriptionID string) (*types.Subscription, error) {
	if stripeSubscriptionID == "" {
		return nil, nil
	}
	return r.first(dbc, false, "stripe_subscription_id = ?", stripeSubscriptionID)
}

func (r *subscriptionRepo) GetByStripeCustomerID(dbc dbctx.Context, stripeCustomerID string) (*types.Subscription, error) {
	if stripeCustomerID == "" {
		return nil, nil
	}
	return r.first(dbc, false, "stripe_customer_id = ?", stripeCustomerID)
}

func (r *subscriptionRepo) GetByUserIDs(dbc dbctx.Context, userIDs []uuid.UUID) ([]*types.Subscription, error) {
	var out []*types.Subscription
	if len(userIDs) == 0 {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Where("user_id IN ?", userIDs).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *subscriptionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Subscription{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *subscriptionRepo) CountByPlan(dbc dbctx.Context, statuses []string) (map[string]int, error) {
	var rows []struct {
		PlanKey string
		N       int
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Subscription{}).
		Select("plan_key, COUNT(*) AS n").
		Where("status IN ?", statuses).
		Group("plan_key").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.PlanKey] = row.N
	}
	return out, nil
}

func (r *subscriptionRepo) CountCanceledBetween(dbc dbctx.Context, planKeys []string, from, to time.Time) (int64, error) {
	var n int64
	if len(planKeys) == 0 {
		return 0, nil
	}
	err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Subscription{}).
		Where("plan_key IN ? AND canceled_at IS NOT NULL AND canceled_at >= ? AND canceled_at < ?", planKeys, from.UTC(), to.UTC()).
		Count(&n).Error
	return n, err
}

// CountActiveAt counts subscriptions on planKeys that had started by at and
// were not yet canceled at that instant.
func (r *subscriptionRepo) CountActiveAt(dbc dbctx.Context, planKeys []string, at time.Time) (int64, error) {
	var n int64
	if len(planKeys) == 0 {
		return 0, nil
	}
	err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Subscription{}).
		Where("plan_key IN ? AND started_at <= ? AND (canceled_at IS NULL OR canceled_at > ?)", planKeys, at.UTC(), at.UTC()).
		Count(&n).Error
	return n, err
}
