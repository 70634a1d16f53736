package billing

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

// UsageRepo keeps one counter row per user. Every mutation is a single
// conditional statement so concurrent requests cannot overshoot a limit.
type UsageRepo interface {
	Ensure(dbc dbctx.Context, userID uuid.UUID, dayKey, monthKey string) error
	Get(dbc dbctx.Context, userID uuid.UUID) (*types.UsageCounter, error)
	GetByUserIDs(dbc dbctx.Context, userIDs []uuid.UUID) ([]*types.UsageCounter, error)
	ResetDaily(dbc dbctx.Context, userID uuid.UUID, dayKey string) (bool, error)
	ResetMonthly(dbc dbctx.Context, userID uuid.UUID, monthKey string) (bool, error)
	Consume(dbc dbctx.Context, userID uuid.UUID, dayKey, monthKey string, dailyLimit, monthlyLimit int) (bool, error)
	Release(dbc dbctx.Context, userID uuid.UUID, dayKey, monthKey string) error
}

type usageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUsageRepo(db *gorm.DB, baseLog *logger.Logger) UsageRepo {
	return &usageRepo{db: db, log: baseLog.With("repo", "UsageRepo")}
}

func (r *usageRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *usageRepo) Ensure(dbc dbctx.Context, userID uuid.UUID, dayKey, monthKey string) error {
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&types.UsageCounter{UserID: userID, DayKey: dayKey, MonthKey: monthKey}).Error
}

func (r *usageRepo) Get(dbc dbctx.Context, userID uuid.UUID) (*types.UsageCounter, error) {
	var rows []*types.UsageCounter
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Where("user_id = ?", userID).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *usageRepo) GetByUserIDs(dbc dbctx.Context, userIDs []uuid.UUID) ([]*types.UsageCounter, error) {
	var out []*types.UsageCounter
	if len(userIDs) == 0 {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Where("user_id IN ?", userIDs).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *usageRepo) ResetDaily(dbc dbctx.Context, userID uuid.UUID, dayKey string) (bool, error) {
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.UsageCounter{}).
		Where("user_id = ? AND day_key <> ?", userID, dayKey).
		Updates(map[string]interface{}{"day_key": dayKey, "daily_count": 0})
	return res.RowsAffected > 0, res.Error
}

func (r *usageRepo) ResetMonthly(dbc dbctx.Context, userID uuid.UUID, monthKey string) (bool, error) {
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.UsageCounter{}).
		Where("user_id = ? AND month_key <> ?", userID, monthKey).
		Updates(map[string]interface{}{"month_key": monthKey, "monthly_count": 0})
	return res.RowsAffected > 0, res.Error
}

// Consume increments both windows only when the row is on the current keys
// and every bounded window is below its limit. A negative limit is unbounded.
func (r *usageRepo) Consume(dbc dbctx.Context, userID uuid.UUID, dayKey, monthKey string, dailyLimit, monthlyLimit int) (bool, error) {
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.UsageCounter{}).
		Where("user_id = ? AND day_key = ? AND month_key = ?", userID, dayKey, monthKey).
		Where("(? < 0 OR daily_count < ?)", dailyLimit, dailyLimit).
		Where("(? < 0 OR monthly_count < ?)", monthlyLimit, monthlyLimit).
		Updates(map[string]interface{}{
			"daily_count":   gorm.Expr("daily_count + 1"),
			"monthly_count": gorm.Expr("monthly_count + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Release gives back one unit, but only inside the windows it was taken from.
func (r *usageRepo) Release(dbc dbctx.Context, userID uuid.UUID, dayKey, monthKey string) error {
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.UsageCounter{}).
		Where("user_id = ? AND day_key = ? AND daily_count > 0", userID, dayKey).
		Update("daily_count", gorm.Expr("daily_count - 1")).Error; err != nil {
		return err
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.UsageCounter{}).
		Where("user_id = ? AND month_key = ? AND monthly_count > 0", userID, monthKey).
		Update("monthly_count", gorm.Expr("monthly_count - 1")).Error
}
