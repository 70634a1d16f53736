package analytics

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

type SnapshotRepo interface {
	Upsert(dbc dbctx.Context, snap *types.AnalyticsSnapshot) error
	Get(dbc dbctx.Context, day string) (*types.AnalyticsSnapshot, error)
	// ListSince returns snapshots with Day >= fromDay, oldest first.
	ListSince(dbc dbctx.Context, fromDay string) ([]*types.AnalyticsSnapshot, error)
}

type snapshotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) SnapshotRepo {
	return &snapshotRepo{db: db, log: baseLog.With("repo", "SnapshotRepo")}
}

func (r *snapshotRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *snapshotRepo) Upsert(dbc dbctx.Context, snap *types.AnalyticsSnapshot) error {
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "day"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"mrr_cents", "active_subscriptions", "paid_subscriptions", "churn_rate",
				"new_users", "generations", "failed_generations", "breakdown", "updated_at",
			}),
		}).
		Create(snap).Error
}

func (r *snapshotRepo) Get(dbc dbctx.Context, day string) (*types.AnalyticsSnapshot, error) {
	var out types.AnalyticsSnapshot
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Where("day = ?", day).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.Day == "" {
		return nil, nil
	}
	return &out, nil
}

func (r *snapshotRepo) ListSince(dbc dbctx.Context, fromDay string) ([]*types.AnalyticsSnapshot, error) {
	var out []*types.AnalyticsSnapshot
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("day >= ?", fromDay).
		Order("day ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
