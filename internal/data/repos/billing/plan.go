package billing

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

type PlanRepo interface {
	Upsert(dbc dbctx.Context, plans []*types.Plan) error
	List(dbc dbctx.Context) ([]*types.Plan, error)
}

type planRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPlanRepo(db *gorm.DB, baseLog *logger.Logger) PlanRepo {
	return &planRepo{db: db, log: baseLog.With("repo", "PlanRepo")}
}

func (r *planRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *planRepo) Upsert(dbc dbctx.Context, plans []*types.Plan) error {
	if len(plans) == 0 {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "description", "monthly_price_cents", "daily_limit", "monthly_limit", "tools",
				"max_projects", "max_members_per_project", "stripe_price_id", "is_default", "sort_order", "updated_at",
			}),
		}).
		Create(&plans).Error
}

func (r *planRepo) List(dbc dbctx.Context) ([]*types.Plan, error) {
	var out []*types.Plan
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Order("sort_order ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
