package projects

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

type ProjectRepo interface {
	Create(dbc dbctx.Context, projects []*types.Project) ([]*types.Project, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Project, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Project, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	SoftDelete(dbc dbctx.Context, id uuid.UUID) error
	CountOwnedBy(dbc dbctx.Context, ownerUserID uuid.UUID) (int64, error)
}

type projectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProjectRepo(db *gorm.DB, baseLog *logger.Logger) ProjectRepo {
	return &projectRepo{db: db, log: baseLog.With("repo", "ProjectRepo")}
}

func (r *projectRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *projectRepo) Create(dbc dbctx.Context, projects []*types.Project) ([]*types.Project, error) {
	if len(projects) == 0 {
		return []*types.Project{}, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Create(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

func (r *projectRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Project, error) {
	rows, err := r.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r *projectRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Project, error) {
	var out []*types.Project
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *projectRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Project{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *projectRepo) SoftDelete(dbc dbctx.Context, id uuid.UUID) error {
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.Project{}).Error
}

func (r *projectRepo) CountOwnedBy(dbc dbctx.Context, ownerUserID uuid.UUID) (int64, error) {
	var n int64
	err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Project{}).
		Where("owner_user_id = ?", ownerUserID).
		Count(&n).Error
	return n, err
}
