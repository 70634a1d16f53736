package content

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

type AssetRepo interface {
	Create(dbc dbctx.Context, rows []*types.Asset) ([]*types.Asset, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Asset, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Asset, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID, limit int) ([]*types.Asset, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	DetachProject(dbc dbctx.Context, projectID uuid.UUID) error
	SoftDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
}

type assetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssetRepo(db *gorm.DB, baseLog *logger.Logger) AssetRepo {
	return &assetRepo{db: db, log: baseLog.With("repo", "AssetRepo")}
}

func (r *assetRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *assetRepo) Create(dbc dbctx.Context, rows []*types.Asset) ([]*types.Asset, error) {
	if len(rows) == 0 {
		return []*types.Asset{}, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *assetRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Asset, error) {
	var out []*types.Asset
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *assetRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Asset, error) {
	rows, err := r.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r *assetRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID, limit int) ([]*types.Asset, error) {
	var out []*types.Asset
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *assetRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Asset{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// DetachProject keeps assets with their creators when a project goes away.
func (r *assetRepo) DetachProject(dbc dbctx.Context, projectID uuid.UUID) error {
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Asset{}).
		Where("project_id = ?", projectID).
		Update("project_id", nil).Error
}

func (r *assetRepo) SoftDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).Where("id IN ?", ids).Delete(&types.Asset{}).Error
}
