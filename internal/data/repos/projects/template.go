package projects

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

type TemplateRepo interface {
	Create(dbc dbctx.Context, templates []*types.Template) ([]*types.Template, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Template, error)
	GetByName(dbc dbctx.Context, projectID uuid.UUID, name string) (*types.Template, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Template, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Delete(dbc dbctx.Context, id uuid.UUID) error
	DeleteByProject(dbc dbctx.Context, projectID uuid.UUID) error
}

type templateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTemplateRepo(db *gorm.DB, baseLog *logger.Logger) TemplateRepo {
	return &templateRepo{db: db, log: baseLog.With("repo", "TemplateRepo")}
}

func (r *templateRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *templateRepo) Create(dbc dbctx.Context, templates []*types.Template) ([]*types.Template, error) {
	if len(templates) == 0 {
		return []*types.Template{}, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Create(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *templateRepo) one(dbc dbctx.Context, query string, args ...interface{}) (*types.Template, error) {
	var t types.Template
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Where(query, args...).Limit(1).Find(&t).Error; err != nil {
		return nil, err
	}
	if t.ID == uuid.Nil {
		return nil, nil
	}
	return &t, nil
}

func (r *templateRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Template, error) {
	return r.one(dbc, "id = ?", id)
}

func (r *templateRepo) GetByName(dbc dbctx.Context, projectID uuid.UUID, name string) (*types.Template, error) {
	return r.one(dbc, "project_id = ? AND name = ?", projectID, name)
}

func (r *templateRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Template, error) {
	var out []*types.Template
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Order("name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *templateRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Template{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *templateRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	return r.dbx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).Delete(&types.Template{}).Error
}

func (r *templateRepo) DeleteByProject(dbc dbctx.Context, projectID uuid.UUID) error {
	return r.dbx(dbc).WithContext(dbc.Ctx).Where("project_id = ?", projectID).Delete(&types.Template{}).Error
}
