package projects

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

type ProjectMemberRepo interface {
	Create(dbc dbctx.Context, members []*types.ProjectMember) ([]*types.ProjectMember, error)
	Get(dbc dbctx.Context, projectID, userID uuid.UUID) (*types.ProjectMember, error)
	ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.ProjectMember, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.ProjectMember, error)
	UpdateRole(dbc dbctx.Context, projectID, userID uuid.UUID, role types.Role) error
	Delete(dbc dbctx.Context, projectID, userID uuid.UUID) (bool, error)
	DeleteByProject(dbc dbctx.Context, projectID uuid.UUID) error
	CountByProject(dbc dbctx.Context, projectID uuid.UUID) (int64, error)
}

type projectMemberRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProjectMemberRepo(db *gorm.DB, baseLog *logger.Logger) ProjectMemberRepo {
	return &projectMemberRepo{db: db, log: baseLog.With("repo", "ProjectMemberRepo")}
}

func (r *projectMemberRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *projectMemberRepo) Create(dbc dbctx.Context, members []*types.ProjectMember) ([]*types.ProjectMember, error) {
	if len(members) == 0 {
		return []*types.ProjectMember{}, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Create(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

func (r *projectMemberRepo) Get(dbc dbctx.Context, projectID, userID uuid.UUID) (*types.ProjectMember, error) {
	var m types.ProjectMember
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Limit(1).
		Find(&m).Error; err != nil {
		return nil, err
	}
	if m.ID == uuid.Nil {
		return nil, nil
	}
	return &m, nil
}

func (r *projectMemberRepo) ListByProject(dbc dbctx.Context, projectID uuid.UUID) ([]*types.ProjectMember, error) {
	var out []*types.ProjectMember
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *projectMemberRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.ProjectMember, error) {
	var out []*types.ProjectMember
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *projectMemberRepo) UpdateRole(dbc dbctx.Context, projectID, userID uuid.UUID, role types.Role) error {
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Update("role", role).Error
}

func (r *projectMemberRepo) Delete(dbc dbctx.Context, projectID, userID uuid.UUID) (bool, error) {
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("project_id = ? AND user_id = ?", projectID, userID).
		Delete(&types.ProjectMember{})
	return res.RowsAffected > 0, res.Error
}

func (r *projectMemberRepo) DeleteByProject(dbc dbctx.Context, projectID uuid.UUID) error {
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Delete(&types.ProjectMember{}).Error
}

func (r *projectMemberRepo) CountByProject(dbc dbctx.Context, projectID uuid.UUID) (int64, error) {
	var n int64
	err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.ProjectMember{}).
		Where("project_id = ?", projectID).
		Count(&n).Error
	return n, err
}
