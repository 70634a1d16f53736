package projects

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

type ProjectInviteRepo interface {
	Create(dbc dbctx.Context, invites []*types.ProjectInvite) ([]*types.ProjectInvite, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProjectInvite, error)
	GetByTokenHash(dbc dbctx.Context, tokenHash string) (*types.ProjectInvite, error)
	ListPendingByProject(dbc dbctx.Context, projectID uuid.UUID, now time.Time) ([]*types.ProjectInvite, error)
	ListPendingByEmail(dbc dbctx.Context, email string, now time.Time) ([]*types.ProjectInvite, error)
	CountPendingByProject(dbc dbctx.Context, projectID uuid.UUID, now time.Time) (int64, error)
	RevokePendingByEmail(dbc dbctx.Context, projectID uuid.UUID, email string, now time.Time) (int64, error)
	RevokePendingByProject(dbc dbctx.Context, projectID uuid.UUID, now time.Time) error
	Revoke(dbc dbctx.Context, id uuid.UUID, now time.Time) (bool, error)
	MarkAccepted(dbc dbctx.Context, id, userID uuid.UUID, now time.Time) (bool, error)
	DeleteExpiredBefore(dbc dbctx.Context, cutoff time.Time) (int64, error)
}

type projectInviteRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProjectInviteRepo(db *gorm.DB, baseLog *logger.Logger) ProjectInviteRepo {
	return &projectInviteRepo{db: db, log: baseLog.With("repo", "ProjectInviteRepo")}
}

func (r *projectInviteRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

const pendingClause = "accepted_at IS NULL AND revoked_at IS NULL AND expires_at > ?"

func (r *projectInviteRepo) Create(dbc dbctx.Context, invites []*types.ProjectInvite) ([]*types.ProjectInvite, error) {
	if len(invites) == 0 {
		return []*types.ProjectInvite{}, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Create(&invites).Error; err != nil {
		return nil, err
	}
	return invites, nil
}

func (r *projectInviteRepo) one(dbc dbctx.Context, query string, args ...interface{}) (*types.ProjectInvite, error) {
	var inv types.ProjectInvite
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Where(query, args...).Limit(1).Find(&inv).Error; err != nil {
		return nil, err
	}
	if inv.ID == uuid.Nil {
		return nil, nil
	}
	return &inv, nil
}

func (r *projectInviteRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ProjectInvite, error) {
	return r.one(dbc, "id = ?", id)
}

func (r *projectInviteRepo) GetByTokenHash(dbc dbctx.Context, tokenHash string) (*types.ProjectInvite, error) {
	if tokenHash == "" {
		return nil, nil
	}
	return r.one(dbc, "token_hash = ?", tokenHash)
}

func (r *projectInviteRepo) ListPendingByProject(dbc dbctx.Context, projectID uuid.UUID, now time.Time) ([]*types.ProjectInvite, error) {
	var out []*types.ProjectInvite
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("project_id = ?", projectID).
		Where(pendingClause, now.UTC()).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *projectInviteRepo) ListPendingByEmail(dbc dbctx.Context, email string, now time.Time) ([]*types.ProjectInvite, error) {
	var out []*types.ProjectInvite
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("email = ?", email).
		Where(pendingClause, now.UTC()).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *projectInviteRepo) CountPendingByProject(dbc dbctx.Context, projectID uuid.UUID, now time.Time) (int64, error) {
	var n int64
	err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.ProjectInvite{}).
		Where("project_id = ?", projectID).
		Where(pendingClause, now.UTC()).
		Count(&n).Error
	return n, err
}

func (r *projectInviteRepo) RevokePendingByEmail(dbc dbctx.Context, projectID uuid.UUID, email string, now time.Time) (int64, error) {
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.ProjectInvite{}).
		Where("project_id = ? AND email = ? AND accepted_at IS NULL AND revoked_at IS NULL", projectID, email).
		Update("revoked_at", now.UTC())
	return res.RowsAffected, res.Error
}

func (r *projectInviteRepo) RevokePendingByProject(dbc dbctx.Context, projectID uuid.UUID, now time.Time) error {
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.ProjectInvite{}).
		Where("project_id = ? AND accepted_at IS NULL AND revoked_at IS NULL", projectID).
		Update("revoked_at", now.UTC()).Error
}

func (r *projectInviteRepo) Revoke(dbc dbctx.Context, id uuid.UUID, now time.Time) (bool, error) {
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.ProjectInvite{}).
		Where("id = ? AND accepted_at IS NULL AND revoked_at IS NULL", id).
		Update("revoked_at", now.UTC())
	return res.RowsAffected > 0, res.Error
}

// MarkAccepted only succeeds while the invite is unclaimed and unrevoked, so
// two concurrent claims cannot both win.
func (r *projectInviteRepo) MarkAccepted(dbc dbctx.Context, id, userID uuid.UUID, now time.Time) (bool, error) {
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.ProjectInvite{}).
		Where("id = ? AND accepted_at IS NULL AND revoked_at IS NULL", id).
		Updates(map[string]interface{}{"accepted_at": now.UTC(), "accepted_by": userID})
	return res.RowsAffected > 0, res.Error
}

// DeleteExpiredBefore removes unaccepted invites whose expiry is older than cutoff.
func (r *projectInviteRepo) DeleteExpiredBefore(dbc dbctx.Context, cutoff time.Time) (int64, error) {
	res := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("accepted_at IS NULL AND expires_at < ?", cutoff.UTC()).
		Delete(&types.ProjectInvite{})
	return res.RowsAffected, res.Error
}
