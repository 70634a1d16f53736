package user

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

type UserRepo interface {
	Create(dbc dbctx.Context, users []*types.User) ([]*types.User, error)
	GetByIDs(dbc dbctx.Context, userIDs []uuid.UUID) ([]*types.User, error)
	GetByEmail(dbc dbctx.Context, email string) (*types.User, error)
	EmailExists(dbc dbctx.Context, email string) (bool, error)
	UpdateAvatarFields(dbc dbctx.Context, userID uuid.UUID, color, bucketKey, avatarURL string) error
	SetAdmin(dbc dbctx.Context, userID uuid.UUID, isAdmin bool) error
	Search(dbc dbctx.Context, query string, limit, offset int) ([]*types.User, int64, error)
	Count(dbc dbctx.Context) (int64, error)
	CountCreatedBetween(dbc dbctx.Context, from, to time.Time) (int64, error)
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	repoLog := baseLog.With("repo", "UserRepo")
	return &userRepo{db: db, log: repoLog}
}

func (ur *userRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return ur.db
}

func (ur *userRepo) Create(dbc dbctx.Context, users []*types.User) ([]*types.User, error) {
	if len(users) == 0 {
		return []*types.User{}, nil
	}
	if err := ur.dbx(dbc).WithContext(dbc.Ctx).Create(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (ur *userRepo) GetByIDs(dbc dbctx.Context, userIDs []uuid.UUID) ([]*types.User, error) {
	var results []*types.User
	if len(userIDs) == 0 {
		return results, nil
	}
	if err := ur.dbx(dbc).WithContext(dbc.Ctx).
		Where("id IN ?", userIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (ur *userRepo) GetByEmail(dbc dbctx.Context, email string) (*types.User, error) {
	var u types.User
	err := ur.dbx(dbc).WithContext(dbc.Ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		Limit(1).
		Find(&u).Error
	if err != nil {
		return nil, err
	}
	if u.ID == uuid.Nil {
		return nil, nil
	}
	return &u, nil
}

func (ur *userRepo) EmailExists(dbc dbctx.Context, email string) (bool, error) {
	var count int64
	if err := ur.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.User{}).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (ur *userRepo) UpdateAvatarFields(dbc dbctx.Context, userID uuid.UUID, color, bucketKey, avatarURL string) error {
	return ur.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"avatar_color":      color,
			"avatar_bucket_key": bucketKey,
			"avatar_url":        avatarURL,
		}).Error
}

func (ur *userRepo) SetAdmin(dbc dbctx.Context, userID uuid.UUID, isAdmin bool) error {
	return ur.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.User{}).
		Where("id = ?", userID).
		Update("is_admin", isAdmin).Error
}

// Search matches email or name case-insensitively, newest first.
func (ur *userRepo) Search(dbc dbctx.Context, query string, limit, offset int) ([]*types.User, int64, error) {
	q := ur.dbx(dbc).WithContext(dbc.Ctx).Model(&types.User{})
	if query = strings.ToLower(strings.TrimSpace(query)); query != "" {
		like := "%" + query + "%"
		q = q.Where("LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?", like, like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var results []*types.User
	if err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&results).Error; err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

func (ur *userRepo) Count(dbc dbctx.Context) (int64, error) {
	var n int64
	err := ur.dbx(dbc).WithContext(dbc.Ctx).Model(&types.User{}).Count(&n).Error
	return n, err
}

func (ur *userRepo) CountCreatedBetween(dbc dbctx.Context, from, to time.Time) (int64, error) {
	var n int64
	err := ur.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.User{}).
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
		Count(&n).Error
	return n, err
}
