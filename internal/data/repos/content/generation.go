package content

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

// Cursor pages newest-first on (created_at, id).
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

type GenerationRepo interface {
	Create(dbc dbctx.Context, rows []*types.Generation) ([]*types.Generation, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Generation, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, tool string, after *Cursor, limit int) ([]*types.Generation, error)
	ListPublished(dbc dbctx.Context, after *Cursor, limit int) ([]*types.Generation, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	// UpdateFieldsUnlessStatus skips rows already in one of the listed statuses.
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowed []string, updates map[string]interface{}) (bool, error)
	SoftDelete(dbc dbctx.Context, id uuid.UUID) error
	CountByTool(dbc dbctx.Context, from, to time.Time) (map[string]int, error)
	CountByStatus(dbc dbctx.Context, status string, from, to time.Time) (int64, error)
}

type generationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGenerationRepo(db *gorm.DB, baseLog *logger.Logger) GenerationRepo {
	return &generationRepo{db: db, log: baseLog.With("repo", "GenerationRepo")}
}

func (r *generationRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *generationRepo) Create(dbc dbctx.Context, rows []*types.Generation) ([]*types.Generation, error) {
	if len(rows) == 0 {
		return []*types.Generation{}, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *generationRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Generation, error) {
	var g types.Generation
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&g).Error; err != nil {
		return nil, err
	}
	if g.ID == uuid.Nil {
		return nil, nil
	}
	return &g, nil
}

func page(q *gorm.DB, after *Cursor, limit int) *gorm.DB {
	if after != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", after.CreatedAt.UTC(), after.CreatedAt.UTC(), after.ID)
	}
	return q.Order("created_at DESC").Order("id DESC").Limit(limit)
}

func (r *generationRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, tool string, after *Cursor, limit int) ([]*types.Generation, error) {
	q := r.dbx(dbc).WithContext(dbc.Ctx).Where("user_id = ?", userID)
	if tool != "" {
		q = q.Where("tool = ?", tool)
	}
	var out []*types.Generation
	if err := page(q, after, limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *generationRepo) ListPublished(dbc dbctx.Context, after *Cursor, limit int) ([]*types.Generation, error) {
	q := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("publish = ? AND status = ? AND asset_id IS NOT NULL", true, types.GenerationSucceeded)
	var out []*types.Generation
	if err := page(q, after, limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *generationRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Generation{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *generationRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowed []string, updates map[string]interface{}) (bool, error) {
	q := r.dbx(dbc).WithContext(dbc.Ctx).Model(&types.Generation{}).Where("id = ?", id)
	if len(disallowed) > 0 {
		q = q.Where("status NOT IN ?", disallowed)
	}
	res := q.Updates(updates)
	return res.RowsAffected > 0, res.Error
}

func (r *generationRepo) SoftDelete(dbc dbctx.Context, id uuid.UUID) error {
	return r.dbx(dbc).WithContext(dbc.Ctx).Where("id = ?", id).Delete(&types.Generation{}).Error
}

func (r *generationRepo) CountByTool(dbc dbctx.Context, from, to time.Time) (map[string]int, error) {
	var rows []struct {
		Tool string
		N    int
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Generation{}).
		Unscoped().
		Select("tool, COUNT(*) AS n").
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
		Group("tool").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Tool] = row.N
	}
	return out, nil
}

func (r *generationRepo) CountByStatus(dbc dbctx.Context, status string, from, to time.Time) (int64, error) {
	var n int64
	err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.Generation{}).
		Unscoped().
		Where("status = ? AND created_at >= ? AND created_at < ?", status, from.UTC(), to.UTC()).
		Count(&n).Error
	return n, err
}
