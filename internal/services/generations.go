package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/inkwell-backend/internal/data/repos"
	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/domain/content"
	"github.com/yungbote/inkwell-backend/internal/platform/apierr"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

const (
	DefaultGenerationPageSize = 20
	MaxGenerationPageSize     = 100
)

type GenerationPage struct {
	Items      []*types.Generation `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

type GenerationService interface {
	List(ctx context.Context, userID uuid.UUID, tool, cursor string, limit int) (*GenerationPage, error)
	Published(ctx context.Context, cursor string, limit int) (*GenerationPage, error)
	Get(ctx context.Context, generationID, userID uuid.UUID) (*types.Generation, error)
	Delete(ctx context.Context, generationID, userID uuid.UUID) error
}

type generationService struct {
	log            *logger.Logger
	generationRepo repos.GenerationRepo
	assetRepo      repos.AssetRepo
}

func NewGenerationService(log *logger.Logger, generationRepo repos.GenerationRepo, assetRepo repos.AssetRepo) GenerationService {
	return &generationService{
		log:            log.With("service", "GenerationService"),
		generationRepo: generationRepo,
		assetRepo:      assetRepo,
	}
}

// EncodeCursor packs (created_at, id) of the last row of a page.
func EncodeCursor(c repos.GenerationCursor) string {
	raw := strconv.FormatInt(c.CreatedAt.UTC().UnixNano(), 10) + ":" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(s string) (*repos.GenerationCursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, apierr.Invalid("malformed cursor")
	}
	nanos, id, ok := strings.Cut(string(raw), ":")
	if !ok {
		return nil, apierr.Invalid("malformed cursor")
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, apierr.Invalid("malformed cursor")
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, apierr.Invalid("malformed cursor")
	}
	return &repos.GenerationCursor{CreatedAt: time.Unix(0, n).UTC(), ID: uid}, nil
}

func clampPage(limit int) int {
	if limit <= 0 {
		return DefaultGenerationPageSize
	}
	if limit > MaxGenerationPageSize {
		return MaxGenerationPageSize
	}
	return limit
}

// page fetches limit+1 rows so the presence of a next page is known without
// a count query.
func (gs *generationService) page(ctx context.Context, rows []*types.Generation, limit int) (*GenerationPage, error) {
	out := &GenerationPage{Items: rows}
	if len(rows) > limit {
		out.Items = rows[:limit]
		last := out.Items[limit-1]
		out.NextCursor = EncodeCursor(repos.GenerationCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	if err := gs.attachAssets(ctx, out.Items); err != nil {
		return nil, err
	}
	if out.Items == nil {
		out.Items = []*types.Generation{}
	}
	return out, nil
}

func (gs *generationService) attachAssets(ctx context.Context, gens []*types.Generation) error {
	var ids []uuid.UUID
	for _, g := range gens {
		if g.AssetID != nil {
			ids = append(ids, *g.AssetID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	assets, err := gs.assetRepo.GetByIDs(dbctx.Context{Ctx: ctx}, ids)
	if err != nil {
		return fmt.Errorf("load assets: %w", err)
	}
	byID := make(map[uuid.UUID]*types.Asset, len(assets))
	for _, a := range assets {
		byID[a.ID] = a
	}
	for _, g := range gens {
		if g.AssetID != nil {
			g.Asset = byID[*g.AssetID]
		}
	}
	return nil
}

func (gs *generationService) List(ctx context.Context, userID uuid.UUID, tool, cursor string, limit int) (*GenerationPage, error) {
	if tool != "" && !content.IsKnownTool(tool) {
		return nil, apierr.Invalid("unknown tool " + tool)
	}
	after, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit = clampPage(limit)
	rows, err := gs.generationRepo.ListByUser(dbctx.Context{Ctx: ctx}, userID, tool, after, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	return gs.page(ctx, rows, limit)
}

func (gs *generationService) Published(ctx context.Context, cursor string, limit int) (*GenerationPage, error) {
	after, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	limit = clampPage(limit)
	rows, err := gs.generationRepo.ListPublished(dbctx.Context{Ctx: ctx}, after, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list published: %w", err)
	}
	return gs.page(ctx, rows, limit)
}

func (gs *generationService) Get(ctx context.Context, generationID, userID uuid.UUID) (*types.Generation, error) {
	gen, err := gs.generationRepo.GetByID(dbctx.Context{Ctx: ctx}, generationID)
	if err != nil {
		return nil, fmt.Errorf("load generation: %w", err)
	}
	if gen == nil || gen.UserID != userID {
		return nil, apierr.NotFound("generation")
	}
	if err := gs.attachAssets(ctx, []*types.Generation{gen}); err != nil {
		return nil, err
	}
	return gen, nil
}

func (gs *generationService) Delete(ctx context.Context, generationID, userID uuid.UUID) error {
	gen, err := gs.Get(ctx, generationID, userID)
	if err != nil {
		return err
	}
	return gs.generationRepo.SoftDelete(dbctx.Context{Ctx: ctx}, gen.ID)
}
