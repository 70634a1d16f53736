package services

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/inkwell-backend/internal/data/repos"
	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/apierr"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/gcp"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

const (
	defaultAssetPageSize = 50
	maxAssetPageSize     = 200
	maxAssetTitleLength  = 80
)

type AssetService interface {
	// CompleteImageGeneration stores the rendered image and its thumbnail,
	// records the asset and marks gen succeeded in one transaction.
	CompleteImageGeneration(ctx context.Context, gen *types.Generation, image []byte, mimeType string) (*types.Asset, error)
	// SaveText stores the output of a text generation as a project asset.
	SaveText(ctx context.Context, gen *types.Generation) (*types.Asset, error)
	ListProjectAssets(ctx context.Context, projectID, userID uuid.UUID, limit int) ([]*types.Asset, error)
	Share(ctx context.Context, assetID, projectID, userID uuid.UUID) (*types.Asset, error)
	Delete(ctx context.Context, assetID, userID uuid.UUID) error
}

type assetService struct {
	db             *gorm.DB
	log            *logger.Logger
	assetRepo      repos.AssetRepo
	generationRepo repos.GenerationRepo
	projectRepo    repos.ProjectRepo
	memberRepo     repos.ProjectMemberRepo
	bucket         gcp.BucketService
	imaging        ImagingService
	notify         EventNotifier
	now            func() time.Time
}

func NewAssetService(
	db *gorm.DB,
	log *logger.Logger,
	assetRepo repos.AssetRepo,
	generationRepo repos.GenerationRepo,
	projectRepo repos.ProjectRepo,
	memberRepo repos.ProjectMemberRepo,
	bucket gcp.BucketService,
	imaging ImagingService,
	notify EventNotifier,
) AssetService {
	return &assetService{
		db:             db,
		log:            log.With("service", "AssetService"),
		assetRepo:      assetRepo,
		generationRepo: generationRepo,
		projectRepo:    projectRepo,
		memberRepo:     memberRepo,
		bucket:         bucket,
		imaging:        imaging,
		notify:         notify,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func assetTitle(gen *types.Generation) string {
	title := strings.Join(strings.Fields(gen.Prompt), " ")
	if title == "" {
		title = gen.Tool
	}
	if r := []rune(title); len(r) > maxAssetTitleLength {
		title = strings.TrimSpace(string(r[:maxAssetTitleLength])) + "…"
	}
	return title
}

func generationKey(gen *types.Generation, suffix string) string {
	return path.Join("generations", gen.UserID.String(), gen.ID.String()+suffix)
}

func (as *assetService) CompleteImageGeneration(ctx context.Context, gen *types.Generation, image []byte, mimeType string) (*types.Asset, error) {
	if gen == nil || len(image) == 0 {
		return nil, fmt.Errorf("generation and image required")
	}
	if as.bucket == nil {
		return nil, fmt.Errorf("object storage not configured")
	}
	if mimeType == "" {
		mimeType = "image/png"
	}
	dbc := dbctx.Context{Ctx: ctx}
	key := generationKey(gen, ".png")
	if err := as.bucket.UploadFile(dbc, gcp.BucketCategoryAsset, key, bytes.NewReader(image)); err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}
	asset := &types.Asset{
		ID:           uuid.New(),
		UserID:       gen.UserID,
		ProjectID:    gen.ProjectID,
		GenerationID: &gen.ID,
		Kind:         types.AssetKindImage,
		MimeType:     mimeType,
		StorageKey:   key,
		URL:          as.bucket.GetPublicURL(gcp.BucketCategoryAsset, key),
		Title:        assetTitle(gen),
		SizeBytes:    int64(len(image)),
	}
	if as.imaging != nil {
		thumb, err := as.imaging.Thumbnail(image, ThumbnailSide)
		if err != nil {
			as.log.Warn("Thumbnail render failed", "generation_id", gen.ID, "error", err)
		} else {
			thumbKey := generationKey(gen, "_thumb.png")
			if err := as.bucket.UploadFile(dbc, gcp.BucketCategoryAsset, thumbKey, bytes.NewReader(thumb)); err != nil {
				as.log.Warn("Thumbnail upload failed", "generation_id", gen.ID, "error", err)
			} else {
				asset.ThumbnailKey = thumbKey
				asset.ThumbnailURL = as.bucket.GetPublicURL(gcp.BucketCategoryAsset, thumbKey)
			}
		}
	}

	now := as.now()
	err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		asset.CreatedAt, asset.UpdatedAt = now, now
		if _, err := as.assetRepo.Create(txc, []*types.Asset{asset}); err != nil {
			return fmt.Errorf("create asset: %w", err)
		}
		return as.generationRepo.UpdateFields(txc, gen.ID, map[string]interface{}{
			"status":     types.GenerationSucceeded,
			"asset_id":   asset.ID,
			"error":      "",
			"updated_at": now,
		})
	})
	if err != nil {
		as.removeObjects(ctx, asset)
		return nil, err
	}
	gen.Status = types.GenerationSucceeded
	gen.AssetID = &asset.ID
	gen.Asset = asset
	if asset.ProjectID != nil {
		as.notify.ProjectAssetAdded(*asset.ProjectID, asset)
	}
	return asset, nil
}

func (as *assetService) SaveText(ctx context.Context, gen *types.Generation) (*types.Asset, error) {
	if gen == nil || gen.ProjectID == nil {
		return nil, fmt.Errorf("project generation required")
	}
	now := as.now()
	asset := &types.Asset{
		ID:           uuid.New(),
		UserID:       gen.UserID,
		ProjectID:    gen.ProjectID,
		GenerationID: &gen.ID,
		Kind:         types.AssetKindText,
		MimeType:     "text/markdown",
		Title:        assetTitle(gen),
		Body:         gen.OutputText,
		SizeBytes:    int64(len(gen.OutputText)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := as.assetRepo.Create(txc, []*types.Asset{asset}); err != nil {
			return fmt.Errorf("create asset: %w", err)
		}
		return as.generationRepo.UpdateFields(txc, gen.ID, map[string]interface{}{
			"asset_id":   asset.ID,
			"updated_at": now,
		})
	})
	if err != nil {
		return nil, err
	}
	gen.AssetID = &asset.ID
	gen.Asset = asset
	as.notify.ProjectAssetAdded(*gen.ProjectID, asset)
	return asset, nil
}

func (as *assetService) ListProjectAssets(ctx context.Context, projectID, userID uuid.UUID, limit int) ([]*types.Asset, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if _, _, err := authorizeProject(dbc, as.projectRepo, as.memberRepo, projectID, userID, types.RoleViewer); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultAssetPageSize
	}
	if limit > maxAssetPageSize {
		limit = maxAssetPageSize
	}
	return as.assetRepo.ListByProject(dbc, projectID, limit)
}

func (as *assetService) Share(ctx context.Context, assetID, projectID, userID uuid.UUID) (*types.Asset, error) {
	dbc := dbctx.Context{Ctx: ctx}
	asset, err := as.assetRepo.GetByID(dbc, assetID)
	if err != nil {
		return nil, fmt.Errorf("load asset: %w", err)
	}
	if asset == nil || asset.UserID != userID {
		return nil, apierr.NotFound("asset")
	}
	if _, _, err := authorizeProject(dbc, as.projectRepo, as.memberRepo, projectID, userID, types.RoleEditor); err != nil {
		return nil, err
	}
	if asset.ProjectID != nil && *asset.ProjectID == projectID {
		return asset, nil
	}
	if err := as.assetRepo.UpdateFields(dbc, asset.ID, map[string]interface{}{
		"project_id": projectID,
		"updated_at": as.now(),
	}); err != nil {
		return nil, fmt.Errorf("share asset: %w", err)
	}
	asset.ProjectID = &projectID
	as.notify.ProjectAssetAdded(projectID, asset)
	return asset, nil
}

func (as *assetService) Delete(ctx context.Context, assetID, userID uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}
	asset, err := as.assetRepo.GetByID(dbc, assetID)
	if err != nil {
		return fmt.Errorf("load asset: %w", err)
	}
	if asset == nil {
		return apierr.NotFound("asset")
	}
	if asset.UserID != userID {
		if asset.ProjectID == nil {
			return apierr.NotFound("asset")
		}
		if _, _, err := authorizeProject(dbc, as.projectRepo, as.memberRepo, *asset.ProjectID, userID, types.RoleEditor); err != nil {
			return err
		}
	}
	if err := as.assetRepo.SoftDeleteByIDs(dbc, []uuid.UUID{asset.ID}); err != nil {
		return fmt.Errorf("delete asset: %w", err)
	}
	as.removeObjects(ctx, asset)
	return nil
}

// removeObjects is best-effort; the row is already gone or never existed.
func (as *assetService) removeObjects(ctx context.Context, asset *types.Asset) {
	if as.bucket == nil {
		return
	}
	for _, key := range []string{asset.StorageKey, asset.ThumbnailKey} {
		if key == "" {
			continue
		}
		if err := as.bucket.DeleteFile(dbctx.Context{Ctx: ctx}, gcp.BucketCategoryAsset, key); err != nil {
			as.log.Warn("Asset object delete failed", "asset_id", asset.ID, "key", key, "error", err)
		}
	}
}
