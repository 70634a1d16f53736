package tool_image

import (
	"context"
	"fmt"
	"io"

	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/jobs/runtime"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/gcp"
	"github.com/yungbote/inkwell-backend/internal/platform/openai"
	"github.com/yungbote/inkwell-backend/internal/services"
)

const maxSourceBytes = 10 << 20

// render produces the image bytes for a claimed generation.
type render func(ctx context.Context, payload services.ImageJobPayload) (openai.ImageResult, error)

func run(jc *runtime.Context, deps Deps, r render) error {
	var payload services.ImageJobPayload
	if err := jc.DecodePayload(&payload); err != nil {
		return err
	}
	dbc := dbctx.Context{Ctx: jc.Ctx}
	gen, err := deps.Generations.GetByID(dbc, payload.GenerationID)
	if err != nil {
		return fmt.Errorf("load generation: %w", err)
	}
	if gen == nil || gen.Status == types.GenerationSucceeded || gen.Status == types.GenerationFailed {
		jc.Succeed("skipped", map[string]any{"generation_id": payload.GenerationID, "skipped": true})
		return nil
	}

	if err := deps.Generations.UpdateFields(dbc, gen.ID, map[string]interface{}{"status": types.GenerationRunning}); err != nil {
		return fmt.Errorf("mark generation running: %w", err)
	}
	jc.Progress("render", 20, "Rendering image")
	img, err := r(jc.Ctx, payload)
	if err != nil {
		return fmt.Errorf("render image: %w", err)
	}

	jc.Progress("store", 80, "Saving image")
	asset, err := deps.Assets.CompleteImageGeneration(jc.Ctx, gen, img.Bytes, img.MimeType)
	if err != nil {
		return fmt.Errorf("store image: %w", err)
	}
	jc.Succeed("done", map[string]any{
		"generation_id": gen.ID,
		"asset_id":      asset.ID,
		"url":           asset.URL,
		"thumbnail_url": asset.ThumbnailURL,
	})
	return nil
}

func finalFailure(jc *runtime.Context, deps Deps, cause error) {
	var payload services.ImageJobPayload
	if err := jc.DecodePayload(&payload); err != nil {
		deps.Log.Warn("Final failure with undecodable payload", "job_id", jc.Job.ID, "error", err)
		return
	}
	reason := "image generation failed"
	if cause != nil {
		reason = cause.Error()
	}
	if err := deps.Failer.FailGeneration(context.WithoutCancel(jc.Ctx), payload.GenerationID, payload.ConsumedAt, reason); err != nil {
		deps.Log.Warn("Fail generation", "generation_id", payload.GenerationID, "error", err)
	}
}

func (p *GeneratePipeline) Run(jc *runtime.Context) error {
	return run(jc, p.deps, func(ctx context.Context, payload services.ImageJobPayload) (openai.ImageResult, error) {
		return p.deps.AI.GenerateImage(ctx, openai.ImageRequest{Prompt: payload.Prompt, Size: payload.Size})
	})
}

func (p *GeneratePipeline) OnFinalFailure(jc *runtime.Context, err error) {
	finalFailure(jc, p.deps, err)
}

func (p *EditPipeline) Run(jc *runtime.Context) error {
	err := run(jc, p.deps, func(ctx context.Context, payload services.ImageJobPayload) (openai.ImageResult, error) {
		if payload.SourceKey == "" {
			return openai.ImageResult{}, fmt.Errorf("missing source_key")
		}
		rc, err := p.deps.Bucket.DownloadFile(ctx, gcp.BucketCategoryAsset, payload.SourceKey)
		if err != nil {
			return openai.ImageResult{}, fmt.Errorf("download source: %w", err)
		}
		defer rc.Close()
		src, err := io.ReadAll(io.LimitReader(rc, maxSourceBytes+1))
		if err != nil {
			return openai.ImageResult{}, fmt.Errorf("read source: %w", err)
		}
		if len(src) > maxSourceBytes {
			return openai.ImageResult{}, fmt.Errorf("source image exceeds %d bytes", maxSourceBytes)
		}
		return p.deps.AI.EditImage(ctx, openai.ImageEditRequest{
			Image:      src,
			MimeType:   payload.MimeType,
			Prompt:     payload.Prompt,
			Background: payload.Background,
			Size:       payload.Size,
		})
	})
	if err == nil && jc.Job.Status == types.JobSucceeded {
		p.removeSource(jc)
	}
	return err
}

func (p *EditPipeline) OnFinalFailure(jc *runtime.Context, err error) {
	finalFailure(jc, p.deps, err)
	p.removeSource(jc)
}

func (p *EditPipeline) removeSource(jc *runtime.Context) {
	key, _ := jc.Payload()["source_key"].(string)
	if key == "" {
		return
	}
	if err := p.deps.Bucket.DeleteFile(dbctx.Context{Ctx: context.WithoutCancel(jc.Ctx)}, gcp.BucketCategoryAsset, key); err != nil {
		p.log.Warn("Source image cleanup failed", "key", key, "error", err)
	}
}
