package tool_image

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/inkwell-backend/internal/data/repos"
	"github.com/yungbote/inkwell-backend/internal/platform/gcp"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
	"github.com/yungbote/inkwell-backend/internal/platform/openai"
	"github.com/yungbote/inkwell-backend/internal/services"
)

// GenerationFailer closes out a generation whose job ran out of attempts.
// services.ToolService satisfies it.
type GenerationFailer interface {
	FailGeneration(ctx context.Context, generationID uuid.UUID, consumedAt time.Time, reason string) error
}

type Deps struct {
	Log         *logger.Logger
	Generations repos.GenerationRepo
	Assets      services.AssetService
	Failer      GenerationFailer
	AI          openai.Client
	Bucket      gcp.BucketService
}

// GeneratePipeline runs tool_image_generate: text prompt to a new image.
type GeneratePipeline struct {
	deps Deps
	log  *logger.Logger
}

func NewGenerate(deps Deps) *GeneratePipeline {
	return &GeneratePipeline{deps: deps, log: deps.Log.With("job", services.JobTypeImageGenerate)}
}

func (p *GeneratePipeline) Type() string { return services.JobTypeImageGenerate }

// EditPipeline runs tool_image_edit: background and object removal on an
// uploaded source image.
type EditPipeline struct {
	deps Deps
	log  *logger.Logger
}

func NewEdit(deps Deps) *EditPipeline {
	return &EditPipeline{deps: deps, log: deps.Log.With("job", services.JobTypeImageEdit)}
}

func (p *EditPipeline) Type() string { return services.JobTypeImageEdit }
