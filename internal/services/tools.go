package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/inkwell-backend/internal/data/repos"
	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/domain/content"
	"github.com/yungbote/inkwell-backend/internal/observability"
	"github.com/yungbote/inkwell-backend/internal/platform/apierr"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/gcp"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
	"github.com/yungbote/inkwell-backend/internal/platform/openai"
)

const (
	MaxResumeBytes     = 5 << 20
	MaxImageInputBytes = 10 << 20
	maxPromptRunes     = 4000
)

// ToolFile is an uploaded input: the resume for resume_review or the source
// image for the edit tools.
type ToolFile struct {
	Name     string
	MimeType string
	Data     []byte
}

type ToolRequest struct {
	UserID     uuid.UUID
	Tool       string
	Prompt     string
	TemplateID *uuid.UUID
	Vars       map[string]string
	ProjectID  *uuid.UUID
	Publish    bool
	Options    map[string]string
	File       *ToolFile
	// ConsumedAt is when the quota unit for this request was taken; a zero
	// value means nothing is released on failure.
	ConsumedAt time.Time
}

type ToolResult struct {
	Generation *types.Generation `json:"generation"`
	Job        *types.JobRun     `json:"job,omitempty"`
	Async      bool              `json:"async"`
}

// ImageJobPayload is the job_run payload of both image job types.
type ImageJobPayload struct {
	GenerationID uuid.UUID `json:"generation_id"`
	ConsumedAt   time.Time `json:"consumed_at"`
	Prompt       string    `json:"prompt"`
	Size         string    `json:"size,omitempty"`
	SourceKey    string    `json:"source_key,omitempty"`
	MimeType     string    `json:"mime_type,omitempty"`
	Background   string    `json:"background,omitempty"`
}

func (p ImageJobPayload) Map() (map[string]any, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type ToolService interface {
	Run(ctx context.Context, req ToolRequest) (*ToolResult, error)
	// FailGeneration marks an async generation failed and gives its quota
	// unit back. Called by the worker once a job has no attempts left.
	FailGeneration(ctx context.Context, generationID uuid.UUID, consumedAt time.Time, reason string) error
}

type toolService struct {
	db             *gorm.DB
	log            *logger.Logger
	usage          UsageService
	templates      TemplateService
	assets         AssetService
	jobs           JobService
	projectRepo    repos.ProjectRepo
	memberRepo     repos.ProjectMemberRepo
	generationRepo repos.GenerationRepo
	ai             openai.Client
	document       gcp.Document
	bucket         gcp.BucketService
	notify         JobNotifier
	now            func() time.Time
}

func NewToolService(
	db *gorm.DB,
	log *logger.Logger,
	usage UsageService,
	templates TemplateService,
	assets AssetService,
	jobs JobService,
	projectRepo repos.ProjectRepo,
	memberRepo repos.ProjectMemberRepo,
	generationRepo repos.GenerationRepo,
	ai openai.Client,
	document gcp.Document,
	bucket gcp.BucketService,
	notify JobNotifier,
) ToolService {
	return &toolService{
		db:             db,
		log:            log.With("service", "ToolService"),
		usage:          usage,
		templates:      templates,
		assets:         assets,
		jobs:           jobs,
		projectRepo:    projectRepo,
		memberRepo:     memberRepo,
		generationRepo: generationRepo,
		ai:             ai,
		document:       document,
		bucket:         bucket,
		notify:         notify,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (ts *toolService) Run(ctx context.Context, req ToolRequest) (result *ToolResult, err error) {
	metrics := observability.Current()
	defer func() {
		if err == nil {
			return
		}
		ts.release(ctx, req)
		if status, _ := apierr.Resolve(err); status < http.StatusInternalServerError {
			metrics.ObserveGeneration(req.Tool, "rejected")
		} else {
			metrics.ObserveGeneration(req.Tool, "failed")
		}
	}()

	if !content.IsKnownTool(req.Tool) {
		return nil, apierr.NotFound("tool " + req.Tool)
	}
	if ts.ai == nil {
		return nil, apierr.Newf(http.StatusServiceUnavailable, "tools_unavailable", "AI provider not configured")
	}
	prompt, err := ts.resolvePrompt(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.ProjectID != nil {
		dbc := dbctx.Context{Ctx: ctx}
		if _, _, err := authorizeProject(dbc, ts.projectRepo, ts.memberRepo, *req.ProjectID, req.UserID, types.RoleEditor); err != nil {
			return nil, err
		}
	}

	if content.IsImageTool(req.Tool) {
		result, err = ts.enqueueImage(ctx, req, prompt)
		if err == nil {
			metrics.ObserveGeneration(req.Tool, "queued")
		}
		return result, err
	}
	result, err = ts.runText(ctx, req, prompt)
	if err == nil {
		metrics.ObserveGeneration(req.Tool, "succeeded")
	}
	return result, err
}

func (ts *toolService) release(ctx context.Context, req ToolRequest) {
	if req.ConsumedAt.IsZero() || ts.usage == nil {
		return
	}
	if err := ts.usage.Release(context.WithoutCancel(ctx), req.UserID, req.ConsumedAt); err != nil {
		ts.log.Warn("Quota release failed", "user_id", req.UserID, "tool", req.Tool, "error", err)
	}
}

// resolvePrompt renders the referenced template when one is given and
// otherwise validates the raw prompt.
func (ts *toolService) resolvePrompt(ctx context.Context, req ToolRequest) (string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if req.TemplateID != nil {
		rendered, tpl, err := ts.templates.Render(ctx, *req.TemplateID, req.UserID, req.Vars)
		if err != nil {
			return "", err
		}
		if tpl.Tool != "" && tpl.Tool != req.Tool {
			return "", apierr.Invalid(fmt.Sprintf("template is for tool %s", tpl.Tool))
		}
		prompt = strings.TrimSpace(rendered)
	}
	if utf8.RuneCountInString(prompt) > maxPromptRunes {
		return "", apierr.Invalid(fmt.Sprintf("prompt longer than %d characters", maxPromptRunes))
	}
	switch req.Tool {
	case content.ToolResumeReview, content.ToolBackgroundRemoval:
		return prompt, nil
	case content.ToolObjectRemoval:
		if strings.TrimSpace(req.Options["object"]) == "" && prompt == "" {
			return "", apierr.Invalid("object is required")
		}
		return prompt, nil
	}
	if prompt == "" {
		return "", apierr.Invalid("prompt is required")
	}
	return prompt, nil
}

func (ts *toolService) newGeneration(req ToolRequest, prompt, status string) (*types.Generation, error) {
	input := map[string]any{}
	for k, v := range req.Options {
		input[k] = v
	}
	if req.TemplateID != nil {
		input["template_id"] = req.TemplateID.String()
		input["vars"] = req.Vars
	}
	if req.File != nil {
		input["file_name"] = req.File.Name
		input["file_type"] = req.File.MimeType
		input["file_size"] = len(req.File.Data)
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encode generation input: %w", err)
	}
	now := ts.now()
	return &types.Generation{
		ID:        uuid.New(),
		UserID:    req.UserID,
		ProjectID: req.ProjectID,
		Tool:      req.Tool,
		Status:    status,
		Prompt:    prompt,
		Input:     datatypes.JSON(raw),
		Publish:   req.Publish && content.IsImageTool(req.Tool),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (ts *toolService) runText(ctx context.Context, req ToolRequest, prompt string) (*ToolResult, error) {
	textReq, err := ts.textRequest(ctx, req, prompt)
	if err != nil {
		return nil, err
	}
	gen, err := ts.newGeneration(req, prompt, types.GenerationRunning)
	if err != nil {
		return nil, err
	}
	out, genErr := ts.ai.GenerateText(ctx, textReq)
	if genErr != nil {
		ts.log.Warn("Text generation failed", "tool", req.Tool, "user_id", req.UserID, "error", genErr)
		gen.Status = types.GenerationFailed
		gen.Error = genErr.Error()
		if _, err := ts.generationRepo.Create(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, []*types.Generation{gen}); err != nil {
			ts.log.Warn("Record failed generation", "error", err)
		}
		return nil, apierr.New(http.StatusBadGateway, "generation_failed", fmt.Errorf("generation failed: %w", genErr))
	}
	gen.Status = types.GenerationSucceeded
	gen.OutputText = out.Text
	if _, err := ts.generationRepo.Create(dbctx.Context{Ctx: ctx}, []*types.Generation{gen}); err != nil {
		return nil, fmt.Errorf("save generation: %w", err)
	}
	if gen.ProjectID != nil {
		if _, err := ts.assets.SaveText(ctx, gen); err != nil {
			ts.log.Warn("Save project asset failed", "generation_id", gen.ID, "error", err)
		}
	}
	return &ToolResult{Generation: gen}, nil
}

func (ts *toolService) textRequest(ctx context.Context, req ToolRequest, prompt string) (openai.TextRequest, error) {
	switch req.Tool {
	case content.ToolArticle:
		words := articleWords(req.Options["length"])
		return openai.TextRequest{
			System:          "You are a professional writer. Write well-structured articles in Markdown with a title, headings and a short conclusion.",
			User:            fmt.Sprintf("Write an article of about %d words on the following topic:\n\n%s", words, prompt),
			MaxOutputTokens: words * 2,
		}, nil
	case content.ToolBlogTitles:
		user := "Suggest 10 catchy blog post titles for the keyword: " + prompt
		if cat := strings.TrimSpace(req.Options["category"]); cat != "" {
			user += "\nCategory: " + cat
		}
		return openai.TextRequest{
			System:          "You write engaging blog titles. Answer with a numbered Markdown list and nothing else.",
			User:            user,
			MaxOutputTokens: 400,
		}, nil
	case content.ToolResumeReview:
		text, err := ts.resumeText(ctx, req.File)
		if err != nil {
			return openai.TextRequest{}, err
		}
		user := "Review this resume. Give an overall assessment, strengths, weaknesses and concrete improvements.\n\n" + text
		if prompt != "" {
			user = "Target role or notes: " + prompt + "\n\n" + user
		}
		return openai.TextRequest{
			System:          "You are an experienced recruiter giving candid, actionable resume feedback in Markdown.",
			User:            user,
			MaxOutputTokens: 1500,
		}, nil
	}
	return openai.TextRequest{}, apierr.Invalid("unsupported text tool " + req.Tool)
}

func articleWords(length string) int {
	switch strings.ToLower(strings.TrimSpace(length)) {
	case "short":
		return 500
	case "long":
		return 1600
	}
	return 1000
}

func (ts *toolService) resumeText(ctx context.Context, file *ToolFile) (string, error) {
	if file == nil || len(file.Data) == 0 {
		return "", apierr.Invalid("resume file is required")
	}
	if len(file.Data) > MaxResumeBytes {
		return "", apierr.Newf(http.StatusRequestEntityTooLarge, "file_too_large", "resume exceeds %d bytes", MaxResumeBytes)
	}
	mime := strings.ToLower(strings.TrimSpace(file.MimeType))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	var text string
	switch mime {
	case "text/plain":
		if !utf8.Valid(file.Data) {
			return "", apierr.Invalid("resume text is not valid UTF-8")
		}
		text = string(file.Data)
	case "application/pdf":
		if ts.document == nil {
			return "", apierr.Newf(http.StatusServiceUnavailable, "document_unavailable", "PDF extraction not configured")
		}
		doc, err := ts.document.ExtractText(ctx, mime, file.Data)
		if err != nil {
			return "", apierr.New(http.StatusBadGateway, "generation_failed", fmt.Errorf("extract resume text: %w", err))
		}
		text = doc.Text
	default:
		return "", apierr.Newf(http.StatusUnsupportedMediaType, "unsupported_media_type", "resume must be PDF or plain text")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apierr.Invalid("resume contains no text")
	}
	return text, nil
}

func imageExt(mime string) (string, bool) {
	switch mime {
	case "image/png":
		return ".png", true
	case "image/jpeg":
		return ".jpg", true
	case "image/webp":
		return ".webp", true
	}
	return "", false
}

func editPrompt(tool, prompt string, options map[string]string) (string, string) {
	if tool == content.ToolBackgroundRemoval {
		return "Remove the background completely, keeping the main subject unchanged with clean edges.", "transparent"
	}
	object := strings.TrimSpace(options["object"])
	if object == "" {
		object = prompt
	}
	return fmt.Sprintf("Remove the %s from the image and fill the area so it blends naturally with its surroundings. Leave everything else unchanged.", object), ""
}

func (ts *toolService) enqueueImage(ctx context.Context, req ToolRequest, prompt string) (*ToolResult, error) {
	payload := ImageJobPayload{ConsumedAt: req.ConsumedAt, Prompt: prompt, Size: strings.TrimSpace(req.Options["size"])}
	jobType := JobTypeImageGenerate
	if req.Tool != content.ToolImage {
		jobType = JobTypeImageEdit
		if req.File == nil || len(req.File.Data) == 0 {
			return nil, apierr.Invalid("image file is required")
		}
		if len(req.File.Data) > MaxImageInputBytes {
			return nil, apierr.Newf(http.StatusRequestEntityTooLarge, "file_too_large", "image exceeds %d bytes", MaxImageInputBytes)
		}
		ext, ok := imageExt(strings.ToLower(strings.TrimSpace(req.File.MimeType)))
		if !ok {
			return nil, apierr.Newf(http.StatusUnsupportedMediaType, "unsupported_media_type", "image must be PNG, JPEG or WebP")
		}
		payload.MimeType = strings.ToLower(strings.TrimSpace(req.File.MimeType))
		payload.Prompt, payload.Background = editPrompt(req.Tool, prompt, req.Options)
		payload.SourceKey = path.Join("uploads", req.UserID.String(), uuid.NewString()+ext)
	}
	if ts.bucket == nil {
		return nil, apierr.Newf(http.StatusServiceUnavailable, "tools_unavailable", "object storage not configured")
	}

	gen, err := ts.newGeneration(req, prompt, types.GenerationQueued)
	if err != nil {
		return nil, err
	}
	payload.GenerationID = gen.ID
	if payload.SourceKey != "" {
		if err := ts.bucket.UploadFile(dbctx.Context{Ctx: ctx}, gcp.BucketCategoryAsset, payload.SourceKey, bytes.NewReader(req.File.Data)); err != nil {
			return nil, fmt.Errorf("upload source image: %w", err)
		}
	}
	body, err := payload.Map()
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}

	var job *types.JobRun
	err = ts.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := ts.generationRepo.Create(dbc, []*types.Generation{gen}); err != nil {
			return fmt.Errorf("create generation: %w", err)
		}
		j, err := ts.jobs.Enqueue(dbc, req.UserID, jobType, JobEntityGeneration, &gen.ID, body)
		if err != nil {
			return err
		}
		job = j
		return ts.generationRepo.UpdateFields(dbc, gen.ID, map[string]interface{}{"job_id": j.ID})
	})
	if err != nil {
		if payload.SourceKey != "" {
			_ = ts.bucket.DeleteFile(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, gcp.BucketCategoryAsset, payload.SourceKey)
		}
		return nil, err
	}
	gen.JobID = &job.ID
	ts.notify.JobCreated(req.UserID, job)
	return &ToolResult{Generation: gen, Job: job, Async: true}, nil
}

func (ts *toolService) FailGeneration(ctx context.Context, generationID uuid.UUID, consumedAt time.Time, reason string) error {
	gen, err := ts.generationRepo.GetByID(dbctx.Context{Ctx: ctx}, generationID)
	if err != nil {
		return fmt.Errorf("load generation: %w", err)
	}
	if gen == nil {
		return nil
	}
	changed, err := ts.generationRepo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, generationID,
		[]string{types.GenerationSucceeded, types.GenerationFailed},
		map[string]interface{}{
			"status":     types.GenerationFailed,
			"error":      reason,
			"updated_at": ts.now(),
		})
	if err != nil {
		return fmt.Errorf("mark generation failed: %w", err)
	}
	if !changed {
		return nil
	}
	observability.Current().ObserveGeneration(gen.Tool, "failed")
	if !consumedAt.IsZero() {
		if err := ts.usage.Release(ctx, gen.UserID, consumedAt); err != nil {
			return fmt.Errorf("release quota: %w", err)
		}
	}
	return nil
}
