package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/inkwell-backend/internal/data/db"
	"github.com/yungbote/inkwell-backend/internal/data/repos"
	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/domain/content"
	"github.com/yungbote/inkwell-backend/internal/platform/apierr"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

var errTemplateNameTaken = apierr.Conflict("template_name_taken", "a template with this name already exists")

var placeholderRE = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Render substitutes {{ name }} placeholders. Every placeholder must have a
// value; extra values are ignored.
func Render(body string, vars map[string]string) (string, error) {
	missing := map[string]bool{}
	out := placeholderRE.ReplaceAllStringFunc(body, func(m string) string {
		name := placeholderRE.FindStringSubmatch(m)[1]
		v, ok := vars[name]
		if !ok {
			missing[name] = true
			return m
		}
		return v
	})
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for n := range missing {
			names = append(names, n)
		}
		sort.Strings(names)
		return "", apierr.Invalid("missing template variables: " + strings.Join(names, ", "))
	}
	return out, nil
}

type TemplateInput struct {
	Name string `json:"name"`
	Tool string `json:"tool"`
	Body string `json:"body"`
}

type TemplateUpdate struct {
	Name *string `json:"name"`
	Tool *string `json:"tool"`
	Body *string `json:"body"`
}

type TemplateService interface {
	List(ctx context.Context, projectID, userID uuid.UUID) ([]*types.Template, error)
	Get(ctx context.Context, templateID, userID uuid.UUID) (*types.Template, error)
	Create(ctx context.Context, projectID, userID uuid.UUID, in TemplateInput) (*types.Template, error)
	Update(ctx context.Context, templateID, userID uuid.UUID, in TemplateUpdate) (*types.Template, error)
	Delete(ctx context.Context, templateID, userID uuid.UUID) error
	Render(ctx context.Context, templateID, userID uuid.UUID, vars map[string]string) (string, *types.Template, error)
}

type templateService struct {
	log          *logger.Logger
	projects     ProjectService
	templateRepo repos.TemplateRepo
}

func NewTemplateService(log *logger.Logger, projects ProjectService, templateRepo repos.TemplateRepo) TemplateService {
	return &templateService{
		log:          log.With("service", "TemplateService"),
		projects:     projects,
		templateRepo: templateRepo,
	}
}

func validateTemplateTool(tool string) error {
	if tool != "" && !content.IsKnownTool(tool) {
		return apierr.Invalid("unknown tool " + tool)
	}
	return nil
}

// load resolves a template and checks the caller's role on its project.
func (ts *templateService) load(ctx context.Context, templateID, userID uuid.UUID, min types.Role) (*types.Template, error) {
	tpl, err := ts.templateRepo.GetByID(dbctx.Context{Ctx: ctx}, templateID)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}
	if tpl == nil {
		return nil, apierr.NotFound("template")
	}
	if _, _, err := ts.projects.Authorize(ctx, tpl.ProjectID, userID, min); err != nil {
		if apierr.Code(err) == "not_found" {
			return nil, apierr.NotFound("template")
		}
		return nil, err
	}
	return tpl, nil
}

func (ts *templateService) ensureNameFree(ctx context.Context, projectID uuid.UUID, name string, except uuid.UUID) error {
	existing, err := ts.templateRepo.GetByName(dbctx.Context{Ctx: ctx}, projectID, name)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != except {
		return errTemplateNameTaken
	}
	return nil
}

func (ts *templateService) List(ctx context.Context, projectID, userID uuid.UUID) ([]*types.Template, error) {
	if _, _, err := ts.projects.Authorize(ctx, projectID, userID, types.RoleViewer); err != nil {
		return nil, err
	}
	return ts.templateRepo.ListByProject(dbctx.Context{Ctx: ctx}, projectID)
}

func (ts *templateService) Get(ctx context.Context, templateID, userID uuid.UUID) (*types.Template, error) {
	return ts.load(ctx, templateID, userID, types.RoleViewer)
}

func (ts *templateService) Create(ctx context.Context, projectID, userID uuid.UUID, in TemplateInput) (*types.Template, error) {
	if _, _, err := ts.projects.Authorize(ctx, projectID, userID, types.RoleEditor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || strings.TrimSpace(in.Body) == "" {
		return nil, apierr.Invalid("name and body are required")
	}
	tool := strings.TrimSpace(in.Tool)
	if err := validateTemplateTool(tool); err != nil {
		return nil, err
	}
	if err := ts.ensureNameFree(ctx, projectID, name, uuid.Nil); err != nil {
		return nil, err
	}
	tpl := &types.Template{ProjectID: projectID, Name: name, CreatedBy: userID, Tool: tool, Body: in.Body}
	if _, err := ts.templateRepo.Create(dbctx.Context{Ctx: ctx}, []*types.Template{tpl}); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, errTemplateNameTaken
		}
		return nil, fmt.Errorf("create template: %w", err)
	}
	return tpl, nil
}

func (ts *templateService) Update(ctx context.Context, templateID, userID uuid.UUID, in TemplateUpdate) (*types.Template, error) {
	tpl, err := ts.load(ctx, templateID, userID, types.RoleEditor)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apierr.Invalid("name cannot be empty")
		}
		if err := ts.ensureNameFree(ctx, tpl.ProjectID, name, tpl.ID); err != nil {
			return nil, err
		}
		tpl.Name = name
		updates["name"] = name
	}
	if in.Tool != nil {
		tool := strings.TrimSpace(*in.Tool)
		if err := validateTemplateTool(tool); err != nil {
			return nil, err
		}
		tpl.Tool = tool
		updates["tool"] = tool
	}
	if in.Body != nil {
		if strings.TrimSpace(*in.Body) == "" {
			return nil, apierr.Invalid("body cannot be empty")
		}
		tpl.Body = *in.Body
		updates["body"] = tpl.Body
	}
	if err := ts.templateRepo.UpdateFields(dbctx.Context{Ctx: ctx}, tpl.ID, updates); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, errTemplateNameTaken
		}
		return nil, fmt.Errorf("update template: %w", err)
	}
	return tpl, nil
}

func (ts *templateService) Delete(ctx context.Context, templateID, userID uuid.UUID) error {
	tpl, err := ts.load(ctx, templateID, userID, types.RoleEditor)
	if err != nil {
		return err
	}
	return ts.templateRepo.Delete(dbctx.Context{Ctx: ctx}, tpl.ID)
}

func (ts *templateService) Render(ctx context.Context, templateID, userID uuid.UUID, vars map[string]string) (string, *types.Template, error) {
	tpl, err := ts.load(ctx, templateID, userID, types.RoleViewer)
	if err != nil {
		return "", nil, err
	}
	out, err := Render(tpl.Body, vars)
	if err != nil {
		return "", nil, err
	}
	return out, tpl, nil
}
