package services

import (
	"strings"
	"testing"

	"github.com/yungbote/inkwell-backend/internal/data/repos/testutil"
	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/apierr"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		vars    map[string]string
		want    string
		missing string
	}{
		{"plain", "Hello {{name}}", map[string]string{"name": "Ada"}, "Hello Ada", ""},
		{"spaces", "{{  topic }} in {{tone}}", map[string]string{"topic": "Go", "tone": "calm", "extra": "x"}, "Go in calm", ""},
		{"repeat", "{{a}}{{a}}", map[string]string{"a": "x"}, "xx", ""},
		{"missing", "{{a}} {{ b }} {{c}}", map[string]string{"a": "1"}, "", "b, c"},
		{"no placeholders", "static", nil, "static", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Render(tc.body, tc.vars)
			if tc.missing != "" {
				if apierr.Code(err) != "invalid_argument" || !strings.Contains(err.Error(), tc.missing) {
					t.Fatalf("want missing %q got %v", tc.missing, err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("want %q got %q err=%v", tc.want, got, err)
			}
		})
	}
}

func TestTemplateCRUD(t *testing.T) {
	env := newTestEnv(t)
	ts := env.templatesSvc()
	owner := testutil.SeedUser(t, env.ctx, env.db, "owner@x.io")
	viewer := testutil.SeedUser(t, env.ctx, env.db, "viewer@x.io")
	stranger := testutil.SeedUser(t, env.ctx, env.db, "stranger@x.io")
	p := testutil.SeedProject(t, env.ctx, env.db, owner.ID, "Prompts")
	testutil.SeedMember(t, env.ctx, env.db, p.ID, viewer.ID, types.RoleViewer)

	tpl, err := ts.Create(env.ctx, p.ID, owner.ID, TemplateInput{Name: "Intro", Tool: "article", Body: "Write about {{topic}}"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := ts.Create(env.ctx, p.ID, owner.ID, TemplateInput{Name: "Intro", Body: "x"}); apierr.Code(err) != "template_name_taken" {
		t.Fatalf("duplicate name: %v", err)
	}
	if _, err := ts.Create(env.ctx, p.ID, viewer.ID, TemplateInput{Name: "Other", Body: "x"}); apierr.Code(err) != "forbidden" {
		t.Fatalf("viewer create: %v", err)
	}
	if _, err := ts.Create(env.ctx, p.ID, owner.ID, TemplateInput{Name: "Bad", Tool: "poetry", Body: "x"}); apierr.Code(err) != "invalid_argument" {
		t.Fatalf("unknown tool: %v", err)
	}

	out, _, err := ts.Render(env.ctx, tpl.ID, viewer.ID, map[string]string{"topic": "otters"})
	if err != nil || out != "Write about otters" {
		t.Fatalf("Render: %q %v", out, err)
	}
	if _, err := ts.Get(env.ctx, tpl.ID, stranger.ID); apierr.Code(err) != "not_found" {
		t.Fatalf("stranger get: %v", err)
	}

	body := "Draft {{ topic }} for {{audience}}"
	updated, err := ts.Update(env.ctx, tpl.ID, owner.ID, TemplateUpdate{Body: &body})
	if err != nil || updated.Body != body {
		t.Fatalf("Update: %v", err)
	}
	if _, _, err := ts.Render(env.ctx, tpl.ID, owner.ID, map[string]string{"topic": "x"}); apierr.Code(err) != "invalid_argument" {
		t.Fatalf("missing var after update: %v", err)
	}

	if err := ts.Delete(env.ctx, tpl.ID, viewer.ID); apierr.Code(err) != "forbidden" {
		t.Fatalf("viewer delete: %v", err)
	}
	if err := ts.Delete(env.ctx, tpl.ID, owner.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	list, err := ts.List(env.ctx, p.ID, viewer.ID)
	if err != nil || len(list) != 0 {
		t.Fatalf("List after delete: %d %v", len(list), err)
	}
}
