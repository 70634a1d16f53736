package services

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/inkwell-backend/internal/data/repos"
	"github.com/yungbote/inkwell-backend/internal/data/repos/testutil"
	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/apierr"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
)

func TestCursorRoundTrip(t *testing.T) {
	c := repos.GenerationCursor{CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC), ID: uuid.New()}
	got, err := DecodeCursor(EncodeCursor(c))
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	if !got.CreatedAt.Equal(c.CreatedAt) || got.ID != c.ID {
		t.Fatalf("got %+v want %+v", got, c)
	}
	for _, bad := range []string{"!!", "bm9jb2xvbg", "MTIzOm5vdC1hLXV1aWQ"} {
		if _, err := DecodeCursor(bad); apierr.Code(err) != "invalid_argument" {
			t.Fatalf("%q: %v", bad, err)
		}
	}
}

func TestListGenerationsPages(t *testing.T) {
	env := newTestEnv(t)
	gs := env.generationsSvc()
	u := testutil.SeedUser(t, env.ctx, env.db, "pager@x.io")
	other := testutil.SeedUser(t, env.ctx, env.db, "other@x.io")
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	var rows []*types.Generation
	for i := 0; i < 5; i++ {
		rows = append(rows, &types.Generation{UserID: u.ID, Tool: "article", Status: types.GenerationSucceeded, CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	rows = append(rows, &types.Generation{UserID: other.ID, Tool: "article", Status: types.GenerationSucceeded, CreatedAt: base})
	if _, err := env.generations.Create(dbctx.Context{Ctx: env.ctx}, rows); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var seen []uuid.UUID
	cursor := ""
	for {
		page, err := gs.List(env.ctx, u.ID, "", cursor, 2)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		for _, g := range page.Items {
			seen = append(seen, g.ID)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	if len(seen) != 5 || seen[0] != rows[4].ID || seen[4] != rows[0].ID {
		t.Fatalf("order: %v", seen)
	}

	if _, err := gs.Get(env.ctx, rows[5].ID, u.ID); apierr.Code(err) != "not_found" {
		t.Fatalf("foreign get: %v", err)
	}
	if err := gs.Delete(env.ctx, rows[0].ID, u.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	page, _ := gs.List(env.ctx, u.ID, "", "", 100)
	if len(page.Items) != 4 {
		t.Fatalf("after delete: %d", len(page.Items))
	}
	if _, err := gs.List(env.ctx, u.ID, "sonnet", "", 10); apierr.Code(err) != "invalid_argument" {
		t.Fatalf("unknown tool filter: %v", err)
	}
}

func TestPublishedFeed(t *testing.T) {
	env := newTestEnv(t)
	gs := env.generationsSvc()
	as := env.assetsSvc(t, newFakeBucket())
	u := testutil.SeedUser(t, env.ctx, env.db, "feed@x.io")

	public := seedGeneration(t, env, u.ID, nil, "image")
	if err := env.generations.UpdateFields(dbctx.Context{Ctx: env.ctx}, public.ID, map[string]interface{}{"publish": true}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := as.CompleteImageGeneration(env.ctx, public, tinyPNG(t, 4, 4), ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	private := seedGeneration(t, env, u.ID, nil, "image")
	if _, err := as.CompleteImageGeneration(env.ctx, private, tinyPNG(t, 4, 4), ""); err != nil {
		t.Fatalf("complete: %v", err)
	}

	page, err := gs.Published(env.ctx, "", 0)
	if err != nil {
		t.Fatalf("Published: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != public.ID || page.Items[0].Asset == nil {
		t.Fatalf("feed: %+v", page.Items)
	}
}
