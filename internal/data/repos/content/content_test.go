package content

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/inkwell-backend/internal/data/repos/testutil"
	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
)

func TestGenerationRepoPagingAndFeed(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	log := testutil.Logger(t)
	gens := NewGenerationRepo(db, log)

	u := testutil.SeedUser(t, ctx, db, "writer@inkwell.test")
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	assetID := uuid.New()

	var rows []*types.Generation
	for i := 0; i < 5; i++ {
		g := &types.Generation{
			UserID:    u.ID,
			Tool:      "article",
			Status:    types.GenerationSucceeded,
			Prompt:    "p",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if i == 4 {
			g.Tool = "image"
			g.Publish = true
			g.AssetID = &assetID
		}
		rows = append(rows, g)
	}
	rows[1].Status = types.GenerationFailed
	if _, err := gens.Create(dbc, rows); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, err := gens.ListByUser(dbc, u.ID, "", nil, 2)
	if err != nil || len(first) != 2 {
		t.Fatalf("ListByUser page 1: len=%d err=%v", len(first), err)
	}
	if first[0].ID != rows[4].ID || first[1].ID != rows[3].ID {
		t.Fatalf("page 1 not newest first")
	}
	last := first[len(first)-1]
	second, err := gens.ListByUser(dbc, u.ID, "", &Cursor{CreatedAt: last.CreatedAt, ID: last.ID}, 10)
	if err != nil || len(second) != 3 {
		t.Fatalf("ListByUser page 2: len=%d err=%v", len(second), err)
	}
	if onlyImages, _ := gens.ListByUser(dbc, u.ID, "image", nil, 10); len(onlyImages) != 1 {
		t.Fatalf("tool filter: %d", len(onlyImages))
	}

	feed, err := gens.ListPublished(dbc, nil, 10)
	if err != nil || len(feed) != 1 || feed[0].ID != rows[4].ID {
		t.Fatalf("ListPublished: %v %v", feed, err)
	}

	byTool, err := gens.CountByTool(dbc, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("CountByTool: %v", err)
	}
	if byTool["article"] != 4 || byTool["image"] != 1 {
		t.Fatalf("CountByTool: %v", byTool)
	}
	if n, _ := gens.CountByStatus(dbc, types.GenerationFailed, base, base.Add(time.Hour)); n != 1 {
		t.Fatalf("CountByStatus(failed): %d", n)
	}

	if err := gens.SoftDelete(dbc, rows[0].ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if g, _ := gens.GetByID(dbc, rows[0].ID); g != nil {
		t.Fatalf("deleted generation still visible")
	}
	if byTool, _ := gens.CountByTool(dbc, base, base.Add(time.Hour)); byTool["article"] != 4 {
		t.Fatalf("deleted generations still count toward usage analytics: %v", byTool)
	}
}

func TestGenerationRepoTerminalGuard(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	gens := NewGenerationRepo(db, testutil.Logger(t))

	g := &types.Generation{UserID: uuid.New(), Tool: "image", Status: types.GenerationSucceeded}
	if _, err := gens.Create(dbc, []*types.Generation{g}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	ok, err := gens.UpdateFieldsUnlessStatus(dbc, g.ID,
		[]string{types.GenerationSucceeded, types.GenerationFailed},
		map[string]interface{}{"status": types.GenerationFailed})
	if err != nil || ok {
		t.Fatalf("terminal generation was overwritten: ok=%v err=%v", ok, err)
	}
}

func TestAssetRepoDetachAndDelete(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	assets := NewAssetRepo(db, testutil.Logger(t))

	owner := testutil.SeedUser(t, ctx, db, "owner@inkwell.test")
	p := testutil.SeedProject(t, ctx, db, owner.ID, "Shared")

	a1 := &types.Asset{UserID: owner.ID, ProjectID: &p.ID, Kind: types.AssetKindImage, StorageKey: "a/1.png"}
	a2 := &types.Asset{UserID: owner.ID, ProjectID: &p.ID, Kind: types.AssetKindText, Body: "hello"}
	if _, err := assets.Create(dbc, []*types.Asset{a1, a2}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	listed, err := assets.ListByProject(dbc, p.ID, 50)
	if err != nil || len(listed) != 2 {
		t.Fatalf("ListByProject: len=%d err=%v", len(listed), err)
	}

	if err := assets.SoftDeleteByIDs(dbc, []uuid.UUID{a2.ID}); err != nil {
		t.Fatalf("SoftDeleteByIDs: %v", err)
	}
	if err := assets.DetachProject(dbc, p.ID); err != nil {
		t.Fatalf("DetachProject: %v", err)
	}
	got, err := assets.GetByID(dbc, a1.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v %v", got, err)
	}
	if got.ProjectID != nil {
		t.Fatalf("asset still attached to project")
	}
	if listed, _ := assets.ListByProject(dbc, p.ID, 50); len(listed) != 0 {
		t.Fatalf("project still lists assets: %d", len(listed))
	}
}
