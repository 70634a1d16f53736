package user

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/inkwell-backend/internal/data/repos/testutil"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
)

func TestUserRepo(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewUserRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	ada := testutil.SeedUser(t, ctx, db, "ada@inkwell.test")
	testutil.SeedUser(t, ctx, db, "grace@inkwell.test")

	got, err := repo.GetByEmail(dbc, "  ADA@inkwell.test ")
	if err != nil || got == nil || got.ID != ada.ID {
		t.Fatalf("GetByEmail: got=%v err=%v", got, err)
	}
	if missing, err := repo.GetByEmail(dbc, "nobody@inkwell.test"); err != nil || missing != nil {
		t.Fatalf("GetByEmail missing: got=%v err=%v", missing, err)
	}
	if ok, err := repo.EmailExists(dbc, "grace@inkwell.test"); err != nil || !ok {
		t.Fatalf("EmailExists: ok=%v err=%v", ok, err)
	}

	if err := repo.SetAdmin(dbc, ada.ID, true); err != nil {
		t.Fatalf("SetAdmin: %v", err)
	}
	if err := repo.UpdateAvatarFields(dbc, ada.ID, "#112233", "avatars/a.png", "https://x/a.png"); err != nil {
		t.Fatalf("UpdateAvatarFields: %v", err)
	}
	rows, err := repo.GetByIDs(dbc, []uuid.UUID{ada.ID})
	if err != nil || len(rows) != 1 || !rows[0].IsAdmin || rows[0].AvatarURL != "https://x/a.png" {
		t.Fatalf("GetByIDs: rows=%v err=%v", rows, err)
	}

	found, total, err := repo.Search(dbc, "grace", 10, 0)
	if err != nil || total != 1 || len(found) != 1 || found[0].Email != "grace@inkwell.test" {
		t.Fatalf("Search: found=%v total=%d err=%v", found, total, err)
	}
	if all, total, err := repo.Search(dbc, "", 1, 0); err != nil || total != 2 || len(all) != 1 {
		t.Fatalf("Search page: n=%d total=%d err=%v", len(all), total, err)
	}

	now := time.Now().UTC()
	n, err := repo.CountCreatedBetween(dbc, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil || n != 2 {
		t.Fatalf("CountCreatedBetween: n=%d err=%v", n, err)
	}
	if n, err := repo.CountCreatedBetween(dbc, now.Add(time.Hour), now.Add(2*time.Hour)); err != nil || n != 0 {
		t.Fatalf("CountCreatedBetween future: n=%d err=%v", n, err)
	}
}
