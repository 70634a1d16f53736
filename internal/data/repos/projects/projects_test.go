package projects

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/inkwell-backend/internal/data/repos/testutil"
	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
)

func TestMemberRepo(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	log := testutil.Logger(t)
	projects := NewProjectRepo(db, log)
	members := NewProjectMemberRepo(db, log)

	owner := testutil.SeedUser(t, ctx, db, "owner@inkwell.test")
	ed := testutil.SeedUser(t, ctx, db, "ed@inkwell.test")
	p := testutil.SeedProject(t, ctx, db, owner.ID, "Launch")
	testutil.SeedMember(t, ctx, db, p.ID, ed.ID, types.RoleViewer)

	if _, err := members.Create(dbc, []*types.ProjectMember{{ProjectID: p.ID, UserID: ed.ID, Role: types.RoleEditor}}); err == nil {
		t.Fatalf("duplicate membership should violate the unique index")
	}
	if err := members.UpdateRole(dbc, p.ID, ed.ID, types.RoleEditor); err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	m, err := members.Get(dbc, p.ID, ed.ID)
	if err != nil || m == nil || m.Role != types.RoleEditor {
		t.Fatalf("Get: %v %v", m, err)
	}
	if n, _ := members.CountByProject(dbc, p.ID); n != 2 {
		t.Fatalf("CountByProject: %d", n)
	}
	if n, _ := projects.CountOwnedBy(dbc, owner.ID); n != 1 {
		t.Fatalf("CountOwnedBy: %d", n)
	}

	removed, err := members.Delete(dbc, p.ID, ed.ID)
	if err != nil || !removed {
		t.Fatalf("Delete: %v %v", removed, err)
	}
	if m, _ := members.Get(dbc, p.ID, ed.ID); m != nil {
		t.Fatalf("member still present")
	}

	if err := projects.SoftDelete(dbc, p.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if got, _ := projects.GetByID(dbc, p.ID); got != nil {
		t.Fatalf("soft-deleted project still visible")
	}
}

func TestInviteRepoLifecycle(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewProjectInviteRepo(db, testutil.Logger(t))

	owner := testutil.SeedUser(t, ctx, db, "owner@inkwell.test")
	guest := testutil.SeedUser(t, ctx, db, "guest@inkwell.test")
	p := testutil.SeedProject(t, ctx, db, owner.ID, "Docs")
	now := time.Now().UTC()

	inv := &types.ProjectInvite{ProjectID: p.ID, Email: guest.Email, Role: types.RoleEditor, TokenHash: "h1", InvitedBy: owner.ID, ExpiresAt: now.Add(time.Hour)}
	old := &types.ProjectInvite{ProjectID: p.ID, Email: "late@inkwell.test", Role: types.RoleViewer, TokenHash: "h2", InvitedBy: owner.ID, ExpiresAt: now.Add(-40 * 24 * time.Hour)}
	if _, err := repo.Create(dbc, []*types.ProjectInvite{inv, old}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if n, _ := repo.CountPendingByProject(dbc, p.ID, now); n != 1 {
		t.Fatalf("CountPendingByProject: %d", n)
	}
	mine, err := repo.ListPendingByEmail(dbc, guest.Email, now)
	if err != nil || len(mine) != 1 {
		t.Fatalf("ListPendingByEmail: %v %v", mine, err)
	}

	ok, err := repo.MarkAccepted(dbc, inv.ID, guest.ID, now)
	if err != nil || !ok {
		t.Fatalf("MarkAccepted: %v %v", ok, err)
	}
	if again, _ := repo.MarkAccepted(dbc, inv.ID, owner.ID, now); again {
		t.Fatalf("second claim must not win")
	}
	got, _ := repo.GetByTokenHash(dbc, "h1")
	if got == nil || got.AcceptedBy == nil || *got.AcceptedBy != guest.ID {
		t.Fatalf("accepted invite: %#v", got)
	}
	if revoked, _ := repo.Revoke(dbc, inv.ID, now); revoked {
		t.Fatalf("accepted invites cannot be revoked")
	}

	n, err := repo.DeleteExpiredBefore(dbc, now.Add(-30*24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("DeleteExpiredBefore: n=%d err=%v", n, err)
	}
}

func TestTemplateNameUniquePerProject(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewTemplateRepo(db, testutil.Logger(t))

	owner := testutil.SeedUser(t, ctx, db, "owner@inkwell.test")
	a := testutil.SeedProject(t, ctx, db, owner.ID, "A")
	b := testutil.SeedProject(t, ctx, db, owner.ID, "B")

	mk := func(p *types.Project) error {
		_, err := repo.Create(dbc, []*types.Template{{ProjectID: p.ID, Name: "intro", CreatedBy: owner.ID, Body: "Hi {{ name }}"}})
		return err
	}
	if err := mk(a); err != nil {
		t.Fatalf("create in A: %v", err)
	}
	if err := mk(b); err != nil {
		t.Fatalf("same name in B: %v", err)
	}
	if err := mk(a); err == nil {
		t.Fatalf("duplicate name in A should fail")
	}
	got, err := repo.GetByName(dbc, a.ID, "intro")
	if err != nil || got == nil {
		t.Fatalf("GetByName: %v %v", got, err)
	}
	list, _ := repo.ListByProject(dbc, b.ID)
	if len(list) != 1 {
		t.Fatalf("ListByProject: %d", len(list))
	}
}
