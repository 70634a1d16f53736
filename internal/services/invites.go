package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/inkwell-backend/internal/data/repos"
	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/domain/billing"
	"github.com/yungbote/inkwell-backend/internal/platform/apierr"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

const (
	inviteTokenBytes = 32
	// Expired invites are kept this long before the sweep deletes them.
	inviteRetention = 30 * 24 * time.Hour
)

type InviteView struct {
	*types.ProjectInvite
	ProjectName string `json:"project_name,omitempty"`
	AcceptURL   string `json:"accept_url,omitempty"`
}

type InviteService interface {
	Create(ctx context.Context, projectID, actorID uuid.UUID, email string, role types.Role) (*InviteView, error)
	ListByProject(ctx context.Context, projectID, actorID uuid.UUID) ([]*types.ProjectInvite, error)
	Revoke(ctx context.Context, projectID, actorID, inviteID uuid.UUID) error
	ListMine(ctx context.Context, userID uuid.UUID) ([]*InviteView, error)
	Claim(ctx context.Context, token string, userID uuid.UUID) (*ProjectView, error)
	SweepExpired(ctx context.Context) (int64, error)
}

type inviteService struct {
	db          *gorm.DB
	log         *logger.Logger
	billing     BillingService
	projectRepo repos.ProjectRepo
	memberRepo  repos.ProjectMemberRepo
	inviteRepo  repos.ProjectInviteRepo
	userRepo    repos.UserRepo
	mailer      Mailer
	notify      EventNotifier
	appBaseURL  string
	ttl         time.Duration
	now         func() time.Time
}

func NewInviteService(
	db *gorm.DB,
	log *logger.Logger,
	billingService BillingService,
	projectRepo repos.ProjectRepo,
	memberRepo repos.ProjectMemberRepo,
	inviteRepo repos.ProjectInviteRepo,
	userRepo repos.UserRepo,
	mailer Mailer,
	notify EventNotifier,
	appBaseURL string,
	ttl time.Duration,
) InviteService {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &inviteService{
		db:          db,
		log:         log.With("service", "InviteService"),
		billing:     billingService,
		projectRepo: projectRepo,
		memberRepo:  memberRepo,
		inviteRepo:  inviteRepo,
		userRepo:    userRepo,
		mailer:      mailer,
		notify:      notify,
		appBaseURL:  strings.TrimRight(appBaseURL, "/"),
		ttl:         ttl,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func newInviteToken() (string, error) {
	raw := make([]byte, inviteTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func hashInviteToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (is *inviteService) acceptURL(token string) string {
	return is.appBaseURL + "/invites/" + token
}

// Create issues an invite. A pending invite for the same address is revoked
// and replaced; members plus pending invites are bounded by the owner's plan.
func (is *inviteService) Create(ctx context.Context, projectID, actorID uuid.UUID, email string, role types.Role) (*InviteView, error) {
	email = normalizeEmail(email)
	if email == "" || !validEmail(email) {
		return nil, apierr.Invalid("a valid email is required")
	}
	if !role.Invitable() {
		return nil, apierr.Invalid("role must be editor or viewer")
	}
	token, err := newInviteToken()
	if err != nil {
		return nil, fmt.Errorf("generate invite token: %w", err)
	}

	var (
		project *types.Project
		invite  *types.ProjectInvite
	)
	err = is.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		var err error
		project, _, err = authorizeProject(dbc, is.projectRepo, is.memberRepo, projectID, actorID, types.RoleOwner)
		if err != nil {
			return err
		}
		invitee, err := is.userRepo.GetByEmail(dbc, email)
		if err != nil {
			return err
		}
		if invitee != nil {
			existing, err := is.memberRepo.Get(dbc, projectID, invitee.ID)
			if err != nil {
				return err
			}
			if existing != nil {
				return apierr.Conflict("already_member", "user is already a member of this project")
			}
		}

		now := is.now()
		replaced, err := is.inviteRepo.RevokePendingByEmail(dbc, projectID, email, now)
		if err != nil {
			return fmt.Errorf("revoke previous invite: %w", err)
		}
		if err := is.checkMemberLimit(ctx, dbc, project, now); err != nil {
			return err
		}
		invite = &types.ProjectInvite{
			ProjectID: projectID,
			Email:     email,
			Role:      role,
			TokenHash: hashInviteToken(token),
			InvitedBy: actorID,
			ExpiresAt: now.Add(is.ttl),
		}
		if _, err := is.inviteRepo.Create(dbc, []*types.ProjectInvite{invite}); err != nil {
			return fmt.Errorf("create invite: %w", err)
		}
		if replaced > 0 {
			is.log.Info("Replaced pending invite", "project_id", projectID, "replaced", replaced)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	view := &InviteView{ProjectInvite: invite, ProjectName: project.Name, AcceptURL: is.acceptURL(token)}
	is.sendInviteMail(ctx, actorID, view)
	return view, nil
}

func (is *inviteService) checkMemberLimit(ctx context.Context, dbc dbctx.Context, project *types.Project, now time.Time) error {
	plan, _, err := is.billing.EffectivePlan(ctx, project.OwnerUserID)
	if err != nil {
		return err
	}
	if plan.MaxMembersPerProject < 0 {
		return nil
	}
	members, err := is.memberRepo.CountByProject(dbc, project.ID)
	if err != nil {
		return fmt.Errorf("count members: %w", err)
	}
	pending, err := is.inviteRepo.CountPendingByProject(dbc, project.ID, now)
	if err != nil {
		return fmt.Errorf("count invites: %w", err)
	}
	if !billing.WithinLimit(int(members+pending), plan.MaxMembersPerProject) {
		return apierr.Newf(http.StatusForbidden, "member_limit_reached", "the %s plan allows %d members per project", plan.Name, plan.MaxMembersPerProject)
	}
	return nil
}

func (is *inviteService) sendInviteMail(ctx context.Context, actorID uuid.UUID, view *InviteView) {
	inviter := "A teammate"
	if users, err := is.userRepo.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{actorID}); err == nil && len(users) > 0 {
		inviter = strings.TrimSpace(users[0].FirstName + " " + users[0].LastName)
	}
	err := is.mailer.SendInvite(ctx, InviteMail{
		To:          view.Email,
		ProjectName: view.ProjectName,
		InviterName: inviter,
		Role:        string(view.Role),
		AcceptURL:   view.AcceptURL,
	})
	if err != nil {
		is.log.Warn("Invite email failed; invite still created", "invite_id", view.ID, "error", err)
	}
}

func (is *inviteService) ListByProject(ctx context.Context, projectID, actorID uuid.UUID) ([]*types.ProjectInvite, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if _, _, err := authorizeProject(dbc, is.projectRepo, is.memberRepo, projectID, actorID, types.RoleOwner); err != nil {
		return nil, err
	}
	return is.inviteRepo.ListPendingByProject(dbc, projectID, is.now())
}

func (is *inviteService) Revoke(ctx context.Context, projectID, actorID, inviteID uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}
	if _, _, err := authorizeProject(dbc, is.projectRepo, is.memberRepo, projectID, actorID, types.RoleOwner); err != nil {
		return err
	}
	invite, err := is.inviteRepo.GetByID(dbc, inviteID)
	if err != nil {
		return err
	}
	if invite == nil || invite.ProjectID != projectID {
		return apierr.NotFound("invite")
	}
	ok, err := is.inviteRepo.Revoke(dbc, inviteID, is.now())
	if err != nil {
		return err
	}
	if !ok {
		return apierr.Conflict("invite_not_pending", "invite is no longer pending")
	}
	return nil
}

func (is *inviteService) ListMine(ctx context.Context, userID uuid.UUID) ([]*InviteView, error) {
	dbc := dbctx.Context{Ctx: ctx}
	users, err := is.userRepo.GetByIDs(dbc, []uuid.UUID{userID})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, apierr.NotFound("user")
	}
	invites, err := is.inviteRepo.ListPendingByEmail(dbc, users[0].Email, is.now())
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(invites))
	for _, inv := range invites {
		ids = append(ids, inv.ProjectID)
	}
	projects, err := is.projectRepo.GetByIDs(dbc, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(projects))
	for _, p := range projects {
		names[p.ID] = p.Name
	}
	out := make([]*InviteView, 0, len(invites))
	for _, inv := range invites {
		name, ok := names[inv.ProjectID]
		if !ok {
			continue
		}
		out = append(out, &InviteView{ProjectInvite: inv, ProjectName: name})
	}
	return out, nil
}

func inviteGone(code, msg string) error {
	return apierr.Newf(http.StatusGone, code, "%s", msg)
}

// Claim accepts an invite for userID. Claiming an invite the same user
// already accepted succeeds again without side effects.
func (is *inviteService) Claim(ctx context.Context, token string, userID uuid.UUID) (*ProjectView, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apierr.Invalid("token is required")
	}
	var (
		view   *ProjectView
		joined bool
	)
	err := is.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		invite, err := is.inviteRepo.GetByTokenHash(dbc, hashInviteToken(token))
		if err != nil {
			return err
		}
		if invite == nil {
			return apierr.NotFound("invite")
		}
		now := is.now()
		switch {
		case invite.RevokedAt != nil:
			return inviteGone("invite_revoked", "invite was revoked")
		case invite.AcceptedAt != nil && invite.AcceptedBy != nil && *invite.AcceptedBy == userID:
			project, member, err := authorizeProject(dbc, is.projectRepo, is.memberRepo, invite.ProjectID, userID, types.RoleViewer)
			if err != nil {
				return err
			}
			view = &ProjectView{Project: project, Role: member.Role}
			return nil
		case invite.AcceptedAt != nil:
			return inviteGone("invite_used", "invite was already used")
		case !now.Before(invite.ExpiresAt):
			return inviteGone("invite_expired", "invite has expired")
		}

		users, err := is.userRepo.GetByIDs(dbc, []uuid.UUID{userID})
		if err != nil {
			return err
		}
		if len(users) == 0 {
			return apierr.NotFound("user")
		}
		if !strings.EqualFold(users[0].Email, invite.Email) {
			return apierr.New(http.StatusForbidden, "invite_email_mismatch", fmt.Errorf("invite was sent to a different email"))
		}
		project, err := is.projectRepo.GetByID(dbc, invite.ProjectID)
		if err != nil {
			return err
		}
		if project == nil {
			return apierr.NotFound("project")
		}

		role := invite.Role
		member, err := is.memberRepo.Get(dbc, project.ID, userID)
		if err != nil {
			return err
		}
		if member != nil {
			role = types.MaxRole(member.Role, invite.Role)
			if role != member.Role {
				if err := is.memberRepo.UpdateRole(dbc, project.ID, userID, role); err != nil {
					return err
				}
			}
		} else {
			if _, err := is.memberRepo.Create(dbc, []*types.ProjectMember{{ProjectID: project.ID, UserID: userID, Role: role}}); err != nil {
				return fmt.Errorf("create membership: %w", err)
			}
			joined = true
		}
		ok, err := is.inviteRepo.MarkAccepted(dbc, invite.ID, userID, now)
		if err != nil {
			return err
		}
		if !ok {
			return inviteGone("invite_used", "invite was already used")
		}
		view = &ProjectView{Project: project, Role: role}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if joined {
		is.notify.ProjectMemberJoined(view.ID, userID, view.Role)
	}
	is.log.Info("Invite claimed", "project_id", view.ID, "user_id", userID, "role", view.Role)
	return view, nil
}

func (is *inviteService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := is.inviteRepo.DeleteExpiredBefore(dbctx.Context{Ctx: ctx}, is.now().Add(-inviteRetention))
	if err != nil {
		return 0, fmt.Errorf("sweep invites: %w", err)
	}
	if n > 0 {
		is.log.Info("Swept expired invites", "deleted", n)
	}
	return n, nil
}
