package services

import (
	"context"
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
	"github.com/yungbote/inkwell-backend/internal/realtime"
)

const maxProjectNameLength = 120

// ChannelRevoker drops live SSE subscriptions; *realtime.SSEHub satisfies it.
type ChannelRevoker interface {
	RemoveUserFromChannel(userID uuid.UUID, channel string)
	RemoveChannelForAll(channel string)
}

type ProjectView struct {
	*types.Project
	Role types.Role `json:"role"`
}

type MemberView struct {
	UserID    uuid.UUID  `json:"user_id"`
	Role      types.Role `json:"role"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	AvatarURL string     `json:"avatar_url"`
	JoinedAt  time.Time  `json:"joined_at"`
}

type ProjectUpdate struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type ProjectService interface {
	// Authorize loads the project and the caller's membership. Non-members get
	// not_found so project existence does not leak; weaker roles get forbidden.
	Authorize(ctx context.Context, projectID, userID uuid.UUID, min types.Role) (*types.Project, *types.ProjectMember, error)
	Create(ctx context.Context, userID uuid.UUID, name, description string) (*ProjectView, error)
	List(ctx context.Context, userID uuid.UUID) ([]*ProjectView, error)
	Get(ctx context.Context, projectID, userID uuid.UUID) (*ProjectView, error)
	Update(ctx context.Context, projectID, userID uuid.UUID, in ProjectUpdate) (*ProjectView, error)
	Delete(ctx context.Context, projectID, userID uuid.UUID) error
	ListMembers(ctx context.Context, projectID, userID uuid.UUID) ([]*MemberView, error)
	UpdateMemberRole(ctx context.Context, projectID, actorID, targetID uuid.UUID, role types.Role) error
	RemoveMember(ctx context.Context, projectID, actorID, targetID uuid.UUID) error
	TransferOwnership(ctx context.Context, projectID, actorID, newOwnerID uuid.UUID) error
}

type projectService struct {
	db           *gorm.DB
	log          *logger.Logger
	billing      BillingService
	projectRepo  repos.ProjectRepo
	memberRepo   repos.ProjectMemberRepo
	inviteRepo   repos.ProjectInviteRepo
	templateRepo repos.TemplateRepo
	assetRepo    repos.AssetRepo
	userRepo     repos.UserRepo
	imaging      ImagingService
	notify       EventNotifier
	channels     ChannelRevoker
	now          func() time.Time
}

func NewProjectService(
	db *gorm.DB,
	log *logger.Logger,
	billingService BillingService,
	projectRepo repos.ProjectRepo,
	memberRepo repos.ProjectMemberRepo,
	inviteRepo repos.ProjectInviteRepo,
	templateRepo repos.TemplateRepo,
	assetRepo repos.AssetRepo,
	userRepo repos.UserRepo,
	imaging ImagingService,
	notify EventNotifier,
	channels ChannelRevoker,
) ProjectService {
	return &projectService{
		db:           db,
		log:          log.With("service", "ProjectService"),
		billing:      billingService,
		projectRepo:  projectRepo,
		memberRepo:   memberRepo,
		inviteRepo:   inviteRepo,
		templateRepo: templateRepo,
		assetRepo:    assetRepo,
		userRepo:     userRepo,
		imaging:      imaging,
		notify:       notify,
		channels:     channels,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (ps *projectService) authorize(dbc dbctx.Context, projectID, userID uuid.UUID, min types.Role) (*types.Project, *types.ProjectMember, error) {
	return authorizeProject(dbc, ps.projectRepo, ps.memberRepo, projectID, userID, min)
}

func authorizeProject(dbc dbctx.Context, projectRepo repos.ProjectRepo, memberRepo repos.ProjectMemberRepo, projectID, userID uuid.UUID, min types.Role) (*types.Project, *types.ProjectMember, error) {
	project, err := projectRepo.GetByID(dbc, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("load project: %w", err)
	}
	if project == nil {
		return nil, nil, apierr.NotFound("project")
	}
	member, err := memberRepo.Get(dbc, projectID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load membership: %w", err)
	}
	if member == nil {
		return nil, nil, apierr.NotFound("project")
	}
	if !member.Role.AtLeast(min) {
		return nil, nil, apierr.Forbidden(fmt.Sprintf("requires %s role", min))
	}
	return project, member, nil
}

func (ps *projectService) Authorize(ctx context.Context, projectID, userID uuid.UUID, min types.Role) (*types.Project, *types.ProjectMember, error) {
	return ps.authorize(dbctx.Context{Ctx: ctx}, projectID, userID, min)
}

func cleanProjectName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apierr.Invalid("name is required")
	}
	if len(name) > maxProjectNameLength {
		return "", apierr.Invalid(fmt.Sprintf("name must be at most %d characters", maxProjectNameLength))
	}
	return name, nil
}

func (ps *projectService) Create(ctx context.Context, userID uuid.UUID, name, description string) (*ProjectView, error) {
	name, err := cleanProjectName(name)
	if err != nil {
		return nil, err
	}
	plan, _, err := ps.billing.EffectivePlan(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := ps.checkProjectLimit(dbctx.Context{Ctx: ctx}, userID, plan); err != nil {
		return nil, err
	}

	project := &types.Project{
		ID:          uuid.New(),
		OwnerUserID: userID,
		Name:        name,
		Description: strings.TrimSpace(description),
	}
	if ps.imaging != nil {
		if err := ps.imaging.EnsureProjectBadge(ctx, project); err != nil {
			ps.log.Warn("Badge render failed; continuing without badge", "project_id", project.ID, "error", err)
		}
	}
	err = ps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		// Recount under the subscription lock so concurrent creates
		// cannot both pass the limit.
		locked, err := ps.billing.LockPlan(dbc, userID)
		if err != nil {
			return err
		}
		if err := ps.checkProjectLimit(dbc, userID, locked); err != nil {
			return err
		}
		if _, err := ps.projectRepo.Create(dbc, []*types.Project{project}); err != nil {
			return fmt.Errorf("create project: %w", err)
		}
		_, err = ps.memberRepo.Create(dbc, []*types.ProjectMember{{ProjectID: project.ID, UserID: userID, Role: types.RoleOwner}})
		if err != nil {
			return fmt.Errorf("create owner membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ps.log.Info("Project created", "project_id", project.ID, "user_id", userID)
	return &ProjectView{Project: project, Role: types.RoleOwner}, nil
}

func (ps *projectService) checkProjectLimit(dbc dbctx.Context, userID uuid.UUID, plan billing.Plan) error {
	owned, err := ps.projectRepo.CountOwnedBy(dbc, userID)
	if err != nil {
		return fmt.Errorf("count projects: %w", err)
	}
	if !billing.WithinLimit(int(owned), plan.MaxProjects) {
		return apierr.Newf(http.StatusForbidden, "project_limit_reached", "the %s plan allows %d projects", plan.Name, plan.MaxProjects)
	}
	return nil
}

func (ps *projectService) List(ctx context.Context, userID uuid.UUID) ([]*ProjectView, error) {
	dbc := dbctx.Context{Ctx: ctx}
	memberships, err := ps.memberRepo.ListByUser(dbc, userID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	roles := make(map[uuid.UUID]types.Role, len(memberships))
	ids := make([]uuid.UUID, 0, len(memberships))
	for _, m := range memberships {
		roles[m.ProjectID] = m.Role
		ids = append(ids, m.ProjectID)
	}
	projects, err := ps.projectRepo.GetByIDs(dbc, ids)
	if err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}
	out := make([]*ProjectView, 0, len(projects))
	for _, p := range projects {
		out = append(out, &ProjectView{Project: p, Role: roles[p.ID]})
	}
	return out, nil
}

func (ps *projectService) Get(ctx context.Context, projectID, userID uuid.UUID) (*ProjectView, error) {
	project, member, err := ps.Authorize(ctx, projectID, userID, types.RoleViewer)
	if err != nil {
		return nil, err
	}
	return &ProjectView{Project: project, Role: member.Role}, nil
}

func (ps *projectService) Update(ctx context.Context, projectID, userID uuid.UUID, in ProjectUpdate) (*ProjectView, error) {
	project, member, err := ps.Authorize(ctx, projectID, userID, types.RoleEditor)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if in.Name != nil {
		name, err := cleanProjectName(*in.Name)
		if err != nil {
			return nil, err
		}
		if name != project.Name {
			project.Name = name
			updates["name"] = name
			if ps.imaging != nil {
				if err := ps.imaging.EnsureProjectBadge(ctx, project); err != nil {
					ps.log.Warn("Badge re-render failed", "project_id", project.ID, "error", err)
				} else {
					updates["badge_key"] = project.BadgeKey
					updates["badge_url"] = project.BadgeURL
				}
			}
		}
	}
	if in.Description != nil {
		project.Description = strings.TrimSpace(*in.Description)
		updates["description"] = project.Description
	}
	if err := ps.projectRepo.UpdateFields(dbctx.Context{Ctx: ctx}, projectID, updates); err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}
	return &ProjectView{Project: project, Role: member.Role}, nil
}

// Delete soft deletes the project and removes its members, pending invites
// and templates. Assets survive, detached from the project.
func (ps *projectService) Delete(ctx context.Context, projectID, userID uuid.UUID) error {
	var members []*types.ProjectMember
	err := ps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, _, err := ps.authorize(dbc, projectID, userID, types.RoleOwner); err != nil {
			return err
		}
		var err error
		if members, err = ps.memberRepo.ListByProject(dbc, projectID); err != nil {
			return err
		}
		if err := ps.inviteRepo.RevokePendingByProject(dbc, projectID, ps.now()); err != nil {
			return fmt.Errorf("revoke invites: %w", err)
		}
		if err := ps.templateRepo.DeleteByProject(dbc, projectID); err != nil {
			return fmt.Errorf("delete templates: %w", err)
		}
		if err := ps.assetRepo.DetachProject(dbc, projectID); err != nil {
			return fmt.Errorf("detach assets: %w", err)
		}
		if err := ps.memberRepo.DeleteByProject(dbc, projectID); err != nil {
			return fmt.Errorf("delete members: %w", err)
		}
		return ps.projectRepo.SoftDelete(dbc, projectID)
	})
	if err != nil {
		return err
	}
	for _, m := range members {
		ps.notify.ProjectMemberRemoved(projectID, m.UserID)
	}
	if ps.channels != nil {
		ps.channels.RemoveChannelForAll(realtime.ProjectChannel(projectID))
	}
	ps.log.Info("Project deleted", "project_id", projectID, "user_id", userID, "members", len(members))
	return nil
}

func (ps *projectService) ListMembers(ctx context.Context, projectID, userID uuid.UUID) ([]*MemberView, error) {
	if _, _, err := ps.Authorize(ctx, projectID, userID, types.RoleViewer); err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	members, err := ps.memberRepo.ListByProject(dbc, projectID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	users, err := ps.userRepo.GetByIDs(dbc, ids)
	if err != nil {
		return nil, fmt.Errorf("load member users: %w", err)
	}
	byID := make(map[uuid.UUID]*types.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	out := make([]*MemberView, 0, len(members))
	for _, m := range members {
		v := &MemberView{UserID: m.UserID, Role: m.Role, JoinedAt: m.CreatedAt}
		if u := byID[m.UserID]; u != nil {
			v.Email, v.FirstName, v.LastName, v.AvatarURL = u.Email, u.FirstName, u.LastName, u.AvatarURL
		}
		out = append(out, v)
	}
	return out, nil
}

func (ps *projectService) UpdateMemberRole(ctx context.Context, projectID, actorID, targetID uuid.UUID, role types.Role) error {
	if !role.Invitable() {
		return apierr.Invalid("role must be editor or viewer")
	}
	return ps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, _, err := ps.authorize(dbc, projectID, actorID, types.RoleOwner); err != nil {
			return err
		}
		target, err := ps.memberRepo.Get(dbc, projectID, targetID)
		if err != nil {
			return err
		}
		if target == nil {
			return apierr.NotFound("member")
		}
		if target.Role == types.RoleOwner {
			return apierr.Invalid("the owner's role changes only through ownership transfer")
		}
		return ps.memberRepo.UpdateRole(dbc, projectID, targetID, role)
	})
}

func (ps *projectService) RemoveMember(ctx context.Context, projectID, actorID, targetID uuid.UUID) error {
	err := ps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		_, actor, err := ps.authorize(dbc, projectID, actorID, types.RoleViewer)
		if err != nil {
			return err
		}
		if actorID != targetID && actor.Role != types.RoleOwner {
			return apierr.Forbidden("only the owner can remove other members")
		}
		target, err := ps.memberRepo.Get(dbc, projectID, targetID)
		if err != nil {
			return err
		}
		if target == nil {
			return apierr.NotFound("member")
		}
		if target.Role == types.RoleOwner {
			return apierr.Invalid("the owner cannot be removed; transfer ownership first")
		}
		_, err = ps.memberRepo.Delete(dbc, projectID, targetID)
		return err
	})
	if err != nil {
		return err
	}
	ps.notify.ProjectMemberRemoved(projectID, targetID)
	if ps.channels != nil {
		ps.channels.RemoveUserFromChannel(targetID, realtime.ProjectChannel(projectID))
	}
	return nil
}

// TransferOwnership promotes an existing member to owner and demotes the
// previous owner to editor in one transaction.
func (ps *projectService) TransferOwnership(ctx context.Context, projectID, actorID, newOwnerID uuid.UUID) error {
	if actorID == newOwnerID {
		return apierr.Invalid("already the owner")
	}
	err := ps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, _, err := ps.authorize(dbc, projectID, actorID, types.RoleOwner); err != nil {
			return err
		}
		target, err := ps.memberRepo.Get(dbc, projectID, newOwnerID)
		if err != nil {
			return err
		}
		if target == nil {
			return apierr.Invalid("new owner must already be a member")
		}
		if err := ps.memberRepo.UpdateRole(dbc, projectID, actorID, types.RoleEditor); err != nil {
			return err
		}
		if err := ps.memberRepo.UpdateRole(dbc, projectID, newOwnerID, types.RoleOwner); err != nil {
			return err
		}
		return ps.projectRepo.UpdateFields(dbc, projectID, map[string]interface{}{"owner_user_id": newOwnerID})
	})
	if err != nil {
		return err
	}
	ps.log.Info("Project ownership transferred", "project_id", projectID, "from", actorID, "to", newOwnerID)
	return nil
}
