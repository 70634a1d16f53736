package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/domain/billing"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *types.User {
	tb.Helper()
	u := &types.User{
		ID:        uuid.New(),
		Email:     email,
		Password:  "pw",
		FirstName: "A",
		LastName:  "B",
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedSubscription(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, planKey, status string) *types.Subscription {
	tb.Helper()
	s := &types.Subscription{
		UserID:    userID,
		PlanKey:   planKey,
		Status:    status,
		StartedAt: time.Now().UTC(),
	}
	if status == billing.SubscriptionCanceled {
		now := time.Now().UTC()
		s.CanceledAt = &now
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed subscription: %v", err)
	}
	return s
}

// SeedProject creates a project and its owner membership.
func SeedProject(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerID uuid.UUID, name string) *types.Project {
	tb.Helper()
	p := &types.Project{OwnerUserID: ownerID, Name: name}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed project: %v", err)
	}
	SeedMember(tb, ctx, tx, p.ID, ownerID, types.RoleOwner)
	return p
}

func SeedMember(tb testing.TB, ctx context.Context, tx *gorm.DB, projectID, userID uuid.UUID, role types.Role) *types.ProjectMember {
	tb.Helper()
	m := &types.ProjectMember{ProjectID: projectID, UserID: userID, Role: role}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed member: %v", err)
	}
	return m
}
