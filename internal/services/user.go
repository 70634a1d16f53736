package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/inkwell-backend/internal/data/repos"
	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/apierr"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

// Me is the signed-in user's profile with plan and quota.
type Me struct {
	User         *types.User       `json:"user"`
	Subscription *SubscriptionView `json:"subscription"`
	Usage        *Usage            `json:"usage"`
}

type UserService interface {
	Me(ctx context.Context, userID uuid.UUID) (*Me, error)
}

type userService struct {
	log      *logger.Logger
	userRepo repos.UserRepo
	billing  BillingService
	usage    UsageService
}

func NewUserService(log *logger.Logger, userRepo repos.UserRepo, billingService BillingService, usageService UsageService) UserService {
	return &userService{
		log:      log.With("service", "UserService"),
		userRepo: userRepo,
		billing:  billingService,
		usage:    usageService,
	}
}

func (s *userService) Me(ctx context.Context, userID uuid.UUID) (*Me, error) {
	users, err := s.userRepo.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{userID})
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if len(users) == 0 {
		return nil, apierr.NotFound("user")
	}
	sub, err := s.billing.Subscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	usage, err := s.usage.Peek(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Me{User: users[0], Subscription: sub, Usage: usage}, nil
}
