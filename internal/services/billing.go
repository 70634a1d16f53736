package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/inkwell-backend/internal/billing/plans"
	"github.com/yungbote/inkwell-backend/internal/data/repos"
	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/domain/billing"
	"github.com/yungbote/inkwell-backend/internal/observability"
	"github.com/yungbote/inkwell-backend/internal/platform/apierr"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
	"github.com/yungbote/inkwell-backend/internal/platform/stripe"
)

// SubscriptionView is the caller-facing billing state.
type SubscriptionView struct {
	Plan             billing.Plan `json:"plan"`
	Status           string       `json:"status"`
	Entitled         bool         `json:"entitled"`
	HasBillingPortal bool         `json:"has_billing_portal"`
	CurrentPeriodEnd *time.Time   `json:"current_period_end,omitempty"`
	CanceledAt       *time.Time   `json:"canceled_at,omitempty"`
}

type BillingService interface {
	Catalog() *plans.Catalog
	// PlanFor resolves the plan a subscription grants, falling back to the
	// default plan for missing or lapsed subscriptions.
	PlanFor(sub *types.Subscription) billing.Plan
	EffectivePlan(ctx context.Context, userID uuid.UUID) (billing.Plan, *types.Subscription, error)
	// LockPlan locks the user's subscription row for the rest of dbc's
	// transaction and returns the plan it grants.
	LockPlan(dbc dbctx.Context, userID uuid.UUID) (billing.Plan, error)
	Subscription(ctx context.Context, userID uuid.UUID) (*SubscriptionView, error)
	SyncPlans(ctx context.Context) error
	CreateCheckout(ctx context.Context, userID uuid.UUID, planKey string) (string, error)
	CreatePortal(ctx context.Context, userID uuid.UUID) (string, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	SetPlan(ctx context.Context, userID uuid.UUID, planKey string) error
}

type billingService struct {
	db         *gorm.DB
	log        *logger.Logger
	catalog    *plans.Catalog
	userRepo   repos.UserRepo
	planRepo   repos.PlanRepo
	subRepo    repos.SubscriptionRepo
	eventRepo  repos.BillingEventRepo
	stripe     stripe.Client
	notify     EventNotifier
	appBaseURL string
	now        func() time.Time
}

func NewBillingService(
	db *gorm.DB,
	log *logger.Logger,
	catalog *plans.Catalog,
	userRepo repos.UserRepo,
	planRepo repos.PlanRepo,
	subRepo repos.SubscriptionRepo,
	eventRepo repos.BillingEventRepo,
	stripeClient stripe.Client,
	notify EventNotifier,
	appBaseURL string,
) BillingService {
	return &billingService{
		db:         db,
		log:        log.With("service", "BillingService"),
		catalog:    catalog,
		userRepo:   userRepo,
		planRepo:   planRepo,
		subRepo:    subRepo,
		eventRepo:  eventRepo,
		stripe:     stripeClient,
		notify:     notify,
		appBaseURL: strings.TrimRight(appBaseURL, "/"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (bs *billingService) Catalog() *plans.Catalog { return bs.catalog }

func (bs *billingService) PlanFor(sub *types.Subscription) billing.Plan {
	if !sub.Entitled() {
		return bs.catalog.Default()
	}
	p, ok := bs.catalog.Get(sub.PlanKey)
	if !ok {
		bs.log.Warn("subscription references unknown plan; using default", "plan", sub.PlanKey, "user_id", sub.UserID)
		return bs.catalog.Default()
	}
	return p
}

func (bs *billingService) EffectivePlan(ctx context.Context, userID uuid.UUID) (billing.Plan, *types.Subscription, error) {
	sub, err := bs.subRepo.GetByUserID(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		return billing.Plan{}, nil, fmt.Errorf("load subscription: %w", err)
	}
	return bs.PlanFor(sub), sub, nil
}

func (bs *billingService) LockPlan(dbc dbctx.Context, userID uuid.UUID) (billing.Plan, error) {
	sub, err := bs.subRepo.LockByUserID(dbc, userID)
	if err != nil {
		return billing.Plan{}, fmt.Errorf("lock subscription: %w", err)
	}
	return bs.PlanFor(sub), nil
}

func (bs *billingService) Subscription(ctx context.Context, userID uuid.UUID) (*SubscriptionView, error) {
	plan, sub, err := bs.EffectivePlan(ctx, userID)
	if err != nil {
		return nil, err
	}
	view := &SubscriptionView{Plan: plan, Status: billing.SubscriptionActive, Entitled: true}
	if sub != nil {
		view.Status = sub.Status
		view.Entitled = sub.Entitled()
		view.HasBillingPortal = sub.StripeCustomerID != ""
		view.CurrentPeriodEnd = sub.CurrentPeriodEnd
		view.CanceledAt = sub.CanceledAt
	}
	return view, nil
}

func (bs *billingService) SyncPlans(ctx context.Context) error {
	list := bs.catalog.List()
	rows := make([]*types.Plan, 0, len(list))
	for i := range list {
		p := list[i]
		rows = append(rows, &p)
	}
	if err := bs.planRepo.Upsert(dbctx.Context{Ctx: ctx}, rows); err != nil {
		return fmt.Errorf("upsert plans: %w", err)
	}
	bs.log.Info("Plan catalog synced", "plans", len(rows))
	return nil
}

func (bs *billingService) requireStripe() error {
	if bs.stripe == nil {
		return apierr.New(http.StatusServiceUnavailable, "billing_unavailable", fmt.Errorf("payments are not configured"))
	}
	return nil
}

func (bs *billingService) CreateCheckout(ctx context.Context, userID uuid.UUID, planKey string) (string, error) {
	plan, ok := bs.catalog.Get(strings.TrimSpace(planKey))
	if !ok {
		return "", apierr.Invalid("unknown plan")
	}
	if !plan.IsPaid() || plan.StripePriceID == "" {
		return "", apierr.Invalid("plan is not purchasable")
	}
	if err := bs.requireStripe(); err != nil {
		return "", err
	}
	users, err := bs.userRepo.GetByIDs(dbctx.Context{Ctx: ctx}, []uuid.UUID{userID})
	if err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}
	if len(users) == 0 {
		return "", apierr.NotFound("user")
	}
	sub, err := bs.subRepo.GetByUserID(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		return "", fmt.Errorf("load subscription: %w", err)
	}
	req := stripe.CheckoutRequest{
		UserID:  userID.String(),
		Email:   users[0].Email,
		PriceID: plan.StripePriceID,
		PlanKey: plan.Key,
	}
	if sub != nil {
		req.CustomerID = sub.StripeCustomerID
	}
	session, err := bs.stripe.CreateCheckoutSession(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return session.URL, nil
}

func (bs *billingService) CreatePortal(ctx context.Context, userID uuid.UUID) (string, error) {
	if err := bs.requireStripe(); err != nil {
		return "", err
	}
	sub, err := bs.subRepo.GetByUserID(dbctx.Context{Ctx: ctx}, userID)
	if err != nil {
		return "", fmt.Errorf("load subscription: %w", err)
	}
	if sub == nil || sub.StripeCustomerID == "" {
		return "", apierr.Invalid("no billing account for this user")
	}
	session, err := bs.stripe.CreatePortalSession(ctx, sub.StripeCustomerID, bs.appBaseURL+"/billing")
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return session.URL, nil
}

type subscriptionChange struct {
	userID  uuid.UUID
	planKey string
	status  string
}

// HandleWebhook applies a verified Stripe event. The event id is recorded in
// the same transaction as its effects, so a failed apply is retried by Stripe
// and a redelivered event is skipped.
func (bs *billingService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if err := bs.requireStripe(); err != nil {
		return err
	}
	ev, err := bs.stripe.ParseWebhook(payload, signature)
	if errors.Is(err, stripe.ErrWebhookSecretMissing) {
		return apierr.New(http.StatusServiceUnavailable, "billing_unavailable", err)
	}
	if err != nil {
		observability.Current().ObserveWebhook("unknown", "invalid")
		return apierr.New(http.StatusBadRequest, "invalid_signature", err)
	}

	var change *subscriptionChange
	outcome := "applied"
	err = bs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		fresh, err := bs.eventRepo.MarkProcessed(dbc, ev.ID, ev.Type)
		if err != nil {
			return fmt.Errorf("record event: %w", err)
		}
		if !fresh {
			outcome = "duplicate"
			return nil
		}
		switch ev.Type {
		case stripe.EventCheckoutCompleted:
			change, err = bs.applyCheckout(dbc, ev.Checkout)
		case stripe.EventSubscriptionCreated, stripe.EventSubscriptionUpdated:
			change, err = bs.applySubscription(dbc, ev.Subscription, false)
		case stripe.EventSubscriptionDeleted:
			change, err = bs.applySubscription(dbc, ev.Subscription, true)
		default:
			outcome = "ignored"
		}
		return err
	})
	if err != nil {
		observability.Current().ObserveWebhook(ev.Type, "error")
		return err
	}
	if change == nil && outcome == "applied" {
		outcome = "ignored"
	}
	observability.Current().ObserveWebhook(ev.Type, outcome)
	if change != nil {
		bs.log.Info("Subscription changed", "user_id", change.userID, "plan", change.planKey, "status", change.status, "event", ev.Type)
		bs.notify.SubscriptionChanged(change.userID, change.planKey, change.status)
	}
	return nil
}

func (bs *billingService) applyCheckout(dbc dbctx.Context, c *stripe.CheckoutCompleted) (*subscriptionChange, error) {
	if c == nil {
		return nil, nil
	}
	userID, err := uuid.Parse(c.UserID)
	if err != nil {
		bs.log.Warn("checkout without a valid client_reference_id", "session", c.SessionID)
		return nil, nil
	}
	plan, ok := bs.catalog.Get(c.PlanKey)
	if !ok || !plan.IsPaid() {
		bs.log.Warn("checkout for unknown plan ignored", "plan", c.PlanKey, "session", c.SessionID)
		return nil, nil
	}
	now := bs.now()
	sub, err := bs.subRepo.LockByUserID(dbc, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		_, err = bs.subRepo.Create(dbc, []*types.Subscription{{
			UserID:               userID,
			PlanKey:              plan.Key,
			Status:               billing.SubscriptionActive,
			StripeCustomerID:     c.CustomerID,
			StripeSubscriptionID: c.SubscriptionID,
			StartedAt:            now,
		}})
	} else {
		err = bs.subRepo.UpdateFields(dbc, sub.ID, map[string]interface{}{
			"plan_key":               plan.Key,
			"status":                 billing.SubscriptionActive,
			"stripe_customer_id":     c.CustomerID,
			"stripe_subscription_id": c.SubscriptionID,
			"started_at":             now,
			"canceled_at":            nil,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("activate subscription: %w", err)
	}
	return &subscriptionChange{userID: userID, planKey: plan.Key, status: billing.SubscriptionActive}, nil
}

func (bs *billingService) findSubscription(dbc dbctx.Context, s *stripe.SubscriptionState) (*types.Subscription, error) {
	if s.ID != "" {
		sub, err := bs.subRepo.GetByStripeSubscriptionID(dbc, s.ID)
		if err != nil || sub != nil {
			return sub, err
		}
	}
	if s.CustomerID != "" {
		sub, err := bs.subRepo.GetByStripeCustomerID(dbc, s.CustomerID)
		if err != nil || sub != nil {
			return sub, err
		}
	}
	if userID, err := uuid.Parse(s.UserID); err == nil {
		return bs.subRepo.GetByUserID(dbc, userID)
	}
	return nil, nil
}

func (bs *billingService) applySubscription(dbc dbctx.Context, s *stripe.SubscriptionState, deleted bool) (*subscriptionChange, error) {
	if s == nil {
		return nil, nil
	}
	sub, err := bs.findSubscription(dbc, s)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		bs.log.Warn("subscription event for unknown customer ignored", "stripe_subscription", s.ID)
		return nil, nil
	}
	now := bs.now()
	updates := map[string]interface{}{
		"stripe_subscription_id": s.ID,
		"current_period_end":     s.CurrentPeriodEnd,
	}
	if s.CustomerID != "" {
		updates["stripe_customer_id"] = s.CustomerID
	}

	planKey := sub.PlanKey
	status := stripeStatus(s.Status)
	if deleted {
		status = billing.SubscriptionCanceled
		canceledAt := now
		if s.CanceledAt != nil {
			canceledAt = s.CanceledAt.UTC()
		}
		updates["canceled_at"] = canceledAt
	} else {
		plan, ok := bs.catalog.ByPriceID(s.PriceID)
		if !ok {
			bs.log.Warn("subscription event with unknown price ignored", "price", s.PriceID, "stripe_subscription", s.ID)
			return nil, nil
		}
		planKey = plan.Key
		if status == billing.SubscriptionCanceled {
			if sub.CanceledAt == nil {
				updates["canceled_at"] = now
			}
		} else {
			updates["canceled_at"] = nil
		}
	}
	updates["plan_key"] = planKey
	updates["status"] = status

	if err := bs.subRepo.UpdateFields(dbc, sub.ID, updates); err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}
	// A canceled row keeps its paid plan_key so churn stays attributable;
	// subscribers are told about the plan they actually fall back to.
	if status == billing.SubscriptionCanceled {
		planKey = bs.catalog.Default().Key
	}
	return &subscriptionChange{userID: sub.UserID, planKey: planKey, status: status}, nil
}

// stripeStatus folds Stripe's lifecycle states into the four we track.
// Unpaid, paused and incomplete subscriptions grant nothing.
func stripeStatus(s string) string {
	switch s {
	case billing.SubscriptionActive, billing.SubscriptionTrialing, billing.SubscriptionPastDue:
		return s
	default:
		return billing.SubscriptionCanceled
	}
}

func (bs *billingService) SetPlan(ctx context.Context, userID uuid.UUID, planKey string) error {
	plan, ok := bs.catalog.Get(strings.TrimSpace(planKey))
	if !ok {
		return apierr.Invalid("unknown plan")
	}
	err := bs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		users, err := bs.userRepo.GetByIDs(dbc, []uuid.UUID{userID})
		if err != nil {
			return err
		}
		if len(users) == 0 {
			return apierr.NotFound("user")
		}
		sub, err := bs.subRepo.LockByUserID(dbc, userID)
		if err != nil {
			return err
		}
		if sub == nil {
			_, err = bs.subRepo.Create(dbc, []*types.Subscription{{
				UserID:    userID,
				PlanKey:   plan.Key,
				Status:    billing.SubscriptionActive,
				StartedAt: bs.now(),
			}})
			return err
		}
		return bs.subRepo.UpdateFields(dbc, sub.ID, map[string]interface{}{
			"plan_key":    plan.Key,
			"status":      billing.SubscriptionActive,
			"canceled_at": nil,
		})
	})
	if err != nil {
		return err
	}
	bs.log.Info("Plan set by admin", "user_id", userID, "plan", plan.Key)
	bs.notify.SubscriptionChanged(userID, plan.Key, billing.SubscriptionActive)
	return nil
}
