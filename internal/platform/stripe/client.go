package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	stripego "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/yungbote/inkwell-backend/internal/platform/envutil"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

var ErrWebhookSecretMissing = errors.New("stripe: webhook secret not configured")

type Client interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*Session, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*Session, error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

type Config struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

func ConfigFromEnv() Config {
	base := strings.TrimRight(envutil.String("APP_BASE_URL", "http://localhost:3000"), "/")
	return Config{
		SecretKey:     envutil.String("STRIPE_SECRET_KEY", ""),
		WebhookSecret: envutil.String("STRIPE_WEBHOOK_SECRET", ""),
		SuccessURL:    envutil.String("STRIPE_SUCCESS_URL", base+"/billing?checkout=success"),
		CancelURL:     envutil.String("STRIPE_CANCEL_URL", base+"/billing?checkout=canceled"),
	}
}

type CheckoutRequest struct {
	UserID     string
	Email      string
	CustomerID string
	PriceID    string
	PlanKey    string
}

type Session struct {
	ID  string
	URL string
}

// Event is the subset of a Stripe event the billing service consumes.
type Event struct {
	ID           string
	Type         string
	Checkout     *CheckoutCompleted
	Subscription *SubscriptionState
}

type CheckoutCompleted struct {
	SessionID      string
	UserID         string
	CustomerID     string
	SubscriptionID string
	PlanKey        string
}

type SubscriptionState struct {
	ID               string
	CustomerID       string
	UserID           string
	Status           string
	PriceID          string
	CurrentPeriodEnd *time.Time
	CanceledAt       *time.Time
}

type stripeClient struct {
	log *logger.Logger
	cfg Config
	api *client.API
}

func NewFromEnv(log *logger.Logger) (Client, error) {
	return New(log, ConfigFromEnv())
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("missing STRIPE_SECRET_KEY")
	}
	api := &client.API{}
	api.Init(cfg.SecretKey, nil)
	return &stripeClient{log: log.With("client", "StripeClient"), cfg: cfg, api: api}, nil
}

func (c *stripeClient) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*Session, error) {
	if req.PriceID == "" || req.UserID == "" {
		return nil, fmt.Errorf("stripe: price and user required")
	}
	params := &stripego.CheckoutSessionParams{
		Mode:              stripego.String(string(stripego.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripego.String(req.UserID),
		SuccessURL:        stripego.String(c.cfg.SuccessURL),
		CancelURL:         stripego.String(c.cfg.CancelURL),
		LineItems: []*stripego.CheckoutSessionLineItemParams{
			{Price: stripego.String(req.PriceID), Quantity: stripego.Int64(1)},
		},
		SubscriptionData: &stripego.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": req.UserID, "plan_key": req.PlanKey},
		},
	}
	params.Context = ctx
	params.AddMetadata("user_id", req.UserID)
	params.AddMetadata("plan_key", req.PlanKey)
	if req.CustomerID != "" {
		params.Customer = stripego.String(req.CustomerID)
	} else if req.Email != "" {
		params.CustomerEmail = stripego.String(req.Email)
	}
	s, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session: %w", err)
	}
	return &Session{ID: s.ID, URL: s.URL}, nil
}

func (c *stripeClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*Session, error) {
	if customerID == "" {
		return nil, fmt.Errorf("stripe: customer required")
	}
	params := &stripego.BillingPortalSessionParams{
		Customer:  stripego.String(customerID),
		ReturnURL: stripego.String(returnURL),
	}
	params.Context = ctx
	s, err := c.api.BillingPortalSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe portal session: %w", err)
	}
	return &Session{ID: s.ID, URL: s.URL}, nil
}

func (c *stripeClient) ParseWebhook(payload []byte, signature string) (*Event, error) {
	return ParseWebhook(c.cfg.WebhookSecret, payload, signature)
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event
// types billing reacts to. Other types come back with only ID and Type set.
func ParseWebhook(secret string, payload []byte, signature string) (*Event, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrWebhookSecretMissing
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, err
	}
	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data == nil {
		return out, nil
	}
	switch out.Type {
	case EventCheckoutCompleted:
		var s stripego.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		cc := &CheckoutCompleted{SessionID: s.ID, UserID: s.ClientReferenceID, PlanKey: s.Metadata["plan_key"]}
		if s.Customer != nil {
			cc.CustomerID = s.Customer.ID
		}
		if s.Subscription != nil {
			cc.SubscriptionID = s.Subscription.ID
		}
		if cc.UserID == "" {
			cc.UserID = s.Metadata["user_id"]
		}
		out.Checkout = cc
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var s stripego.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		out.Subscription = subscriptionState(&s)
	}
	return out, nil
}

func subscriptionState(s *stripego.Subscription) *SubscriptionState {
	st := &SubscriptionState{ID: s.ID, Status: string(s.Status), UserID: s.Metadata["user_id"]}
	if s.Customer != nil {
		st.CustomerID = s.Customer.ID
	}
	if s.Items != nil {
		for _, it := range s.Items.Data {
			if it != nil && it.Price != nil && it.Price.ID != "" {
				st.PriceID = it.Price.ID
				break
			}
		}
	}
	if s.CurrentPeriodEnd > 0 {
		t := time.Unix(s.CurrentPeriodEnd, 0).UTC()
		st.CurrentPeriodEnd = &t
	}
	if s.CanceledAt > 0 {
		t := time.Unix(s.CanceledAt, 0).UTC()
		st.CanceledAt = &t
	}
	return st
}
