package services

import (
	"testing"
	"time"

	"github.com/yungbote/inkwell-backend/internal/data/repos/testutil"
	"github.com/yungbote/inkwell-backend/internal/domain/billing"
	"github.com/yungbote/inkwell-backend/internal/platform/apierr"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/stripe"
	"github.com/yungbote/inkwell-backend/internal/realtime"
)

func TestEffectivePlan(t *testing.T) {
	env := newTestEnv(t)
	bs := env.billing(nil)

	tests := []struct {
		status string
		want   string
	}{
		{billing.SubscriptionActive, "creator"},
		{billing.SubscriptionTrialing, "creator"},
		{billing.SubscriptionPastDue, "creator"},
		{billing.SubscriptionCanceled, "free"},
	}
	for _, tc := range tests {
		t.Run(tc.status, func(t *testing.T) {
			u := testutil.SeedUser(t, env.ctx, env.db, tc.status+"@x.io")
			testutil.SeedSubscription(t, env.ctx, env.db, u.ID, "creator", tc.status)
			plan, _, err := bs.EffectivePlan(env.ctx, u.ID)
			if err != nil {
				t.Fatalf("EffectivePlan: %v", err)
			}
			if plan.Key != tc.want {
				t.Fatalf("plan: want=%s got=%s", tc.want, plan.Key)
			}
		})
	}

	nosub := testutil.SeedUser(t, env.ctx, env.db, "nosub@x.io")
	plan, sub, err := bs.EffectivePlan(env.ctx, nosub.ID)
	if err != nil || sub != nil || plan.Key != "free" {
		t.Fatalf("no subscription: plan=%s sub=%v err=%v", plan.Key, sub, err)
	}
}

func TestSyncPlans(t *testing.T) {
	env := newTestEnv(t)
	bs := env.billing(nil)
	for i := 0; i < 2; i++ {
		if err := bs.SyncPlans(env.ctx); err != nil {
			t.Fatalf("SyncPlans: %v", err)
		}
	}
	rows, err := env.planRepo.List(dbctx.Context{Ctx: env.ctx})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(rows) != len(env.catalog.List()) {
		t.Fatalf("plans: want=%d got=%d", len(env.catalog.List()), len(rows))
	}
}

func TestCheckoutRequiresStripeAndPaidPlan(t *testing.T) {
	env := newTestEnv(t)
	u := testutil.SeedUser(t, env.ctx, env.db, "buyer@x.io")

	if _, err := env.billing(nil).CreateCheckout(env.ctx, u.ID, "creator"); apierr.Code(err) != "billing_unavailable" {
		t.Fatalf("nil stripe: want billing_unavailable got %v", err)
	}

	sc := &fakeStripe{}
	bs := env.billing(sc)
	if _, err := bs.CreateCheckout(env.ctx, u.ID, "free"); apierr.Code(err) != "invalid_argument" {
		t.Fatalf("free plan: want invalid_argument got %v", err)
	}
	if _, err := bs.CreateCheckout(env.ctx, u.ID, "gold"); apierr.Code(err) != "invalid_argument" {
		t.Fatalf("unknown plan: want invalid_argument got %v", err)
	}
	url, err := bs.CreateCheckout(env.ctx, u.ID, "creator")
	if err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}
	if url != "https://checkout.test/creator" || len(sc.checkout) != 1 {
		t.Fatalf("checkout: url=%s calls=%d", url, len(sc.checkout))
	}
	if got := sc.checkout[0]; got.UserID != u.ID.String() || got.PriceID != "price_creator_monthly" || got.Email != "buyer@x.io" {
		t.Fatalf("checkout request: %+v", got)
	}

	if _, err := bs.CreatePortal(env.ctx, u.ID); apierr.Code(err) != "invalid_argument" {
		t.Fatalf("portal without customer: want invalid_argument got %v", err)
	}
}

func TestWebhookLifecycle(t *testing.T) {
	env := newTestEnv(t)
	u := testutil.SeedUser(t, env.ctx, env.db, "sub@x.io")
	testutil.SeedSubscription(t, env.ctx, env.db, u.ID, "free", billing.SubscriptionActive)

	sc := &fakeStripe{}
	bs := env.billing(sc)
	dbc := dbctx.Context{Ctx: env.ctx}

	sc.event = &stripe.Event{
		ID:   "evt_1",
		Type: stripe.EventCheckoutCompleted,
		Checkout: &stripe.CheckoutCompleted{
			SessionID:      "cs_1",
			UserID:         u.ID.String(),
			CustomerID:     "cus_1",
			SubscriptionID: "sub_1",
			PlanKey:        "creator",
		},
	}
	if err := bs.HandleWebhook(env.ctx, []byte("{}"), "valid"); err != nil {
		t.Fatalf("checkout webhook: %v", err)
	}
	sub, _ := env.subs.GetByUserID(dbc, u.ID)
	if sub.PlanKey != "creator" || sub.StripeCustomerID != "cus_1" || sub.Status != billing.SubscriptionActive {
		t.Fatalf("after checkout: %+v", sub)
	}
	if msg := env.emitter.last(); msg.Event != realtime.SSEEventSubscriptionChanged || msg.Channel != realtime.UserChannel(u.ID) {
		t.Fatalf("notification: %+v", msg)
	}

	sent := len(env.emitter.events())
	if err := bs.HandleWebhook(env.ctx, []byte("{}"), "valid"); err != nil {
		t.Fatalf("duplicate webhook: %v", err)
	}
	if len(env.emitter.events()) != sent {
		t.Fatalf("duplicate event should not notify")
	}

	periodEnd := time.Now().UTC().Add(30 * 24 * time.Hour).Truncate(time.Second)
	sc.event = &stripe.Event{
		ID:   "evt_2",
		Type: stripe.EventSubscriptionUpdated,
		Subscription: &stripe.SubscriptionState{
			ID:               "sub_1",
			CustomerID:       "cus_1",
			Status:           "past_due",
			PriceID:          "price_studio_monthly",
			CurrentPeriodEnd: &periodEnd,
		},
	}
	if err := bs.HandleWebhook(env.ctx, []byte("{}"), "valid"); err != nil {
		t.Fatalf("update webhook: %v", err)
	}
	sub, _ = env.subs.GetByUserID(dbc, u.ID)
	if sub.PlanKey != "studio" || sub.Status != billing.SubscriptionPastDue || sub.CurrentPeriodEnd == nil {
		t.Fatalf("after update: %+v", sub)
	}
	if plan := bs.PlanFor(sub); plan.Key != "studio" {
		t.Fatalf("past_due should keep plan, got %s", plan.Key)
	}

	sc.event = &stripe.Event{
		ID:           "evt_3",
		Type:         stripe.EventSubscriptionUpdated,
		Subscription: &stripe.SubscriptionState{ID: "sub_1", Status: "active", PriceID: "price_unknown"},
	}
	if err := bs.HandleWebhook(env.ctx, []byte("{}"), "valid"); err != nil {
		t.Fatalf("unknown price webhook: %v", err)
	}
	sub, _ = env.subs.GetByUserID(dbc, u.ID)
	if sub.PlanKey != "studio" {
		t.Fatalf("unknown price must be ignored, got plan %s", sub.PlanKey)
	}

	sc.event = &stripe.Event{
		ID:           "evt_4",
		Type:         stripe.EventSubscriptionDeleted,
		Subscription: &stripe.SubscriptionState{ID: "sub_1", CustomerID: "cus_1", Status: "canceled"},
	}
	if err := bs.HandleWebhook(env.ctx, []byte("{}"), "valid"); err != nil {
		t.Fatalf("delete webhook: %v", err)
	}
	sub, _ = env.subs.GetByUserID(dbc, u.ID)
	if sub.Status != billing.SubscriptionCanceled || sub.CanceledAt == nil || sub.PlanKey != "studio" {
		t.Fatalf("after delete: %+v", sub)
	}
	if plan := bs.PlanFor(sub); plan.Key != "free" {
		t.Fatalf("canceled subscription should fall back to free, got %s", plan.Key)
	}
}

func TestSubscriptionDeletedCountsAsChurn(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()
	u := testutil.SeedUser(t, env.ctx, env.db, "leaving@x.io")
	sub := testutil.SeedSubscription(t, env.ctx, env.db, u.ID, "creator", billing.SubscriptionActive)
	backdate(t, env, sub, now.AddDate(0, 0, -60), nil)
	dbc := dbctx.Context{Ctx: env.ctx}
	if err := env.subs.UpdateFields(dbc, sub.ID, map[string]interface{}{
		"stripe_subscription_id": "sub_churn",
		"stripe_customer_id":     "cus_churn",
	}); err != nil {
		t.Fatalf("link stripe ids: %v", err)
	}

	sc := &fakeStripe{event: &stripe.Event{
		ID:           "evt_churn",
		Type:         stripe.EventSubscriptionDeleted,
		Subscription: &stripe.SubscriptionState{ID: "sub_churn", CustomerID: "cus_churn", Status: "canceled"},
	}}
	if err := env.billing(sc).HandleWebhook(env.ctx, []byte("{}"), "valid"); err != nil {
		t.Fatalf("delete webhook: %v", err)
	}
	if msg := env.emitter.last(); msg.Event != realtime.SSEEventSubscriptionChanged {
		t.Fatalf("notification: %+v", msg)
	}

	ov, err := env.analyticsSvc(nil).Overview(env.ctx, now.AddDate(0, 0, -30), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if ov.CanceledInWindow != 1 || ov.ActiveAtWindowStart != 1 || ov.ChurnRate != 1.0 {
		t.Fatalf("churn after cancel: canceled=%d active_at_start=%d churn=%v", ov.CanceledInWindow, ov.ActiveAtWindowStart, ov.ChurnRate)
	}
	if ov.PaidSubscriptions != 0 {
		t.Fatalf("canceled subscription still counted as paid: %+v", ov)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	bs := env.billing(&fakeStripe{})
	if err := bs.HandleWebhook(env.ctx, []byte("{}"), "forged"); apierr.Code(err) != "invalid_signature" {
		t.Fatalf("want invalid_signature got %v", err)
	}
	bs = env.billing(&fakeStripe{parseErr: stripe.ErrWebhookSecretMissing})
	if err := bs.HandleWebhook(env.ctx, []byte("{}"), "valid"); apierr.Code(err) != "billing_unavailable" {
		t.Fatalf("want billing_unavailable got %v", err)
	}
}

func TestSetPlan(t *testing.T) {
	env := newTestEnv(t)
	bs := env.billing(nil)
	u := testutil.SeedUser(t, env.ctx, env.db, "comp@x.io")
	testutil.SeedSubscription(t, env.ctx, env.db, u.ID, "free", billing.SubscriptionCanceled)

	if err := bs.SetPlan(env.ctx, u.ID, "platinum"); apierr.Code(err) != "invalid_argument" {
		t.Fatalf("unknown plan: %v", err)
	}
	if err := bs.SetPlan(env.ctx, u.ID, "studio"); err != nil {
		t.Fatalf("SetPlan: %v", err)
	}
	view, err := bs.Subscription(env.ctx, u.ID)
	if err != nil {
		t.Fatalf("Subscription: %v", err)
	}
	if view.Plan.Key != "studio" || !view.Entitled || view.CanceledAt != nil {
		t.Fatalf("view: %+v", view)
	}
}
