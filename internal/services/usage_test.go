package services

import (
	"sync"
	"testing"
	"time"

	"github.com/yungbote/inkwell-backend/internal/data/repos/testutil"
	"github.com/yungbote/inkwell-backend/internal/domain/billing"
	"github.com/yungbote/inkwell-backend/internal/domain/content"
	"github.com/yungbote/inkwell-backend/internal/platform/apierr"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
)

func TestCheckAndConsumeDailyLimit(t *testing.T) {
	env := newTestEnv(t)
	us := env.usage()
	u := testutil.SeedUser(t, env.ctx, env.db, "free@x.io")

	var last *Usage
	for i := 1; i <= 10; i++ {
		usage, err := us.CheckAndConsume(env.ctx, u.ID, content.ToolArticle)
		if err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
		if usage.DailyUsed != i {
			t.Fatalf("consume %d: daily_used=%d", i, usage.DailyUsed)
		}
		last = usage
	}
	if last.DailyRemaining() != 0 || last.MonthlyRemaining() != 90 {
		t.Fatalf("remaining: daily=%d monthly=%d", last.DailyRemaining(), last.MonthlyRemaining())
	}
	usage, err := us.CheckAndConsume(env.ctx, u.ID, content.ToolArticle)
	if apierr.Code(err) != "quota_exceeded" {
		t.Fatalf("11th call: want quota_exceeded got %v", err)
	}
	if usage == nil || usage.DailyUsed != 10 {
		t.Fatalf("exceeded usage: %+v", usage)
	}
}

func TestCheckAndConsumeUpgradeRequired(t *testing.T) {
	env := newTestEnv(t)
	us := env.usage()
	u := testutil.SeedUser(t, env.ctx, env.db, "free@x.io")
	if _, err := us.CheckAndConsume(env.ctx, u.ID, content.ToolImage); apierr.Code(err) != "upgrade_required" {
		t.Fatalf("want upgrade_required got %v", err)
	}
	peek, err := us.Peek(env.ctx, u.ID)
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if peek.DailyUsed != 0 {
		t.Fatalf("upgrade_required must not consume, daily_used=%d", peek.DailyUsed)
	}
}

func TestCheckAndConsumeResetsOnNewDay(t *testing.T) {
	env := newTestEnv(t)
	us := env.usage()
	u := testutil.SeedUser(t, env.ctx, env.db, "clock@x.io")

	day1 := time.Date(2026, 3, 31, 23, 59, 0, 0, time.UTC)
	us.now = func() time.Time { return day1 }
	for i := 0; i < 10; i++ {
		if _, err := us.CheckAndConsume(env.ctx, u.ID, content.ToolArticle); err != nil {
			t.Fatalf("day1 consume: %v", err)
		}
	}

	day2 := day1.Add(2 * time.Minute)
	us.now = func() time.Time { return day2 }
	usage, err := us.CheckAndConsume(env.ctx, u.ID, content.ToolArticle)
	if err != nil {
		t.Fatalf("day2 consume: %v", err)
	}
	if usage.DailyUsed != 1 || usage.MonthlyUsed != 1 {
		t.Fatalf("new month resets both windows: %+v", usage)
	}
	if !usage.DailyResetsAt.Equal(time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("daily reset: %s", usage.DailyResetsAt)
	}

	// Releasing a unit taken yesterday leaves today's count alone.
	if err := us.Release(env.ctx, u.ID, day1); err != nil {
		t.Fatalf("Release: %v", err)
	}
	counter, _ := env.usageRepo.Get(dbctx.Context{Ctx: env.ctx}, u.ID)
	if counter.DailyCount != 1 || counter.MonthlyCount != 1 {
		t.Fatalf("stale release changed counters: %+v", counter)
	}
	if err := us.Release(env.ctx, u.ID, day2); err != nil {
		t.Fatalf("Release: %v", err)
	}
	counter, _ = env.usageRepo.Get(dbctx.Context{Ctx: env.ctx}, u.ID)
	if counter.DailyCount != 0 || counter.MonthlyCount != 0 {
		t.Fatalf("release: %+v", counter)
	}
}

func TestCheckAndConsumeUnlimitedDaily(t *testing.T) {
	env := newTestEnv(t)
	us := env.usage()
	u := testutil.SeedUser(t, env.ctx, env.db, "studio@x.io")
	testutil.SeedSubscription(t, env.ctx, env.db, u.ID, "studio", billing.SubscriptionActive)

	usage, err := us.CheckAndConsume(env.ctx, u.ID, content.ToolImage)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if usage.DailyLimit != billing.Unlimited || usage.DailyRemaining() != billing.Unlimited {
		t.Fatalf("unlimited daily: %+v", usage)
	}
	if usage.MonthlyRemaining() != 4999 {
		t.Fatalf("monthly remaining: %d", usage.MonthlyRemaining())
	}
}

func TestCheckAndConsumeConcurrent(t *testing.T) {
	env := newTestEnv(t)
	us := env.usage()
	u := testutil.SeedUser(t, env.ctx, env.db, "race@x.io")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := us.CheckAndConsume(env.ctx, u.ID, content.ToolBlogTitles); err == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 10 {
		t.Fatalf("allowed: want=10 got=%d", allowed)
	}
	counter, _ := env.usageRepo.Get(dbctx.Context{Ctx: env.ctx}, u.ID)
	if counter.DailyCount != 10 {
		t.Fatalf("daily_count: %d", counter.DailyCount)
	}
}
