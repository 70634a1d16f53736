package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/inkwell-backend/internal/platform/cache"
	"github.com/yungbote/inkwell-backend/internal/platform/envutil"
	"github.com/yungbote/inkwell-backend/internal/platform/gcp"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
	"github.com/yungbote/inkwell-backend/internal/platform/openai"
	"github.com/yungbote/inkwell-backend/internal/platform/sendgrid"
	"github.com/yungbote/inkwell-backend/internal/platform/stripe"
	"github.com/yungbote/inkwell-backend/internal/realtime/bus"
)

// Clients holds the external integrations. Every field except Cache may be
// nil; the services degrade with a service_unavailable error instead.
type Clients struct {
	Redis    *goredis.Client
	SSEBus   bus.Bus
	Cache    cache.Cache
	Bucket   gcp.BucketService
	Document gcp.Document
	AI       openai.Client
	Mail     sendgrid.Client
	Stripe   stripe.Client
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var c Clients

	redisCfg := cache.RedisConfigFromEnv()
	if redisCfg.Addr != "" {
		rdb, err := cache.NewRedisClient(ctx, redisCfg)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis: %w", err)
		}
		c.Redis = rdb
		b, err := bus.NewRedisBus(log, rdb, cfg.RedisChannel)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init redis SSE bus: %w", err)
		}
		c.SSEBus = b
		c.Cache = cache.NewRedis(log, rdb, redisCfg.KeyPrefix)
	} else {
		log.Warn("REDIS_ADDR not set; SSE fan-out and caching stay in-process")
		c.Cache = cache.NewMemory()
	}

	if envutil.String("ASSET_GCS_BUCKET_NAME", "") != "" {
		bucket, err := resolveBucketService(log)
		if err != nil {
			c.Close()
			return Clients{}, err
		}
		c.Bucket = bucket
	} else {
		log.Warn("ASSET_GCS_BUCKET_NAME not set; asset storage disabled")
	}

	if docCfg := gcp.DocumentConfigFromEnv(); docCfg.ProcessorID != "" {
		doc, err := gcp.NewDocument(log, docCfg)
		if err != nil {
			c.Close()
			return Clients{}, fmt.Errorf("init document client: %w", err)
		}
		c.Document = doc
	}

	if ai, err := openai.NewFromEnv(log); err != nil {
		log.Warn("OpenAI client disabled", "error", err)
	} else {
		c.AI = ai
	}
	if mail, err := sendgrid.NewFromEnv(log); err != nil {
		log.Warn("SendGrid client disabled; invite emails will be skipped", "error", err)
	} else {
		c.Mail = mail
	}
	if sc, err := stripe.NewFromEnv(log); err != nil {
		log.Warn("Stripe client disabled; checkout and portal unavailable", "error", err)
	} else {
		c.Stripe = sc
	}
	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.SSEBus != nil {
		_ = c.SSEBus.Close()
	}
	if c.Document != nil {
		_ = c.Document.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
