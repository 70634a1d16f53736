package bus

import (
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

func TestNewRedisBusValidatesArgs(t *testing.T) {
	if _, err := NewRedisBus(logger.NewNop(), nil, ""); err == nil {
		t.Fatalf("expected error without a client")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()
	b, err := NewRedisBus(logger.NewNop(), rdb, " ")
	if err != nil {
		t.Fatalf("NewRedisBus: %v", err)
	}
	if got := b.(*redisBus).channel; got != "inkwell:sse" {
		t.Fatalf("default channel: %q", got)
	}
}
