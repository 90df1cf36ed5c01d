//go:build integration

package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"admitcoach/scheduler/config"
)

// 需要本地 Redis：TEST_REDIS_ADDR=localhost:6379 go test -tags=integration ./pkg/redis/
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("未设置 TEST_REDIS_ADDR，跳过 Redis 集成测试")
	}
	c, err := NewClient(&config.RedisConfig{Addr: addr}, zap.NewNop())
	if err != nil {
		t.Fatalf("连接 Redis 失败: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCheckRateLimit(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := "test:rate_limit:" + uuid.NewString()

	for i := 0; i < 3; i++ {
		allowed, err := c.CheckRateLimit(ctx, key, 3, time.Minute)
		if err != nil {
			t.Fatalf("CheckRateLimit 失败: %v", err)
		}
		if !allowed {
			t.Fatalf("第 %d 次请求应放行", i+1)
		}
	}
	allowed, _ := c.CheckRateLimit(ctx, key, 3, time.Minute)
	if allowed {
		t.Error("超过限额的请求应被拒绝")
	}
}

func TestIdempotency_FirstWriteWins(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := "reserve:family-1:" + uuid.NewString()

	if _, ok, err := c.Lookup(ctx, key); err != nil || ok {
		t.Fatalf("新键不应命中: ok=%v err=%v", ok, err)
	}
	if err := c.Remember(ctx, key, "booking-a", time.Minute); err != nil {
		t.Fatalf("Remember 失败: %v", err)
	}
	if err := c.Remember(ctx, key, "booking-b", time.Minute); err != nil {
		t.Fatalf("Remember 失败: %v", err)
	}

	v, ok, err := c.Lookup(ctx, key)
	if err != nil || !ok || v != "booking-a" {
		t.Errorf("期望 booking-a，得到 %q ok=%v err=%v", v, ok, err)
	}
}
