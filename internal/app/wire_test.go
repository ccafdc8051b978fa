package app

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"attendtrack/internal/attendance"
	"attendtrack/internal/config"
	"attendtrack/internal/queue"
)

func TestOpenInMemory(t *testing.T) {
	b, err := Open(context.Background(), config.App{StoreBackend: "memory", QueueBackend: "memory"}, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()
	if _, ok := b.Store.(*attendance.MemoryStore); !ok {
		t.Fatalf("store = %T", b.Store)
	}
	if _, ok := b.Queue.(*queue.InMemory); !ok {
		t.Fatalf("queue = %T", b.Queue)
	}
	if b.Redis != nil {
		t.Fatalf("redis should not be dialled")
	}
	if err := b.PingStore(context.Background()); err != nil {
		t.Fatalf("ping store: %v", err)
	}
	if err := b.PingRedis(context.Background()); err != nil {
		t.Fatalf("ping redis: %v", err)
	}
}
