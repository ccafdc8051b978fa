package queue

import (
	"context"
	"testing"
	"time"
)

type job struct {
	Target string `json:"target"`
}

func TestInMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	msg, err := NewMessage("sync", job{Target: "government"})
	if err != nil {
		t.Fatalf("new message: %v", err)
	}
	if err := q.Publish(ctx, msg); err != nil {
		t.Fatalf("publish: %v", err)
	}
	ch, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	select {
	case got := <-ch:
		if got.Type != "sync" {
			t.Fatalf("type = %q", got.Type)
		}
		var j job
		if err := got.Decode(&j); err != nil || j.Target != "government" {
			t.Fatalf("decode = %+v, %v", j, err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for message")
	}
}

func TestInMemoryPublishRespectsContext(t *testing.T) {
	q := NewInMemory(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Publish(ctx, Message{Type: "x"}); err == nil {
		t.Fatalf("expected context error on full queue")
	}
}

func TestInMemoryConsumeClosesOnCancel(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := q.Consume(ctx)
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("unexpected message")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed")
	}
}
