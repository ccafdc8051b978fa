package settings

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	s, err := NewService(NewMemoryStore()).Get(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.AttendanceThreshold != 75 || !s.AutoSync.Hourly || s.AutoSync.FiveMinutes || s.UpdatedAt != nil {
		t.Fatalf("defaults = %+v", s)
	}
}

func TestUpdateValidatesAndStamps(t *testing.T) {
	svc := NewService(NewMemoryStore())
	fixed := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	bad := Defaults()
	bad.AttendanceThreshold = 120
	if _, err := svc.Update(context.Background(), bad); !errors.Is(err, ErrInvalid) {
		t.Fatalf("threshold 120 accepted: %v", err)
	}
	bad = Defaults()
	bad.GovernmentAPIEndpoint = "not a url"
	if _, err := svc.Update(context.Background(), bad); !errors.Is(err, ErrInvalid) {
		t.Fatalf("bad endpoint accepted: %v", err)
	}

	next := Defaults()
	next.AttendanceThreshold = 80
	next.AutoSync.FiveMinutes = true
	saved, err := svc.Update(context.Background(), next)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if saved.UpdatedAt == nil || !saved.UpdatedAt.Equal(fixed) {
		t.Fatalf("updatedAt = %v", saved.UpdatedAt)
	}
	got, _ := svc.Get(context.Background())
	if got.AttendanceThreshold != 80 || !got.AutoSync.FiveMinutes {
		t.Fatalf("stored = %+v", got)
	}
}
