package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
)

// ErrInvalid wraps validation failures of a settings document.
var ErrInvalid = errors.New("invalid settings")

// AutoSync selects which scheduled syncs run.
type AutoSync struct {
	FiveMinutes bool `json:"fiveMinutes"`
	Hourly      bool `json:"hourly"`
	Daily       bool `json:"daily"`
}

// Settings is the system-wide configuration document edited from the UI.
type Settings struct {
	FacialRecognition     bool       `json:"facialRecognition"`
	RFIDIntegration       bool       `json:"rfidIntegration"`
	OfflineMode           bool       `json:"offlineMode"`
	PushNotifications     bool       `json:"pushNotifications"`
	AutoSync              AutoSync   `json:"autoSync"`
	AttendanceThreshold   float64    `json:"attendanceThreshold" validate:"gte=0,lte=100"`
	GovernmentAPIEndpoint string     `json:"governmentApiEndpoint" validate:"omitempty,url"`
	UpdatedAt             *time.Time `json:"updatedAt,omitempty"`
}

// Defaults returns the settings used before anything has been saved.
func Defaults() Settings {
	return Settings{
		FacialRecognition: true,
		RFIDIntegration:   true,
		OfflineMode:       true,
		PushNotifications: true,
		AutoSync: AutoSync{
			Hourly: true,
			Daily:  true,
		},
		AttendanceThreshold:   75,
		GovernmentAPIEndpoint: "https://api.education.gov.in",
	}
}

var validate = validator.New()

// Validate checks field ranges.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// Store persists the settings document.
type Store interface {
	Get(ctx context.Context) (Settings, error)
	Put(ctx context.Context, s Settings) error
}

// Service validates and stamps updates.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) Get(ctx context.Context) (Settings, error) {
	return s.store.Get(ctx)
}

// Update validates next, stamps UpdatedAt and saves it.
func (s *Service) Update(ctx context.Context, next Settings) (Settings, error) {
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}
	ts := s.now().UTC()
	next.UpdatedAt = &ts
	if err := s.store.Put(ctx, next); err != nil {
		return Settings{}, err
	}
	return next, nil
}

// RedisStore keeps the document as JSON under one key.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, key: "attendance:settings"}
}

func (r *RedisStore) Get(ctx context.Context) (Settings, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Defaults(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("settings get: %w", err)
	}
	s := Defaults()
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("settings decode: %w", err)
	}
	return s, nil
}

func (r *RedisStore) Put(ctx context.Context, s Settings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("settings put: %w", err)
	}
	return nil
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu  sync.RWMutex
	cur *Settings
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Get(context.Context) (Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cur == nil {
		return Defaults(), nil
	}
	return *m.cur, nil
}

func (m *MemoryStore) Put(_ context.Context, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cur = &s
	return nil
}
