// Package store caches finished analyses by token address.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blockstat/forensics/internal/graph"
)

// ErrNotFound is returned when no fresh entry exists for a token.
var ErrNotFound = errors.New("store: not found")

// Entry is one cached analysis.
type Entry struct {
	Token      string         `json:"token"`
	AnalysisID string         `json:"analysisId"`
	Origin     string         `json:"origin"` // backend|synthetic
	Dataset    *graph.Dataset `json:"dataset"`
	StoredAt   time.Time      `json:"storedAt"`
}

// Store keeps the latest analysis per token. Implementations are safe for
// concurrent use. Tokens are matched case-insensitively.
type Store interface {
	Get(ctx context.Context, token string) (*Entry, error)
	Put(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, token string) error
	Close() error
}

// Drivers.
const (
	DriverFile   = "file"
	DriverRedis  = "redis"
	DriverMemory = "memory"
	DriverNone   = "none"
)

// Config selects and configures the cache driver.
type Config struct {
	Driver        string        `yaml:"driver"` // file|redis|memory|none
	Dir           string        `yaml:"dir"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"` // 0 keeps entries forever
}

// Open creates the configured store. The redis driver pings the server
// before returning.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFile:
		return NewFileStore(cfg.Dir, cfg.TTL)
	case DriverRedis:
		return NewRedisStore(ctx, cfg)
	case DriverMemory:
		return NewMemoryStore(cfg.TTL), nil
	case DriverNone, "":
		return Nop{}, nil
	}
	return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
}

func normalize(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}

func expired(e *Entry, ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(e.StoredAt) > ttl
}

// Nop stores nothing.
type Nop struct{}

func (Nop) Get(context.Context, string) (*Entry, error) { return nil, ErrNotFound }
func (Nop) Put(context.Context, *Entry) error           { return nil }
func (Nop) Delete(context.Context, string) error        { return nil }
func (Nop) Close() error                                { return nil }
