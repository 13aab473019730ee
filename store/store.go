// Package store persists recorded trace events outside the process. Every
// backend keeps the events of one run under a fresh run ID, so several runs
// can share a database or a Redis instance.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("uatu.store")

// ErrUnknownBackend is returned by Open for an unrecognized backend name.
var ErrUnknownBackend = errors.New("unknown store backend")

// ErrClosed is returned by Put after Close.
var ErrClosed = errors.New("store is closed")

// Store receives events as they are recorded.
type Store interface {
	// Put writes the entry for event index. It may block; callers bound it
	// with ctx.
	Put(ctx context.Context, index uint64, e Entry) error
	// RunID identifies the run the store is writing.
	RunID() string
	Close() error
}

// Reader lists what a store holds for its own run, in index order.
type Reader interface {
	Records(ctx context.Context) ([]Record, error)
}

// Config selects and parameterizes a backend.
type Config struct {
	Backend     string // none, memory, sqlite, duckdb, redis
	Path        string // database file for sqlite and duckdb
	URL         string // redis URL
	KeyPrefix   string // redis key prefix
	ClearOnOpen bool   // drop entries of earlier runs
}

// Open returns the configured backend. The "none" backend (or an empty
// name) yields a nil Store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch backend {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemory(), nil
	case "sqlite", "duckdb":
		s, err := OpenSQL(ctx, backend, cfg.Path, WithClearOnOpen(cfg.ClearOnOpen))
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		s, err := OpenRedis(ctx, cfg.URL, WithKeyPrefix(cfg.KeyPrefix), WithClearOnOpen(cfg.ClearOnOpen))
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// Backends lists the accepted backend names.
func Backends() []string {
	return []string{"none", "memory", "sqlite", "duckdb", "redis"}
}

// options shared by the persistent backends.
type options struct {
	clearOnOpen bool
	keyPrefix   string
	runID       string
}

// Option configures a backend.
type Option func(*options)

// WithClearOnOpen removes entries left by earlier runs when the store opens.
func WithClearOnOpen(on bool) Option {
	return func(o *options) {
		o.clearOnOpen = on
	}
}

// WithKeyPrefix sets the key namespace used by the redis backend.
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}

// WithRunID overrides the generated run ID.
func WithRunID(id string) Option {
	return func(o *options) {
		if id != "" {
			o.runID = id
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		keyPrefix: "uatu",
		runID:     uuid.NewString(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
