package queue

import (
	"time"

	"github.com/HsiangNianian/framebridge/internal/store"
	"go.uber.org/zap"
)

type Option func(*Host)

func WithLogger(l *zap.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMaxJobs bounds how many background actions run at once.
func WithMaxJobs(n int) Option {
	return func(h *Host) {
		if n > 0 {
			h.maxJobs = n
		}
	}
}

// WithStore enables response caching for storable actions.
func WithStore(s store.Store) Option {
	return func(h *Host) {
		h.store = s
	}
}

func WithCacheTTL(d time.Duration) Option {
	return func(h *Host) {
		if d >= 0 {
			h.cacheTTL = d
		}
	}
}
