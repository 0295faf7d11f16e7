package settings

import (
	"time"

	"github.com/okian/rampart/pkg/logger"
)

// DefaultTTL bounds how stale a cached setting may be.
const DefaultTTL = 30 * time.Second

// Option applies a configuration option to the Provider.
type Option func(*Provider)

// WithCache replaces the default LocalCache.
func WithCache(c Cache) Option {
	return func(p *Provider) {
		if c != nil {
			p.cache = c
		}
	}
}

// WithTTL sets how long lookups stay cached.
func WithTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithLogger sets the logger used for fallback and cache warnings.
func WithLogger(l logger.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.log = l
		}
	}
}
