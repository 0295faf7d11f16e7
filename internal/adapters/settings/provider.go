package settings

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/rampart/internal/domain/sla"
	"github.com/okian/rampart/pkg/logger"
	"github.com/okian/rampart/pkg/metrics"
)

// Provider builds configuration snapshots from a Source through a Cache.
//
// Cached values may be up to the TTL old. Set invalidates only the key it
// writes, so other keys keep their cached value until they expire.
type Provider struct {
	source Source
	cache  Cache
	ttl    time.Duration
	log    logger.Logger
}

// NewProvider creates a Provider over source.
func NewProvider(source Source, opts ...Option) *Provider {
	p := &Provider{
		source: source,
		cache:  NewLocalCache(),
		ttl:    DefaultTTL,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Snapshot loads every scoring setting and returns an immutable snapshot.
// Malformed stored values fall back to their defaults and are logged.
func (p *Provider) Snapshot(ctx context.Context) (sla.Snapshot, error) {
	values := make(map[string]string, len(sla.Keys))
	for _, key := range sla.Keys {
		e, err := p.lookup(ctx, key)
		if err != nil {
			return sla.Snapshot{}, err
		}
		if e.Present {
			values[key] = e.Value
		}
	}

	snap, fallbacks := sla.LoadSnapshot(sla.FromMap(values))
	for _, f := range fallbacks {
		metrics.RecordSettingFallback(f.Key)
		p.log.Warn(ctx, "setting rejected, using default",
			logger.String("key", f.Key),
			logger.String("value", f.Value),
			logger.Error(f.Err))
	}
	metrics.RecordSnapshotLoad()
	return snap, nil
}

func (p *Provider) lookup(ctx context.Context, name string) (Entry, error) {
	e, hit, err := p.cache.Get(ctx, name)
	if err != nil {
		// A broken cache degrades to reading the source directly.
		p.log.Warn(ctx, "settings cache read failed", logger.String("key", name), logger.Error(err))
		metrics.RecordErrorByComponent("settings_cache", "get")
	} else if hit {
		metrics.RecordSettingsCacheHit()
		return e, nil
	}
	metrics.RecordSettingsCacheMiss()

	v, ok, err := p.source.Get(ctx, name)
	if err != nil {
		metrics.RecordErrorByComponent("settings_source", "get")
		return Entry{}, fmt.Errorf("read setting %s: %w", name, err)
	}
	e = Entry{Value: v, Present: ok}
	if err := p.cache.Set(ctx, name, e, p.ttl); err != nil {
		p.log.Warn(ctx, "settings cache write failed", logger.String("key", name), logger.Error(err))
	}
	return e, nil
}

// Set validates and stores a scoring setting, then drops that key from the cache.
func (p *Provider) Set(ctx context.Context, name, value string) error {
	if err := sla.ValidateSetting(name, value); err != nil {
		return err
	}
	return p.SetRaw(ctx, name, value)
}

// SetRaw stores any setting without validation and drops it from the cache.
func (p *Provider) SetRaw(ctx context.Context, name, value string) error {
	if err := p.source.Set(ctx, name, value); err != nil {
		return err
	}
	if err := p.cache.Delete(ctx, name); err != nil {
		return fmt.Errorf("invalidate %s: %w", name, err)
	}
	p.log.Info(ctx, "setting updated", logger.String("key", name), logger.String("value", value))
	return nil
}

// Raw reads a setting straight from the source, bypassing the cache.
func (p *Provider) Raw(ctx context.Context, name string) (string, bool, error) {
	return p.source.Get(ctx, name)
}

// Invalidate drops every cached setting.
func (p *Provider) Invalidate(ctx context.Context) error {
	if err := p.cache.Purge(ctx); err != nil {
		return fmt.Errorf("purge settings cache: %w", err)
	}
	return nil
}
