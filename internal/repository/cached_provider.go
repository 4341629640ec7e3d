package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinPrep/internal/domain/models"
	domrepo "FinPrep/internal/domain/repository"
	"FinPrep/pkg/cache"
	applogger "FinPrep/pkg/logger"
)

// CachedProvider is a read-through cache in front of a BarProvider. Only the
// holder of the fill lock writes a key; other callers fetch without storing.
type CachedProvider struct {
	next    domrepo.BarProvider
	cache   cache.Service
	ttl     time.Duration
	lockTTL time.Duration
	l       *applogger.Logger
	m       domrepo.Metrics
}

type CachedProviderOption func(*CachedProvider)

func WithCacheLogger(l *applogger.Logger) CachedProviderOption {
	return func(p *CachedProvider) {
		if l != nil {
			p.l = l
		}
	}
}

func WithCacheMetrics(m domrepo.Metrics) CachedProviderOption {
	return func(p *CachedProvider) {
		if m != nil {
			p.m = m
		}
	}
}

func NewCachedProvider(next domrepo.BarProvider, c cache.Service, ttl time.Duration, opts ...CachedProviderOption) *CachedProvider {
	if ttl <= 0 {
		ttl = time.Hour
	}
	p := &CachedProvider{
		next:    next,
		cache:   c,
		ttl:     ttl,
		lockTTL: 30 * time.Second,
		l:       applogger.Nop(),
		m:       domrepo.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// BarsKey identifies one provider response.
func BarsKey(ticker string, start, end time.Time, interval models.Frequency) string {
	return fmt.Sprintf("bars:%s:%s:%d:%d", ticker, interval, start.UTC().Unix(), end.UTC().Unix())
}

func (p *CachedProvider) FetchBars(ctx context.Context, ticker string, start, end time.Time, interval models.Frequency) ([]models.Bar, error) {
	key := BarsKey(ticker, start, end, interval)

	var bars []models.Bar
	err := p.cache.Get(ctx, key, &bars)
	if err == nil {
		p.m.RecordBarsFetched("cache", ticker, len(bars))
		return bars, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		p.m.RecordError("cache")
		p.l.Warn("cache get failed, falling through to provider",
			applogger.String("key", key),
			applogger.Error(err))
	}

	bars, err = p.next.FetchBars(ctx, ticker, start, end, interval)
	if err != nil {
		return nil, err
	}

	lockKey := "lock:" + key
	locked, err := p.cache.TryLock(ctx, lockKey, p.lockTTL)
	if err != nil || !locked {
		return bars, nil
	}
	defer func() { _ = p.cache.Unlock(context.WithoutCancel(ctx), lockKey) }()

	if err := p.cache.Set(ctx, key, bars, p.ttl); err != nil {
		p.m.RecordError("cache")
		p.l.Warn("cache set failed",
			applogger.String("key", key),
			applogger.Error(err))
	}
	return bars, nil
}

// Invalidate drops every cached response for a ticker.
func (p *CachedProvider) Invalidate(ctx context.Context, ticker string) error {
	return p.cache.DeleteByPattern(ctx, "bars:"+ticker+":*")
}
