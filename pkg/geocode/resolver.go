package geocode

import (
	"context"

	"go.uber.org/zap"
)

// Resolver resolves one address by trying tiers from most to least specific
// against a single Provider, stopping at the first match. It owns the
// cross-tier policy; providers may only loosen a query within a tier.
type Resolver struct {
	provider Provider
	throttle Throttler
	cache    Cache
	country  string
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCache consults c before throttling and stores every provider answer.
func WithCache(c Cache) ResolverOption {
	return func(r *Resolver) {
		r.cache = c
	}
}

// WithCountry sets the country literal appended to the city_region and
// postal tiers. Default "Brazil".
func WithCountry(country string) ResolverOption {
	return func(r *Resolver) {
		r.country = country
	}
}

// NewResolver creates a Resolver. throttle is shared by every call in a run;
// nil disables throttling.
func NewResolver(p Provider, throttle Throttler, opts ...ResolverOption) *Resolver {
	if throttle == nil {
		throttle = noopThrottler{}
	}
	r := &Resolver{
		provider: p,
		throttle: throttle,
		country:  "Brazil",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve never returns an error: provider failures on a tier are logged and
// the next tier is tried. When every tier is exhausted the result is
// Matched=false with ReasonNoMatch. Attempts lists each tier submitted.
func (r *Resolver) Resolve(ctx context.Context, addr Address) *Result {
	log := zap.L().With(zap.String("address_id", addr.ID), zap.String("provider", r.provider.Name()))

	var attempts []Attempt
	seen := make(map[string]bool, len(Tiers))
	lastTier := TierFull

	for _, tier := range Tiers {
		if ctx.Err() != nil {
			break
		}

		q, ok := BuildQuery(tier, addr, r.country)
		if !ok {
			log.Debug("resolver: tier skipped, no components", zap.String("tier", string(tier)))
			continue
		}
		text := q.Text()
		if seen[text] {
			log.Debug("resolver: tier skipped, duplicate query", zap.String("tier", string(tier)))
			continue
		}
		seen[text] = true
		lastTier = tier

		result, cached, err := r.query(ctx, q)
		attempt := Attempt{Tier: tier, Query: text, Cached: cached}

		if err != nil {
			attempt.Reason = ReasonFor(err)
			attempts = append(attempts, attempt)
			log.Warn("resolver: provider error, trying next tier",
				zap.String("tier", string(tier)),
				zap.String("query", text),
				zap.String("reason", string(attempt.Reason)),
				zap.Error(err),
			)
			continue
		}

		if result.Matched {
			attempts = append(attempts, attempt)
			out := *result
			out.Tier = tier
			out.Reason = ReasonNone
			out.Attempts = attempts
			log.Debug("resolver: matched",
				zap.String("tier", string(tier)),
				zap.Float64("lat", out.Coordinate.Lat),
				zap.Float64("lng", out.Coordinate.Lng),
			)
			return &out
		}

		attempt.Reason = ReasonNoMatch
		attempts = append(attempts, attempt)

		// The provider already tried its loosened text without a match.
		if lf, ok := r.provider.(LocalityFallback); ok {
			if loose := lf.FallbackText(q); loose != "" {
				seen[loose] = true
			}
		}
	}

	return &Result{
		Matched:  false,
		Source:   r.provider.Name(),
		Tier:     lastTier,
		Reason:   ReasonNoMatch,
		Attempts: attempts,
	}
}

// query submits q through the cache and throttle. cached reports a cache hit.
func (r *Resolver) query(ctx context.Context, q Query) (result *Result, cached bool, err error) {
	name := r.provider.Name()

	if r.cache != nil {
		if hit, ok := r.cache.Get(ctx, name, q); ok {
			return hit, true, nil
		}
	}

	if err := r.throttle.Wait(ctx); err != nil {
		return nil, false, err
	}
	result, err = r.provider.Geocode(ctx, q)
	r.throttle.Done()
	if err != nil {
		return nil, false, err
	}
	if result == nil {
		result = noMatch(name)
	}

	if r.cache != nil {
		if putErr := r.cache.Put(ctx, name, q, result); putErr != nil {
			zap.L().Warn("resolver: cache store failed", zap.Error(putErr))
		}
	}
	return result, false, nil
}
