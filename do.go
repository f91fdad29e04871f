package meshguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/meshguard/breaker"
	"github.com/jonwraymond/meshguard/fallback"
	"github.com/jonwraymond/meshguard/observe"
	"github.com/jonwraymond/meshguard/priority"
)

// Operation is one outbound call. Do cancels its context at the
// adaptive timeout; the operation must honor it.
type Operation func(ctx context.Context) ([]byte, error)

type callOptions struct {
	tier        priority.Tier
	cacheKey    string
	payload     any
	payloadSet  bool
	ttl         time.Duration
	handlers    []fallback.Handler
	handlersSet bool
}

// CallOption adjusts one Do call.
type CallOption func(*callOptions)

// WithTier sets the call's admission tier. Default: TierNormal
func WithTier(tier priority.Tier) CallOption {
	return func(o *callOptions) { o.tier = tier }
}

// WithCacheKey enables stale serving for this call: a success is
// written through under the key and a failure is answered from it.
// Keys are scoped to the target service, so two services may reuse
// the same key without sharing entries.
func WithCacheKey(key string) CallOption {
	return func(o *callOptions) { o.cacheKey = key }
}

// WithCachePayload enables stale serving keyed by the request itself.
// The key is derived from the payload's JSON form, so equal requests
// share an entry no matter how the caller built them. An explicit
// WithCacheKey wins over a derived key.
func WithCachePayload(payload any) CallOption {
	return func(o *callOptions) {
		o.payload = payload
		o.payloadSet = true
	}
}

// WithTTL overrides the write-through TTL for this call.
func WithTTL(ttl time.Duration) CallOption {
	return func(o *callOptions) { o.ttl = ttl }
}

// WithFallbacks sets the degraded alternatives tried, in order, when
// the call fails and the cache cannot answer.
func WithFallbacks(handlers ...fallback.Handler) CallOption {
	return func(o *callOptions) {
		o.handlers = handlers
		o.handlersSet = true
	}
}

// Do runs one guarded call against a target service. Admission runs
// priority tier, rate limiter, then circuit breaker; the operation
// itself runs under the target's adaptive timeout and its outcome
// feeds every adaptive component. On failure the fallback chain
// degrades to cached or alternate values when the call opted in.
//
// The error is always one of ErrAdmissionRejected, ErrCircuitOpen,
// ErrTimeout, ErrClosed, or the operation's own.
func (c *Client) Do(ctx context.Context, service string, op Operation, opts ...CallOption) (fallback.Result, error) {
	o := callOptions{tier: priority.TierNormal}
	for _, opt := range opts {
		opt(&o)
	}

	g, err := c.guard(service)
	if err != nil {
		return fallback.Result{Err: err}, err
	}

	ctx, span := c.config.Tracer.StartSpan(ctx, observe.ServiceMeta{
		Service: service,
		Caller:  c.config.Service,
	})

	key := ""
	switch {
	case o.cacheKey != "":
		key = "mesh:" + service + ":" + o.cacheKey
	case o.payloadSet:
		k, kerr := c.config.Keyer.Key(service, o.payload)
		if kerr != nil {
			// An unkeyable payload costs this call its stale serving,
			// nothing more.
			c.config.Logger.Warn(ctx, "cache key derivation failed",
				observe.Field{Key: "service", Value: service},
				observe.Field{Key: "error", Value: kerr.Error()},
			)
		} else {
			key = k
		}
	}

	fopts := make([]fallback.Option, 0, 3)
	if key != "" {
		fopts = append(fopts, fallback.WithCacheKey(key))
	}
	if o.ttl > 0 {
		fopts = append(fopts, fallback.WithTTL(o.ttl))
	}
	if o.handlersSet {
		fopts = append(fopts, fallback.WithHandlers(o.handlers...))
	}

	res, err := g.chain.Execute(ctx, c.primary(g, service, op, o.tier), fopts...)
	c.config.Tracer.EndSpan(span, err)
	return res, err
}

// primary wraps the operation with the admission gates, the adaptive
// timeout, and outcome recording. Gate rejections fail the primary so
// the fallback chain can still serve a degraded value.
func (c *Client) primary(g *guard, service string, op Operation, tier priority.Tier) fallback.Operation {
	return func(ctx context.Context) ([]byte, error) {
		if err := c.priorities.Start(ctx, tier); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrAdmissionRejected, err)
		}
		defer c.priorities.Finish(tier)

		if !g.limiter.Allow() {
			return nil, fmt.Errorf("%w: %s is rate limited", ErrAdmissionRejected, service)
		}

		// Critical traffic passes regardless of circuit state. For the
		// rest, a half-open circuit admits only high tiers, then the
		// breaker schedules probes and meters the recovery fraction.
		if tier != priority.TierCritical {
			if g.breaker.State() == breaker.StateHalfOpen && tier < priority.TierHigh {
				return nil, fmt.Errorf("%w: %s is recovering", ErrCircuitOpen, service)
			}
			if !g.breaker.Allow(ctx) {
				return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, service)
			}
		}

		d := g.timeout.Timeout()
		tctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		start := time.Now()
		value, err := op(tctx)
		latency := time.Since(start)

		failed := err != nil
		if failed {
			g.breaker.RecordFailure(ctx, latency)
			g.limiter.RecordFailure()
		} else {
			g.breaker.RecordSuccess(ctx, latency)
			g.limiter.RecordSuccess()
		}
		g.timeout.Record(ctx, latency, !failed)

		if failed && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %s after %v", ErrTimeout, service, d)
		}
		return value, err
	}
}
