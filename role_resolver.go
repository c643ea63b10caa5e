package clubauth

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// DefaultRoleCacheTTL bounds how long a resolved role is considered fresh.
const DefaultRoleCacheTTL = 5 * time.Minute

// DefaultRoleCacheSize bounds the number of cached role entries.
const DefaultRoleCacheSize = 128

// RoleResult is a non-blocking view of the resolver state for one identity.
type RoleResult struct {
	Role    Role
	Loading bool
	Err     error
}

// RoleResolver maps an identity's email to its authorization role via the
// backend. Results are cached for a bounded freshness window; identical
// concurrent requests for the same key are deduplicated to a single fetch.
type RoleResolver struct {
	backend     Backend
	logger      Logger
	sink        ActivitySink
	ttl         time.Duration
	size        int
	maxAttempts uint64
	newBackOff  func() backoff.BackOff

	cache *expirable.LRU[string, Role]
	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]int
	lastErr  map[string]error
}

// RoleResolverOption customizes resolver construction.
type RoleResolverOption func(*RoleResolver)

// WithRoleCacheTTL sets the freshness window for cached roles.
func WithRoleCacheTTL(ttl time.Duration) RoleResolverOption {
	return func(r *RoleResolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithRoleCacheSize sets the cache capacity.
func WithRoleCacheSize(size int) RoleResolverOption {
	return func(r *RoleResolver) {
		if size > 0 {
			r.size = size
		}
	}
}

// WithRoleLogger overrides the default logger.
func WithRoleLogger(logger Logger) RoleResolverOption {
	return func(r *RoleResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRoleActivitySink sets the ActivitySink for role fetch failures.
func WithRoleActivitySink(sink ActivitySink) RoleResolverOption {
	return func(r *RoleResolver) {
		r.sink = normalizeActivitySink(sink)
	}
}

// WithRoleRetries bounds the retry budget for a single fetch.
func WithRoleRetries(attempts uint64) RoleResolverOption {
	return func(r *RoleResolver) {
		r.maxAttempts = attempts
	}
}

// WithRoleBackOff overrides the retry policy factory (useful for tests).
func WithRoleBackOff(factory func() backoff.BackOff) RoleResolverOption {
	return func(r *RoleResolver) {
		if factory != nil {
			r.newBackOff = factory
		}
	}
}

// NewRoleResolver returns a resolver backed by the given backend.
func NewRoleResolver(backend Backend, opts ...RoleResolverOption) *RoleResolver {
	r := &RoleResolver{
		backend:     backend,
		logger:      defLogger{},
		sink:        noopActivitySink{},
		ttl:         DefaultRoleCacheTTL,
		size:        DefaultRoleCacheSize,
		maxAttempts: 3,
		newBackOff:  func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		inflight:    map[string]int{},
		lastErr:     map[string]error{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	r.cache = expirable.NewLRU[string, Role](r.size, nil, r.ttl)

	return r
}

// Role resolves the role for the identity, serving from cache within the
// freshness window. A nil identity resolves to RoleUnknown without issuing a
// request.
func (r *RoleResolver) Role(ctx context.Context, identity Identity) (Role, error) {
	if identity == nil {
		return RoleUnknown, nil
	}

	key := identity.Email()
	if role, ok := r.cache.Get(key); ok {
		return role, nil
	}

	return r.fetch(ctx, key)
}

// Refetch bypasses the cache and fetches a fresh role for the identity. The
// cached value is replaced only on success; a failed refetch keeps serving
// the previous role until its window expires.
func (r *RoleResolver) Refetch(ctx context.Context, identity Identity) (Role, error) {
	if identity == nil {
		return RoleUnknown, nil
	}

	return r.fetch(ctx, identity.Email())
}

// Peek reports the resolver state for the identity without triggering a
// fetch: the cached role if fresh, whether a fetch is in flight, and the last
// terminal fetch error for the key.
func (r *RoleResolver) Peek(identity Identity) RoleResult {
	if identity == nil {
		return RoleResult{Role: RoleUnknown}
	}

	key := identity.Email()
	if role, ok := r.cache.Get(key); ok {
		return RoleResult{Role: role}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return RoleResult{
		Role:    RoleUnknown,
		Loading: r.inflight[key] > 0,
		Err:     r.lastErr[key],
	}
}

func (r *RoleResolver) fetch(ctx context.Context, key string) (Role, error) {
	value, err, _ := r.group.Do(key, func() (any, error) {
		r.beginFetch(key)
		defer r.endFetch(key)

		var role Role
		operation := func() error {
			fetched, ferr := r.backend.FetchRole(ctx, key)
			if ferr != nil {
				if !IsNetworkError(ferr) {
					return backoff.Permanent(ferr)
				}
				return ferr
			}
			role = fetched
			return nil
		}

		policy := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), r.maxAttempts), ctx)
		if ferr := backoff.Retry(operation, policy); ferr != nil {
			return RoleUnknown, ferr
		}

		r.cache.Add(key, role)
		return role, nil
	})

	if err != nil {
		r.logger.Error("role fetch failed", "key", key, "error", err)
		r.setLastErr(key, err)
		r.recordActivity(ctx, key, err)
		return RoleUnknown, goerrors.Wrap(err, goerrors.CategoryAuth, "role fetch failed").
			WithTextCode(TextCodeRoleFetch).
			WithCode(goerrors.CodeUnauthorized)
	}

	r.setLastErr(key, nil)
	return value.(Role), nil
}

func (r *RoleResolver) beginFetch(key string) {
	r.mu.Lock()
	r.inflight[key]++
	r.mu.Unlock()
}

func (r *RoleResolver) endFetch(key string) {
	r.mu.Lock()
	if r.inflight[key] > 0 {
		r.inflight[key]--
	}
	if r.inflight[key] == 0 {
		delete(r.inflight, key)
	}
	r.mu.Unlock()
}

func (r *RoleResolver) setLastErr(key string, err error) {
	r.mu.Lock()
	if err == nil {
		delete(r.lastErr, key)
	} else {
		r.lastErr[key] = err
	}
	r.mu.Unlock()
}

func (r *RoleResolver) recordActivity(ctx context.Context, key string, err error) {
	sink := normalizeActivitySink(r.sink)
	event := ActivityEvent{
		EventType:  ActivityEventRoleFailure,
		Email:      key,
		Metadata:   map[string]any{"error": err.Error()},
		OccurredAt: time.Now(),
	}

	if serr := sink.Record(ctx, event); serr != nil {
		r.logger.Warn("activity sink record error: %v", serr)
	}
}
