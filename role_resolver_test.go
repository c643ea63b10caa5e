package clubauth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	clubauth "github.com/memberhub/go-clubauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleNilIdentity(t *testing.T) {
	backend := &countingBackend{}
	r := clubauth.NewRoleResolver(backend)

	role, err := r.Role(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, clubauth.RoleUnknown, role)
	assert.Equal(t, 0, backend.calls())
}

func TestRoleServedFromCache(t *testing.T) {
	backend := &countingBackend{
		roleFn: func(ctx context.Context, email string) (clubauth.Role, error) {
			return clubauth.RoleClubManager, nil
		},
	}
	r := clubauth.NewRoleResolver(backend)
	identity := newTestIdentity("ada@club.test")

	role, err := r.Role(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, clubauth.RoleClubManager, role)

	role, err = r.Role(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, clubauth.RoleClubManager, role)

	// both reads within the freshness window share one backend request
	assert.Equal(t, 1, backend.calls())
}

func TestRoleCacheExpiry(t *testing.T) {
	backend := &countingBackend{}
	r := clubauth.NewRoleResolver(backend, clubauth.WithRoleCacheTTL(30*time.Millisecond))
	identity := newTestIdentity("ada@club.test")

	_, err := r.Role(context.Background(), identity)
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)

	_, err = r.Role(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, 2, backend.calls())
}

func TestRefetchBypassesCache(t *testing.T) {
	roles := []clubauth.Role{clubauth.RoleMember, clubauth.RoleClubManager}
	var idx int
	var mu sync.Mutex
	backend := &countingBackend{
		roleFn: func(ctx context.Context, email string) (clubauth.Role, error) {
			mu.Lock()
			defer mu.Unlock()
			role := roles[idx]
			idx++
			return role, nil
		},
	}
	r := clubauth.NewRoleResolver(backend)
	identity := newTestIdentity("ada@club.test")

	role, err := r.Role(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, clubauth.RoleMember, role)

	role, err = r.Refetch(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, clubauth.RoleClubManager, role)
	assert.Equal(t, 2, backend.calls())

	// the refreshed value is what the cache now serves
	role, err = r.Role(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, clubauth.RoleClubManager, role)
	assert.Equal(t, 2, backend.calls())
}

func TestRefetchFailureRetainsCachedRole(t *testing.T) {
	var mu sync.Mutex
	fail := false
	backend := &countingBackend{
		roleFn: func(ctx context.Context, email string) (clubauth.Role, error) {
			mu.Lock()
			defer mu.Unlock()
			if fail {
				return clubauth.RoleUnknown, errors.New("upstream said no")
			}
			return clubauth.RoleClubManager, nil
		},
	}
	r := clubauth.NewRoleResolver(backend)
	identity := newTestIdentity("ada@club.test")

	role, err := r.Role(context.Background(), identity)
	require.NoError(t, err)
	require.Equal(t, clubauth.RoleClubManager, role)

	mu.Lock()
	fail = true
	mu.Unlock()

	_, err = r.Refetch(context.Background(), identity)
	require.Error(t, err)

	// the stale value keeps serving until its window expires
	role, err = r.Role(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, clubauth.RoleClubManager, role)
}

func TestRoleConcurrentRequestsDeduplicated(t *testing.T) {
	release := make(chan struct{})
	backend := &countingBackend{
		roleFn: func(ctx context.Context, email string) (clubauth.Role, error) {
			<-release
			return clubauth.RoleAdmin, nil
		},
	}
	r := clubauth.NewRoleResolver(backend)
	identity := newTestIdentity("ada@club.test")

	const callers = 5
	var wg sync.WaitGroup
	results := make([]clubauth.Role, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.Role(context.Background(), identity)
		}(i)
	}

	// let every caller join the in-flight fetch before it completes
	require.Eventually(t, func() bool {
		return r.Peek(identity).Loading
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, clubauth.RoleAdmin, results[i])
	}
	assert.Equal(t, 1, backend.calls())
}

func TestRoleFetchError(t *testing.T) {
	backend := &countingBackend{
		roleFn: func(ctx context.Context, email string) (clubauth.Role, error) {
			return clubauth.RoleUnknown, errors.New("upstream said no")
		},
	}

	var events []clubauth.ActivityEvent
	sink := clubauth.ActivitySinkFunc(func(ctx context.Context, event clubauth.ActivityEvent) error {
		events = append(events, event)
		return nil
	})

	r := clubauth.NewRoleResolver(backend, clubauth.WithRoleActivitySink(sink))
	identity := newTestIdentity("ada@club.test")

	role, err := r.Role(context.Background(), identity)
	require.Error(t, err)
	assert.Equal(t, clubauth.RoleUnknown, role)
	assert.True(t, clubauth.IsRoleFetchError(err))

	// non-network failures are permanent, one attempt only
	assert.Equal(t, 1, backend.calls())

	result := r.Peek(identity)
	assert.Error(t, result.Err)
	assert.False(t, result.Loading)
	assert.Equal(t, clubauth.RoleUnknown, result.Role)

	require.Len(t, events, 1)
	assert.Equal(t, clubauth.ActivityEventRoleFailure, events[0].EventType)
	assert.Equal(t, "ada@club.test", events[0].Email)
}

func TestRoleRetriesNetworkFailures(t *testing.T) {
	var mu sync.Mutex
	var attempts int
	backend := &countingBackend{
		roleFn: func(ctx context.Context, email string) (clubauth.Role, error) {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts < 3 {
				return clubauth.RoleUnknown, clubauth.ErrNetwork
			}
			return clubauth.RoleMember, nil
		},
	}

	r := clubauth.NewRoleResolver(backend,
		clubauth.WithRoleBackOff(constantBackOff),
		clubauth.WithRoleRetries(5),
	)
	identity := newTestIdentity("ada@club.test")

	role, err := r.Role(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, clubauth.RoleMember, role)
	assert.Equal(t, 3, backend.calls())
}

func TestRoleErrorClearsOnSuccess(t *testing.T) {
	var mu sync.Mutex
	fail := true
	backend := &countingBackend{
		roleFn: func(ctx context.Context, email string) (clubauth.Role, error) {
			mu.Lock()
			defer mu.Unlock()
			if fail {
				return clubauth.RoleUnknown, errors.New("upstream said no")
			}
			return clubauth.RoleMember, nil
		},
	}
	r := clubauth.NewRoleResolver(backend)
	identity := newTestIdentity("ada@club.test")

	_, err := r.Role(context.Background(), identity)
	require.Error(t, err)
	require.Error(t, r.Peek(identity).Err)

	mu.Lock()
	fail = false
	mu.Unlock()

	role, err := r.Refetch(context.Background(), identity)
	require.NoError(t, err)
	assert.Equal(t, clubauth.RoleMember, role)
	assert.NoError(t, r.Peek(identity).Err)
	assert.Equal(t, clubauth.RoleMember, r.Peek(identity).Role)
}

func TestPeekLoading(t *testing.T) {
	release := make(chan struct{})
	backend := &countingBackend{
		roleFn: func(ctx context.Context, email string) (clubauth.Role, error) {
			<-release
			return clubauth.RoleMember, nil
		},
	}
	r := clubauth.NewRoleResolver(backend)
	identity := newTestIdentity("ada@club.test")

	assert.False(t, r.Peek(identity).Loading)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = r.Role(context.Background(), identity)
	}()

	require.Eventually(t, func() bool {
		return r.Peek(identity).Loading
	}, time.Second, time.Millisecond)

	close(release)
	<-done

	result := r.Peek(identity)
	assert.False(t, result.Loading)
	assert.Equal(t, clubauth.RoleMember, result.Role)
}

func TestPeekNilIdentity(t *testing.T) {
	r := clubauth.NewRoleResolver(&countingBackend{})

	result := r.Peek(nil)
	assert.Equal(t, clubauth.RoleUnknown, result.Role)
	assert.False(t, result.Loading)
	assert.NoError(t, result.Err)
}
