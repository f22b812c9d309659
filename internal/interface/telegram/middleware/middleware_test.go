package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbcub/studentdir/internal/application/query"
	"github.com/jbcub/studentdir/internal/domain/access"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

func newTestLimiter(t *testing.T, cfg RateLimitConfig) (*RateLimiter, *time.Time) {
	t.Helper()

	rl := NewRateLimiter(cfg)
	t.Cleanup(rl.Close)

	now := time.Date(2024, 9, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	rl, now := newTestLimiter(t, RateLimitConfig{RequestsPerMinute: 60, BurstSize: 2})
	ctx := context.Background()

	assert.True(t, rl.Check(ctx, 1).Allowed)
	assert.True(t, rl.Check(ctx, 1).Allowed)

	res := rl.Check(ctx, 1)
	require.False(t, res.Allowed)
	assert.Equal(t, time.Second, res.RetryAfter)
	assert.Contains(t, res.ResponseMessage, "1 s")

	// Другой пользователь не затронут.
	assert.True(t, rl.Check(ctx, 2).Allowed)

	*now = now.Add(time.Second)
	assert.True(t, rl.Check(ctx, 1).Allowed)
}

func TestRateLimiter_BanAfterViolations(t *testing.T) {
	rl, now := newTestLimiter(t, RateLimitConfig{
		RequestsPerMinute: 60,
		BurstSize:         1,
		BanThreshold:      2,
		BanDuration:       time.Minute,
	})
	ctx := context.Background()

	require.True(t, rl.Check(ctx, 7).Allowed)
	require.False(t, rl.Check(ctx, 7).Allowed)

	res := rl.Check(ctx, 7)
	require.False(t, res.Allowed)
	assert.Equal(t, time.Minute, res.RetryAfter)

	*now = now.Add(30 * time.Second)
	res = rl.Check(ctx, 7)
	assert.True(t, res.IsBanned)
	assert.Equal(t, 30*time.Second, res.RetryAfter)

	*now = now.Add(31 * time.Second)
	assert.True(t, rl.Check(ctx, 7).Allowed)
}

func TestRateLimiter_WhitelistAndReset(t *testing.T) {
	rl, _ := newTestLimiter(t, RateLimitConfig{
		RequestsPerMinute: 1,
		BurstSize:         1,
		WhitelistedUsers:  map[int64]bool{42: true},
	})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		assert.True(t, rl.Check(ctx, 42).Allowed)
	}

	require.True(t, rl.Check(ctx, 5).Allowed)
	require.False(t, rl.Check(ctx, 5).Allowed)
	rl.Reset(5)
	assert.True(t, rl.Check(ctx, 5).Allowed)
}

func TestRateLimiter_CleanupDropsIdleBuckets(t *testing.T) {
	rl, now := newTestLimiter(t, RateLimitConfig{RequestsPerMinute: 60, BurstSize: 1})

	rl.Check(context.Background(), 9)
	*now = now.Add(11 * time.Minute)
	rl.cleanup()

	_, ok := rl.buckets.Load(int64(9))
	assert.False(t, ok)
}

func TestRateLimitMessage(t *testing.T) {
	assert.Equal(t, "⏳ Too many requests. Try again in 1 s.", RateLimitMessage(0))
	assert.Equal(t, "⏳ Too many requests. Try again in 45 s.", RateLimitMessage(45*time.Second))
	assert.Equal(t, "⏳ Too many requests. Try again in 2 min.", RateLimitMessage(61*time.Second))
}

type fakeCounter struct {
	allow bool
	err   error
}

func (f fakeCounter) Allow(context.Context, int64) (bool, error) { return f.allow, f.err }

func TestSharedRateLimiter(t *testing.T) {
	ctx := context.Background()

	limited := NewSharedRateLimiter(fakeCounter{allow: false}, time.Minute, map[int64]bool{1: true}, nil)
	assert.True(t, limited.Check(ctx, 1).Allowed, "whitelisted")

	res := limited.Check(ctx, 2)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Minute, res.RetryAfter)

	broken := NewSharedRateLimiter(fakeCounter{err: errors.New("redis down")}, time.Minute, nil, nil)
	assert.True(t, broken.Check(ctx, 2).Allowed, "storage errors let requests through")
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTH
// ══════════════════════════════════════════════════════════════════════════════

type fakeChecker struct {
	roles map[int64]access.Role
	err   error
}

func (f fakeChecker) Handle(_ context.Context, q query.CheckAccessQuery) (access.Role, error) {
	if f.err != nil {
		return access.RoleNone, f.err
	}
	return f.roles[q.TelegramID], nil
}

type denialCounter struct {
	mu sync.Mutex
	n  int
}

func (d *denialCounter) AccessDenied() {
	d.mu.Lock()
	d.n++
	d.mu.Unlock()
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	checker := fakeChecker{roles: map[int64]access.Role{1: access.RoleAdmin, 2: access.RoleMember}}
	cfg := DefaultAuthConfig()

	tests := []struct {
		name     string
		id       int64
		need     Requirement
		cont     bool
		role     access.Role
		message  string
		denialed bool
	}{
		{"public stranger", 3, RequireNothing, true, access.RoleNone, "", false},
		{"public member keeps role", 2, RequireNothing, true, access.RoleMember, "", false},
		{"member search", 2, RequireMember, true, access.RoleMember, "", false},
		{"stranger search", 3, RequireMember, false, access.RoleNone, cfg.DeniedMessage, true},
		{"admin import", 1, RequireAdmin, true, access.RoleAdmin, "", false},
		{"member import", 2, RequireAdmin, false, access.RoleMember, cfg.AdminOnlyMessage, true},
		{"stranger import", 3, RequireAdmin, false, access.RoleNone, cfg.DeniedMessage, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			denials := &denialCounter{}
			m := NewAuthMiddleware(checker, denials, cfg)

			res, err := m.Authenticate(context.Background(), tt.id, "", tt.need)
			require.NoError(t, err)
			assert.Equal(t, tt.cont, res.ShouldContinue)
			assert.Equal(t, tt.role, res.Role)
			assert.Equal(t, tt.message, res.ResponseMessage)
			assert.Equal(t, tt.denialed, denials.n == 1)
		})
	}
}

func TestAuthMiddleware_CheckerError(t *testing.T) {
	m := NewAuthMiddleware(fakeChecker{err: errors.New("db down")}, nil, DefaultAuthConfig())

	res, err := m.Authenticate(context.Background(), 1, "", RequireNothing)
	require.NoError(t, err)
	assert.True(t, res.ShouldContinue)
	assert.Equal(t, access.RoleNone, res.Role)

	_, err = m.Authenticate(context.Background(), 1, "", RequireMember)
	assert.Error(t, err)
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, access.RoleNone, RoleFromContext(ctx))
	assert.Zero(t, TelegramIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = ContextWithRole(ctx, access.RoleAdmin)
	ctx = ContextWithTelegramID(ctx, 77)
	ctx = ContextWithRequestID(ctx, "req-1")

	assert.Equal(t, access.RoleAdmin, RoleFromContext(ctx))
	assert.Equal(t, int64(77), TelegramIDFromContext(ctx))
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
}

// ══════════════════════════════════════════════════════════════════════════════
// RECOVERY
// ══════════════════════════════════════════════════════════════════════════════

func TestRecoveryMiddleware(t *testing.T) {
	var captured *PanicInfo
	cfg := DefaultRecoveryConfig()
	cfg.OnPanic = func(_ context.Context, info *PanicInfo) { captured = info }
	m := NewRecoveryMiddleware(cfg)

	ctx := ContextWithRequestID(context.Background(), "req-9")

	res := m.RecoverWithHandler(ctx, 5, "search", func() error { panic("boom") })
	require.True(t, res.Recovered)
	assert.Equal(t, cfg.UserErrorMessage, res.UserMessage)
	require.NotNil(t, captured)
	assert.Equal(t, "boom", captured.Error.Error())
	assert.Equal(t, "req-9", captured.RequestID)
	assert.Equal(t, "search", captured.Action)
	assert.NotEmpty(t, captured.StackTrace)

	wantErr := errors.New("plain failure")
	res = m.RecoverWithHandler(ctx, 5, "search", func() error { return wantErr })
	assert.False(t, res.Recovered)
	assert.ErrorIs(t, res.Err, wantErr)
}

func TestRecoveryMiddleware_PanicFlood(t *testing.T) {
	cfg := DefaultRecoveryConfig()
	cfg.MaxPanicsPerMinute = 1
	calls := 0
	cfg.OnPanic = func(context.Context, *PanicInfo) { calls++ }
	m := NewRecoveryMiddleware(cfg)

	for i := 0; i < 3; i++ {
		res := m.RecoverWithHandler(context.Background(), 1, "x", func() error { panic(i) })
		assert.True(t, res.Recovered)
	}
	assert.Equal(t, 1, calls)
}

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

type recordedUpdate struct{ kind, status string }

type fakeRecorder struct{ got []recordedUpdate }

func (f *fakeRecorder) UpdateHandled(kind, status string) {
	f.got = append(f.got, recordedUpdate{kind, status})
}

func TestMetricsMiddleware(t *testing.T) {
	rec := &fakeRecorder{}
	m := NewMetricsMiddleware(MetricsConfig{Recorder: rec})

	m.Start("search", 1).End(StatusOK)
	m.Start("search", 1).EndWithError(errors.New("x"))
	rc := m.Start("import", 2)

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.TotalErrors)
	assert.Equal(t, int64(1), snap.ActiveRequests)
	require.Len(t, snap.Actions, 1)
	assert.Equal(t, "search", snap.Actions[0].Action)
	assert.Equal(t, map[string]int64{StatusOK: 1, StatusError: 1}, snap.Actions[0].Statuses)

	rc.End(StatusDenied)
	snap = m.Snapshot()
	require.Len(t, snap.Actions, 2)
	assert.Equal(t, "import", snap.Actions[0].Action)
	assert.Zero(t, snap.ActiveRequests)

	assert.Equal(t, []recordedUpdate{
		{"search", StatusOK},
		{"search", StatusError},
		{"import", StatusDenied},
	}, rec.got)
}

func TestMetricsMiddleware_SlowRequest(t *testing.T) {
	var slow []string
	m := NewMetricsMiddleware(MetricsConfig{
		SlowRequestThreshold: time.Millisecond,
		OnSlowRequest:        func(action string, _ time.Duration, _ int64) { slow = append(slow, action) },
	})

	rc := m.Start("document", 1)
	rc.StartTime = rc.StartTime.Add(-time.Second)
	rc.End(StatusOK)

	m.Start("search", 1).End(StatusOK)

	assert.Equal(t, []string{"document"}, slow)
}
