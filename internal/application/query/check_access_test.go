package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbcub/studentdir/internal/domain/access"
	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/testutil"
)

func TestCheckAccess(t *testing.T) {
	users := []access.User{
		{TelegramID: 100, Username: "member_one", Role: access.RoleMember},
		{Username: "by_name", Role: access.RoleMember},
		{TelegramID: 300, Role: access.RoleAdmin},
	}
	policy := AccessPolicy{AdminIDs: []int64{1}, AdminUsernames: []string{"@Dean"}}

	tests := []struct {
		name   string
		policy AccessPolicy
		query  CheckAccessQuery
		want   access.Role
	}{
		{name: "configured admin by id", policy: policy, query: CheckAccessQuery{TelegramID: 1}, want: access.RoleAdmin},
		{name: "configured admin by username", policy: policy, query: CheckAccessQuery{TelegramID: 2, Username: "dean"}, want: access.RoleAdmin},
		{name: "stored member", policy: policy, query: CheckAccessQuery{TelegramID: 100}, want: access.RoleMember},
		{name: "stored admin", policy: policy, query: CheckAccessQuery{TelegramID: 300}, want: access.RoleAdmin},
		{name: "member granted by username", policy: policy, query: CheckAccessQuery{TelegramID: 200, Username: "@By_Name"}, want: access.RoleMember},
		{name: "stranger", policy: policy, query: CheckAccessQuery{TelegramID: 999, Username: "who"}, want: access.RoleNone},
		{name: "stranger in open mode", policy: AccessPolicy{Open: true}, query: CheckAccessQuery{TelegramID: 999}, want: access.RoleMember},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewCheckAccessHandler(testutil.NewUsers(users...), nil, tt.policy, quietLogger())
			role, err := h.Handle(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, role)
		})
	}
}

func TestCheckAccess_BindsTelegramIDToUsernameGrant(t *testing.T) {
	repo := testutil.NewUsers(access.User{Username: "by_name", Role: access.RoleMember})
	h := NewCheckAccessHandler(repo, nil, AccessPolicy{}, quietLogger())

	_, err := h.Handle(context.Background(), CheckAccessQuery{TelegramID: 200, Username: "by_name"})
	require.NoError(t, err)

	all := repo.All()
	require.Len(t, all, 1)
	assert.Equal(t, shared.TelegramID(200), all[0].TelegramID)

	// The grant now follows the account even after a username change.
	role, err := h.Handle(context.Background(), CheckAccessQuery{TelegramID: 200, Username: "renamed"})
	require.NoError(t, err)
	assert.Equal(t, access.RoleMember, role)
}

func TestCheckAccess_CachesDecisions(t *testing.T) {
	repo := testutil.NewUsers(access.User{TelegramID: 100, Role: access.RoleMember})
	cache := testutil.NewRoleCache()
	h := NewCheckAccessHandler(repo, cache, AccessPolicy{CacheTTL: time.Minute}, quietLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		role, err := h.Handle(ctx, CheckAccessQuery{TelegramID: 100})
		require.NoError(t, err)
		assert.Equal(t, access.RoleMember, role)
	}
	assert.Equal(t, 1, repo.Finds)

	// Refusals are cached too.
	for i := 0; i < 2; i++ {
		role, err := h.Handle(ctx, CheckAccessQuery{TelegramID: 555})
		require.NoError(t, err)
		assert.Equal(t, access.RoleNone, role)
	}
	assert.Equal(t, 2, repo.Finds)
}

func TestCheckAccess_RepositoryFailure(t *testing.T) {
	repo := testutil.NewUsers()
	repo.FindErr = errors.New("db down")
	h := NewCheckAccessHandler(repo, nil, AccessPolicy{Open: true}, quietLogger())

	role, err := h.Handle(context.Background(), CheckAccessQuery{TelegramID: 7})
	require.Error(t, err)
	assert.Equal(t, access.RoleNone, role, "open mode does not mask storage errors")
}
