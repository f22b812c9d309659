package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jbcub/studentdir/internal/domain/access"
	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/testutil"
)

func inviteHash(t *testing.T, code string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestGrantAccess(t *testing.T) {
	users := testutil.NewUsers()
	cache := testutil.NewRoleCache()
	h := NewGrantAccessHandler(users, cache, quietLogger())
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, GrantAccessCommand{TelegramID: 10, Role: access.RoleAdmin, GrantedBy: "cli"}))
	require.NoError(t, h.Handle(ctx, GrantAccessCommand{Username: "@Some_One", Role: access.RoleMember, GrantedBy: "cli"}))

	all := users.All()
	require.Len(t, all, 2)
	assert.Equal(t, access.RoleAdmin, all[0].Role)
	assert.Equal(t, "some_one", all[1].Username)
	assert.Equal(t, []shared.TelegramID{10}, cache.Invalidated)

	// An admin is not demoted by a later member grant.
	require.NoError(t, h.Handle(ctx, GrantAccessCommand{TelegramID: 10, Role: access.RoleMember}))
	assert.Equal(t, access.RoleAdmin, users.All()[0].Role)
}

func TestGrantAccess_Validation(t *testing.T) {
	h := NewGrantAccessHandler(testutil.NewUsers(), nil, quietLogger())

	err := h.Handle(context.Background(), GrantAccessCommand{Role: access.RoleMember})
	assert.True(t, shared.IsValidation(err))

	err = h.Handle(context.Background(), GrantAccessCommand{TelegramID: 1, Role: "owner"})
	assert.True(t, shared.IsValidation(err))
}

func TestRedeemInvite(t *testing.T) {
	users := testutil.NewUsers()
	cache := testutil.NewRoleCache()
	_ = cache.SetRole(context.Background(), 77, access.RoleNone, 0)
	grant := NewGrantAccessHandler(users, cache, quietLogger())
	h := NewRedeemInviteHandler(grant, inviteHash(t, "cub-2025"))
	ctx := context.Background()

	err := h.Handle(ctx, RedeemInviteCommand{TelegramID: 77, Username: "newbie", Code: "wrong"})
	assert.ErrorIs(t, err, shared.ErrInvalidInvite)
	assert.Empty(t, users.All())

	require.NoError(t, h.Handle(ctx, RedeemInviteCommand{TelegramID: 77, Username: "newbie", Code: " cub-2025 "}))
	all := users.All()
	require.Len(t, all, 1)
	assert.Equal(t, access.RoleMember, all[0].Role)
	assert.Equal(t, "invite", all[0].GrantedBy)

	_, cached, _ := cache.GetRole(ctx, 77)
	assert.False(t, cached, "the remembered refusal is dropped")
}

func TestRedeemInvite_DisabledWithoutHash(t *testing.T) {
	h := NewRedeemInviteHandler(NewGrantAccessHandler(testutil.NewUsers(), nil, quietLogger()), "")

	err := h.Handle(context.Background(), RedeemInviteCommand{TelegramID: 1, Code: "anything"})
	assert.ErrorIs(t, err, shared.ErrInvalidInvite)
}

func TestHashInviteCode(t *testing.T) {
	hash, err := HashInviteCode("letmein")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("letmein")))

	_, err = HashInviteCode("  ")
	assert.Error(t, err)
}
