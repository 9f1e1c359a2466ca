package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/session"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/internal/testutil"
)

const pwd = "Sup3r-s3cret"

func newAuthenticator(t *testing.T) (*Authenticator, *testutil.Env, *session.MemoryTracker) {
	t.Helper()
	env := testutil.NewEnv(t)
	tracker := session.NewMemoryTracker(env.Conf.Session.IdleTimeout)
	return New(env.Users, tracker, env.Conf), env, tracker
}

func TestAuthenticator_Login(t *testing.T) {
	ctx := context.Background()
	a, env, tracker := newAuthenticator(t)
	admin := env.CreateUser(t, "Admin", "admin", pwd, user.RoleAdminPrincipal)
	inactive := env.CreateUser(t, "Gone", "gone", pwd)
	inactive.IsActive = false
	_, err := env.Repos.Users.UpdateUser(ctx, inactive)
	require.NoError(t, err)

	tests := []struct {
		name    string
		uname   string
		pwd     string
		wantErr error
	}{
		{"unknown user", "nobody", pwd, ErrAuthenticationFailed},
		{"wrong password", "admin", "nope", ErrAuthenticationFailed},
		{"inactive", "gone", pwd, ErrAccountDeactivated},
		{"by username", "ADMIN ", pwd, nil},
		{"by email", "admin@test.cd", pwd, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, usr, err := a.Login(ctx, tt.uname, tt.pwd)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				assert.Empty(t, token)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, admin.ID, usr.ID)
			assert.False(t, usr.LastLogin.IsZero())

			claims, err := a.Parse(token)
			require.NoError(t, err)
			assert.Equal(t, admin.ID, claims.Subject)
			assert.True(t, claims.IsAdmin)
			assert.False(t, claims.IsTeacher)
			assert.NotEmpty(t, claims.SessionID())
			assert.NoError(t, a.Touch(ctx, claims))
		})
	}
	assert.Equal(t, 2, tracker.Len())
}

func TestAuthenticator_Parse(t *testing.T) {
	a, env, _ := newAuthenticator(t)
	usr := env.CreateUser(t, "Jane", "jane", pwd)

	token, err := a.IssueToken(context.Background(), usr)
	require.NoError(t, err)

	_, err = a.Parse(token + "x")
	assert.Equal(t, ErrInvalidToken, err)

	other := New(env.Users, session.NewMemoryTracker(time.Minute), testutil.Config())
	other.conf.SecretKey = "another secret"
	_, err = other.Parse(token)
	assert.Equal(t, ErrInvalidToken, err)

	claims := a.NewClaims(usr, "sid")
	claims.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	expired, err := a.Sign(claims)
	require.NoError(t, err)
	_, err = a.Parse(expired)
	assert.Equal(t, ErrInvalidToken, err)
}

func TestAuthenticator_Session(t *testing.T) {
	ctx := context.Background()
	a, env, _ := newAuthenticator(t)
	usr := env.CreateUser(t, "Jane", "jane", pwd, user.RoleTeacher)

	t.Run("logout", func(t *testing.T) {
		token, _, err := a.Login(ctx, "jane", pwd)
		require.NoError(t, err)
		claims, err := a.Parse(token)
		require.NoError(t, err)

		require.NoError(t, a.Logout(ctx, claims))
		assert.Equal(t, ErrSessionExpired, a.Touch(ctx, claims))
	})

	t.Run("no session id", func(t *testing.T) {
		assert.Equal(t, ErrSessionExpired, a.Touch(ctx, a.NewClaims(usr, "")))
	})

	t.Run("revoke user", func(t *testing.T) {
		t1, _, err := a.Login(ctx, "jane", pwd)
		require.NoError(t, err)
		t2, _, err := a.Login(ctx, "jane", pwd)
		require.NoError(t, err)

		require.NoError(t, a.RevokeUser(ctx, usr.ID))
		for _, token := range []string{t1, t2} {
			claims, err := a.Parse(token)
			require.NoError(t, err)
			assert.Equal(t, ErrSessionExpired, a.Touch(ctx, claims))
		}
	})
}

func TestAuthenticator_Refresh(t *testing.T) {
	ctx := context.Background()
	a, env, _ := newAuthenticator(t)
	usr := env.CreateUser(t, "Jane", "jane", pwd, user.RoleStudent)

	token, err := a.IssueToken(ctx, usr)
	require.NoError(t, err)
	claims, err := a.Parse(token)
	require.NoError(t, err)

	refreshed, err := a.Refresh(ctx, claims)
	require.NoError(t, err)
	newClaims, err := a.Parse(refreshed)
	require.NoError(t, err)
	assert.Equal(t, claims.SessionID(), newClaims.SessionID())
	assert.Equal(t, claims.OrigIssuedAt, newClaims.OrigIssuedAt)
	assert.True(t, newClaims.IsStudent)

	t.Run("refresh window over", func(t *testing.T) {
		old := a.NewClaims(usr, claims.SessionID(), time.Now().Add(-5*time.Hour).Unix())
		_, err := a.Refresh(ctx, old)
		assert.Equal(t, ErrRefreshExpired, err)
	})

	t.Run("deactivated", func(t *testing.T) {
		usr.IsActive = false
		_, err := env.Repos.Users.UpdateUser(ctx, usr)
		require.NoError(t, err)

		_, err = a.Refresh(ctx, claims)
		assert.Equal(t, ErrAccountDeactivated, err)
		assert.Equal(t, ErrSessionExpired, a.Touch(ctx, claims))
	})

	t.Run("deleted", func(t *testing.T) {
		require.NoError(t, env.Users.Delete(ctx, usr.ID))
		_, err := a.Refresh(ctx, claims)
		assert.Equal(t, ErrInvalidToken, err)
	})
}

func TestClaims_HasAnyRole(t *testing.T) {
	claims := &Claims{Roles: []string{user.RoleAdminPrincipal}}
	assert.True(t, claims.HasAnyRole())
	assert.True(t, claims.HasAnyRole(user.RoleAdmin))
	assert.True(t, claims.HasAnyRole(user.RoleTeacher, user.RoleAdminPrincipal))
	assert.False(t, claims.HasAnyRole(user.RoleAdminOwner))
	assert.False(t, claims.HasAnyRole(user.RoleTeacher))
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = time.Now }()

	rl := NewRateLimiter(1, 2)
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"))

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))

	now = now.Add(visitorTTL + time.Minute)
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.Len(t, rl.visitors, 1)
}
