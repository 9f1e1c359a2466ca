package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
	"github.com/trezcool/shule/internal/testutil"
	emailsvc "github.com/trezcool/shule/services/email"
)

const strongPwd = "kW9#mPz2Lq"

func validationTags(err error) map[string]string {
	tags := make(map[string]string)
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			tags[fe.Field()] = fe.Tag()
		}
	}
	return tags
}

func TestNewUser_Validate(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	env.CreateUser(t, "Taken", "taken", "")

	tests := []struct {
		name    string
		nu      user.NewUser
		field   string
		wantTag string
	}{
		{name: "no username nor email", nu: user.NewUser{Name: "A", Password: strongPwd, PasswordConfirm: strongPwd}, field: "username", wantTag: "username_or_email"},
		{name: "short password", nu: user.NewUser{Name: "A", Username: "abc", Password: "aB1#", PasswordConfirm: "aB1#"}, field: "password", wantTag: "pwdminlen"},
		{name: "numeric password", nu: user.NewUser{Name: "A", Username: "abc", Password: "12345678", PasswordConfirm: "12345678"}, field: "password", wantTag: "pwdnotallnum"},
		{name: "simple password", nu: user.NewUser{Name: "A", Username: "abc", Password: "abcdefgh", PasswordConfirm: "abcdefgh"}, field: "password", wantTag: "pwdcplx"},
		{name: "password like username", nu: user.NewUser{Name: "A", Username: "mariposa", Password: "Mariposa1!", PasswordConfirm: "Mariposa1!"}, field: "password", wantTag: "pwdtoosim"},
		{name: "confirm mismatch", nu: user.NewUser{Name: "A", Username: "abc", Password: strongPwd, PasswordConfirm: "other"}, field: "password_confirm", wantTag: "eqfield"},
		{name: "unknown role", nu: user.NewUser{Name: "A", Username: "abc", Password: strongPwd, PasswordConfirm: strongPwd, Roles: []string{"janitor"}}, field: "roles", wantTag: "allroles"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nu.Validate(ctx, env.Validate, env.Users)
			require.Error(t, err)
			assert.Equal(t, tt.wantTag, validationTags(err)[tt.field])
		})
	}

	nu := user.NewUser{Name: "B", Username: " TAKEN ", Password: strongPwd, PasswordConfirm: strongPwd}
	assert.Equal(t, "username", testutil.ErrorField(nu.Validate(ctx, env.Validate, env.Users)))
	nu = user.NewUser{Name: "B", Email: "Taken@Test.cd", Password: strongPwd, PasswordConfirm: strongPwd}
	assert.Equal(t, "email", testutil.ErrorField(nu.Validate(ctx, env.Validate, env.Users)))
}

func TestService_CreateUpdate(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	other := env.CreateUser(t, "Other", "other", "")

	nu := user.NewUser{Name: " Jane Doe ", Username: "Jane", Email: "JANE@school.cd", Password: strongPwd, PasswordConfirm: strongPwd, Roles: []string{user.RoleTeacher}}
	require.NoError(t, nu.Validate(ctx, env.Validate, env.Users))
	usr, err := env.Users.Create(ctx, nu)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", usr.Name)
	assert.Equal(t, "jane", usr.Username)
	assert.Equal(t, "jane@school.cd", usr.Email)
	assert.True(t, usr.IsActive)
	assert.NoError(t, usr.CheckPassword(strongPwd))
	assert.True(t, usr.IsTeacher())

	got, err := env.Users.GetByUsernameOrEmail(ctx, "JANE@SCHOOL.CD")
	require.NoError(t, err)
	assert.Equal(t, usr.ID, got.ID)

	uu := user.UpdateUser{Username: "other"}
	assert.Equal(t, "username", testutil.ErrorField(uu.Validate(ctx, usr, env.Validate, env.Users)))

	inactive := false
	uu = user.UpdateUser{Name: "Jane D.", IsActive: &inactive}
	require.NoError(t, uu.Validate(ctx, usr, env.Validate, env.Users))
	usr, err = env.Users.Update(ctx, usr, uu)
	require.NoError(t, err)
	assert.Equal(t, "Jane D.", usr.Name)
	assert.Equal(t, "jane", usr.Username, "empty fields keep their value")
	assert.False(t, usr.IsActive)
	assert.Equal(t, []string{user.RoleTeacher}, usr.Roles)

	usr, err = env.Users.SetLastLogin(ctx, usr)
	require.NoError(t, err)
	assert.False(t, usr.LastLogin.IsZero())

	active := true
	found, err := env.Users.Query(ctx, &user.QueryFilter{IsActive: &active}, nil)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, other.ID, found[0].ID)

	require.NoError(t, env.Users.Delete(ctx, usr.ID))
	_, err = env.Users.GetByID(ctx, usr.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestService_PasswordReset(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	usr := env.CreateUser(t, "Jane", "jane", "Old#Pass123")
	idle := env.CreateUser(t, "Idle", "idle", "")
	idle.IsActive = false
	_, err := env.Repos.Users.UpdateUser(ctx, idle)
	require.NoError(t, err)

	emailsvc.ClearSentMessages()
	require.NoError(t, env.Users.RequestPasswordReset(ctx, "JANE@test.cd"))
	require.Eventually(t, func() bool { return len(emailsvc.SentMessages()) == 1 }, time.Second, 10*time.Millisecond)
	msg, ok := emailsvc.LastSentMessage()
	require.True(t, ok)
	assert.Contains(t, msg.TextContent, "/password-reset/")
	assert.Equal(t, "jane@test.cd", msg.To[0].Address)
	assert.Equal(t, "password_reset", msg.TemplateName)

	emailsvc.ClearSentMessages()
	assert.True(t, core.IsNotFound(env.Users.RequestPasswordReset(ctx, "idle@test.cd")))
	assert.True(t, core.IsNotFound(env.Users.RequestPasswordReset(ctx, "ghost@test.cd")))
	_, ok = emailsvc.LastSentMessage()
	assert.False(t, ok)

	token := user.MakeResetToken(env.Users, usr)
	uid := user.EncodeUID(usr)

	tests := []struct {
		name string
		data user.ResetUserPassword
	}{
		{name: "bad uid", data: user.ResetUserPassword{UID: "!!", Token: token, Password: strongPwd, PasswordConfirm: strongPwd}},
		{name: "unknown user", data: user.ResetUserPassword{UID: user.EncodeUID(user.User{ID: "0b7c1f59-3d0e-4b36-9f0c-cb9e57b1f0a1"}), Token: token, Password: strongPwd, PasswordConfirm: strongPwd}},
		{name: "bad token", data: user.ResetUserPassword{UID: uid, Token: "HE4TS-sigsig-sig", Password: strongPwd, PasswordConfirm: strongPwd}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, user.ErrInvalidReset, env.Users.ResetPassword(ctx, tt.data))
		})
	}

	require.NoError(t, env.Users.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token, Password: strongPwd, PasswordConfirm: strongPwd}))
	usr, err = env.Users.GetByID(ctx, usr.ID)
	require.NoError(t, err)
	assert.NoError(t, usr.CheckPassword(strongPwd))

	err = env.Users.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token, Password: "An0ther#Pwd", PasswordConfirm: "An0ther#Pwd"})
	assert.Equal(t, user.ErrInvalidReset, err, "tokens are single use")
}
