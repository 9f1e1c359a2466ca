package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(name, uname, email, pwd string, isAdmin bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	name = core.CleanString(name)

	usr, err := cli.findUser(ctx, uname, email)
	isNew := core.IsNotFound(err)
	if err != nil && !isNew {
		return err
	}

	now := time.Now().UTC()
	if isNew {
		usr = user.User{ID: uuid.NewString(), Roles: []string{}, CreatedAt: now}
	}
	usr.Username = uname
	usr.Email = email
	if name != "" {
		usr.Name = name
	}
	if isAdmin && !usr.HasAnyRole(user.RoleAdminOwner) {
		usr.Roles = append(usr.Roles, user.RoleAdminOwner)
	}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err := usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}

	if isNew {
		usr, err = cli.users.CreateUser(ctx, usr)
	} else {
		usr, err = cli.users.UpdateUser(ctx, usr)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %q saved (id: %s)\n", usr.Username, usr.ID)
	return nil
}

// findUser looks a user up by username first, then by email.
func (cli *commandLine) findUser(ctx context.Context, uname, email string) (user.User, error) {
	usr, err := cli.users.GetUser(ctx, user.GetFilter{Username: uname})
	if err == nil || !core.IsNotFound(err) {
		return usr, err
	}
	return cli.users.GetUser(ctx, user.GetFilter{Email: email})
}
