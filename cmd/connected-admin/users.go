package main

import (
	"context"
	"fmt"

	"connected/pkg/types"
)

// errUnknownUser is returned when a command names an email with no identity
type errUnknownUser string

func (e errUnknownUser) Error() string {
	return fmt.Sprintf("no user with email %s", string(e))
}

// resetPassword sets a new password and keeps the stored role
func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	identity, err := cli.accounts.FindIdentity(ctx, email)
	if err != nil {
		return err
	}
	if identity == nil {
		return errUnknownUser(types.NormalizeEmail(email))
	}
	_, err = cli.accounts.AdminUpdateUserByID(ctx, identity.ID, pwd, types.Metadata{Role: identity.Role, PasswordSet: true})
	return err
}

// addUser updates or creates an identity with a password already set
func (cli *commandLine) addUser(email string, role types.Role, pwd string) error {
	ctx := context.Background()
	metadata := types.Metadata{Role: role, PasswordSet: true}

	identity, err := cli.accounts.FindIdentity(ctx, email)
	if err != nil {
		return err
	}
	if identity == nil {
		_, err = cli.accounts.AdminCreateUser(ctx, email, pwd, metadata)
		return err
	}
	_, err = cli.accounts.AdminUpdateUserByID(ctx, identity.ID, pwd, metadata)
	return err
}
