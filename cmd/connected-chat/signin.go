package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"connected/pkg/client"
	"connected/pkg/types"
)

// maxSteps bounds the sign-in loop; every screen is visited at most once in a normal flow
const maxSteps = 6

// Prompter asks the user for input
type Prompter interface {
	Line(question string) (string, error)
	Password(question string) (string, error)
	Say(message string)
}

// Authenticator is the sign-in surface of the client
type Authenticator interface {
	Login(ctx context.Context, email string, role types.Role) (*client.Decision, error)
	EnterPassword(ctx context.Context, email, password string) (*client.Decision, error)
	Redeem(ctx context.Context, link string) (*client.Decision, error)
	CreatePassword(ctx context.Context, password string) (*client.Decision, error)
}

var errDenied = errors.New("access denied: ask your coordinator to add you to the roster")

// signIn follows the service's routing decisions until a dashboard is reached
func signIn(ctx context.Context, auth Authenticator, email string, prompt Prompter) error {
	decision, err := auth.Login(ctx, email, types.RoleNone)
	for step := 0; step < maxSteps; step++ {
		if err != nil {
			// wrong passwords and rejected input keep the user on a screen they can retry
			retry := client.IsStatus(err, http.StatusUnauthorized) || client.IsStatus(err, http.StatusBadRequest)
			if !retry || decision.Next == "" {
				return err
			}
			prompt.Say(err.Error())
		}

		screen, _, _ := strings.Cut(decision.Next, "?")
		switch screen {
		case "/teacher", "/student":
			return nil
		case "/error":
			return errDenied
		case "/login":
			return fmt.Errorf("sign-in was not accepted, try again")
		case "/check-email":
			link, perr := prompt.Line("Paste the sign-in link from your email: ")
			if perr != nil {
				return perr
			}
			decision, err = auth.Redeem(ctx, link)
		case "/password":
			pwd, perr := prompt.Password("Password: ")
			if perr != nil {
				return perr
			}
			decision, err = auth.EnterPassword(ctx, email, pwd)
		case "/passrst":
			pwd, perr := prompt.Password("Choose a password: ")
			if perr != nil {
				return perr
			}
			decision, err = auth.CreatePassword(ctx, pwd)
		default:
			return fmt.Errorf("unexpected screen %q", decision.Next)
		}
	}
	return errors.New("sign-in did not complete")
}
