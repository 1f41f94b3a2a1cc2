package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/client"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/prompt"
)

// getSimpleText and getPassword are swapped in tests.
var getSimpleText = prompt.GetSimpleText
var getPassword = prompt.GetPassword

// Register prompts for email, full name and password, creates the account
// and keeps the issued tokens.
func (a *App) Register(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	fullName, err := getSimpleText(a.reader, "Enter full name", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	r, err := a.client.Register(ctx, email, string(password), fullName)
	if err != nil {
		return a.fail("Registration failed", err)
	}
	a.signIn(r)
	fmt.Fprintf(a.out, "Registered as %s (%s)\n", r.Email, strings.Join(r.Roles, ", "))
	return nil
}

func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	r, err := a.client.Login(ctx, email, string(password))
	if err != nil {
		return a.fail("Login unsuccessful", err)
	}
	a.signIn(r)
	fmt.Fprintf(a.out, "Logged in as %s\n", r.Email)
	return nil
}

func (a *App) Refresh(ctx context.Context) error {
	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	r, err := a.client.Refresh(ctx)
	if err != nil {
		if errors.Is(err, common.ErrUnauthenticated) {
			a.signOut()
		}
		return a.fail("Refresh failed", err)
	}
	a.signIn(r)
	fmt.Fprintln(a.out, "Tokens refreshed")
	return nil
}

// Logout revokes every session server-side and forgets the local identity
// even when the call fails.
func (a *App) Logout(ctx context.Context) error {
	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	err := a.client.Logout(ctx)
	a.signOut()
	if err != nil {
		return a.fail("Logout failed", err)
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) Me(ctx context.Context) error {
	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	u, err := a.client.Me(ctx)
	if err != nil {
		return a.fail("Request failed", err)
	}
	fmt.Fprintf(a.out, "%s  %s  %q  [%s]\n", u.ID, u.Email, u.FullName, strings.Join(u.Roles, ", "))
	return nil
}

func (a *App) Users(ctx context.Context) error {
	ctx, cancel := a.requestContext(ctx)
	defer cancel()

	users, err := a.client.ListUsers(ctx)
	if err != nil {
		return a.fail("Request failed", err)
	}
	for _, u := range users {
		fmt.Fprintf(a.out, "%s  %s  %q  [%s]\n", u.ID, u.Email, u.FullName, strings.Join(u.Roles, ", "))
	}
	fmt.Fprintf(a.out, "%d user(s)\n", len(users))
	return nil
}

func (a *App) fail(what string, err error) error {
	switch {
	case errors.Is(err, client.ErrUnavailable):
		fmt.Fprintf(a.out, "%s: server unavailable\n", what)
	case errors.Is(err, common.ErrForbidden):
		fmt.Fprintf(a.out, "%s: not allowed\n", what)
	default:
		fmt.Fprintf(a.out, "%s: %v\n", what, err)
	}
	return err
}
