package cli

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/catalogkeeper/internal/client/repositories/session"
	"github.com/dmitrijs2005/catalogkeeper/internal/common"
	"github.com/dmitrijs2005/catalogkeeper/internal/rpcapi"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for name, email and password and creates an account.
// The new user is signed in straight away.
func (a *App) Register(ctx context.Context) error {
	if a.isLoggedIn() {
		return errors.New("already logged in, log out first")
	}

	first, err := getSimpleText(a.reader, "First name", a.out)
	if err != nil {
		return err
	}
	last, err := getSimpleText(a.reader, "Last name", a.out)
	if err != nil {
		return err
	}
	email, err := getSimpleText(a.reader, "Email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	t, err := a.api.Register(ctx, rpcapi.Registration{
		FirstName: first,
		LastName:  last,
		Email:     email,
		Password:  string(password),
	})
	if err != nil {
		return err
	}

	a.signedIn(ctx, t, email)
	okColor.Fprintf(a.out, "Welcome, %s!\n", t.DisplayName)
	return nil
}

// Login prompts for credentials and signs in.
func (a *App) Login(ctx context.Context) error {
	if a.isLoggedIn() {
		return errors.New("already logged in, log out first")
	}

	email, err := getSimpleText(a.reader, "Email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	t, err := a.api.Login(ctx, email, string(password))
	if err != nil {
		return err
	}

	a.signedIn(ctx, t, email)
	okColor.Fprintf(a.out, "Logged in as %s\n", t.DisplayName)
	return nil
}

func (a *App) signedIn(ctx context.Context, t *rpcapi.Tokens, email string) {
	a.user = t
	a.email = email
	if err := a.sessions.Set(ctx, session.KeyEmail, email); err != nil {
		a.logger.Warn(ctx, "could not persist session", "error", err)
	}
}

// Logout revokes the session on the server and forgets it locally. The
// local session is dropped even when the server cannot be reached.
func (a *App) Logout(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}

	err := a.api.Logout(ctx)
	a.forget(ctx)
	if err != nil {
		a.logger.Warn(ctx, "server logout failed", "error", err)
	}

	okColor.Fprintln(a.out, "Logged out")
	return nil
}

// Ping checks that the server is reachable.
func (a *App) Ping(ctx context.Context) error {
	if err := a.api.Ping(ctx); err != nil {
		return err
	}
	okColor.Fprintln(a.out, "pong")
	return nil
}
