package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/catalogkeeper/internal/client/client"
	"github.com/dmitrijs2005/catalogkeeper/internal/client/config"
	"github.com/dmitrijs2005/catalogkeeper/internal/client/repositories/session"
	"github.com/dmitrijs2005/catalogkeeper/internal/common"
	"github.com/dmitrijs2005/catalogkeeper/internal/logging"
	"github.com/dmitrijs2005/catalogkeeper/internal/rpcapi"
	"github.com/fatih/color"
)

var (
	okColor   = color.New(color.FgGreen)
	errColor  = color.New(color.FgRed)
	dimColor  = color.New(color.Faint)
	headColor = color.New(color.Bold)
)

type App struct {
	config   *config.Config
	api      client.Client
	sessions session.Repository
	db       *sql.DB
	logger   logging.Logger
	reader   *bufio.Reader
	out      io.Writer

	user  *rpcapi.Tokens
	email string
}

// NewApp opens the local session database and connects the catalog client.
// Every token pair the client receives is persisted so a later start can
// resume the session.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewText(os.Stderr, c.LogLevel)

	db, err := client.OpenSessionDB(ctx, c.SessionDBPath)
	if err != nil {
		return nil, fmt.Errorf("error opening session database: %w", err)
	}

	api, err := client.NewCatalogClient(c.ServerEndpointAddr, c.RequestTimeout)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error creating client: %w", err)
	}

	a := &App{
		config:   c,
		api:      api,
		sessions: session.NewSQLiteRepository(db),
		db:       db,
		logger:   logger,
		reader:   bufio.NewReader(os.Stdin),
		out:      os.Stdout,
	}
	api.OnTokens(a.saveTokens)

	return a, nil
}

// saveTokens runs on every new token pair, including silent refreshes.
func (a *App) saveTokens(t rpcapi.Tokens) {
	if err := a.sessions.Set(context.Background(), session.KeyRefreshToken, t.RefreshToken); err != nil {
		a.logger.Warn(context.Background(), "could not persist session", "error", err)
	}
}

// Run resumes a saved session if there is one and then blocks in the REPL
// until the user exits or stdin is closed.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	a.resume(ctx)
	runREPL(ctx, a, a.status, a.reader)
	return nil
}

func (a *App) close() {
	if err := a.api.Close(); err != nil {
		a.logger.Warn(context.Background(), "error closing client", "error", err)
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

// resume signs in with the stored refresh token. A rejected token is
// forgotten; an unreachable server keeps it for the next start.
func (a *App) resume(ctx context.Context) {
	token, err := a.sessions.Get(ctx, session.KeyRefreshToken)
	if err != nil {
		a.logger.Warn(ctx, "could not read session", "error", err)
		return
	}
	if token == "" {
		return
	}

	t, err := a.api.Resume(ctx, token)
	switch {
	case err == nil:
		a.user = t
		a.email, _ = a.sessions.Get(ctx, session.KeyEmail)
		okColor.Fprintf(a.out, "Welcome back, %s!\n", t.DisplayName)
	case errors.Is(err, client.ErrUnavailable):
		a.report(fmt.Errorf("could not restore session: %w", err))
	default:
		a.logger.Debug(ctx, "saved session rejected", "error", err)
		if err := a.sessions.Clear(ctx); err != nil {
			a.logger.Warn(ctx, "could not clear session", "error", err)
		}
	}
}

func (a *App) isLoggedIn() bool {
	return a.user != nil
}

func (a *App) isAdmin() bool {
	return a.user != nil && strings.EqualFold(a.user.Role, common.RoleAdmin)
}

func (a *App) status() string {
	if !a.isLoggedIn() {
		return "not logged in"
	}
	name := a.email
	if name == "" {
		name = a.user.DisplayName
	}
	if a.isAdmin() {
		return name + " (admin)"
	}
	return name
}

func (a *App) requireLogin() error {
	if !a.isLoggedIn() {
		return client.ErrNotLoggedIn
	}
	return nil
}

// report prints err for the user. An expired session logs the user out
// locally so the prompt reflects reality.
func (a *App) report(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, client.ErrUnauthorized) && a.isLoggedIn() {
		a.forget(context.Background())
		err = fmt.Errorf("%w, please log in again", err)
	}
	errColor.Fprintln(a.out, "Error:", err)
}

func (a *App) forget(ctx context.Context) {
	a.user = nil
	a.email = ""
	if err := a.sessions.Clear(ctx); err != nil {
		a.logger.Warn(ctx, "could not clear session", "error", err)
	}
}
