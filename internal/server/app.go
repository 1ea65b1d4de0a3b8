// Package server is the composition root of the catalog server. It opens
// the database, the key vault and the cipher, wires the services, seeds the
// admin account and runs the gRPC endpoint until a shutdown signal.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/catalogkeeper/internal/cryptox"
	"github.com/dmitrijs2005/catalogkeeper/internal/logging"
	"github.com/dmitrijs2005/catalogkeeper/internal/server/config"
	"github.com/dmitrijs2005/catalogkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/catalogkeeper/internal/server/services"
	"github.com/dmitrijs2005/catalogkeeper/internal/vault"
	"github.com/dmitrijs2005/catalogkeeper/internal/vault/keystores"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/catalogkeeper/internal/server/grpc"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// openDB is replaced in tests.
var openDB = func(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

type App struct {
	config         *config.Config
	logger         logging.Logger
	db             *sql.DB
	store          vault.Store
	userService    *services.UserService
	productService *services.ProductService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	mode, err := cryptox.ParseMode(c.CipherMode)
	if err != nil {
		return nil, err
	}
	box, err := cryptox.NewCipherBox(mode)
	if err != nil {
		return nil, err
	}

	db, err := openDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db}
	ok := false
	defer func() {
		if !ok {
			app.close(ctx)
		}
	}()

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	app.store, err = keystores.Open(ctx, keyStoreConfig(c, db))
	if err != nil {
		return nil, fmt.Errorf("key store error: %w", err)
	}

	v, err := vault.New(ctx, app.store, logger.With("module", "vault"))
	if err != nil {
		return nil, fmt.Errorf("vault error: %w", err)
	}

	app.userService = services.NewUserService(db, rm, c, logger.With("module", "users"))
	app.productService = services.NewProductService(db, rm, v, box, logger.With("module", "products"))

	created, err := app.userService.EnsureAdmin(ctx, c.AdminEmail, c.AdminPassword)
	if err != nil {
		return nil, fmt.Errorf("admin seed error: %w", err)
	}

	logger.Info(ctx, "app initialized",
		"key_store", c.KeyStoreType,
		"cipher_mode", string(box.Mode()),
		"vault_users", v.Len(),
		"admin_created", created)

	ok = true
	return app, nil
}

// keyStoreConfig maps server settings onto a key store. The postgres kind
// shares the application database.
func keyStoreConfig(c *config.Config, db *sql.DB) keystores.Config {
	kc := keystores.Config{
		Kind: c.KeyStoreType,
		Path: c.KeyStorePath,
		S3: keystores.S3Config{
			RootUser:     c.S3RootUser,
			RootPassword: c.S3RootPassword,
			Bucket:       c.S3Bucket,
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			Object:       c.S3KeyStoreObject,
		},
	}
	if kc.Kind == keystores.KindPostgres {
		kc.DB = db
	}
	return kc
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// sweepRefreshTokens purges expired refresh tokens every interval until ctx
// is done.
func (app *App) sweepRefreshTokens(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := app.userService.PurgeExpiredTokens(ctx); err != nil && !errors.Is(err, context.Canceled) {
				app.logger.Warn(ctx, "refresh token sweep failed", "error", err)
			}
		}
	}
}

// Run serves until ctx is cancelled or a shutdown signal arrives, then
// releases the database and the key store.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.userService, app.productService, app.config.SecretKey)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Run(gctx)
	})
	g.Go(func() error {
		return app.sweepRefreshTokens(gctx, app.config.TokenSweepInterval)
	})

	err := g.Wait()
	app.close(context.WithoutCancel(ctx))

	if err != nil {
		app.logger.Error(ctx, err.Error())
		return err
	}
	app.logger.Info(ctx, "App stopped")
	return nil
}

func (app *App) close(ctx context.Context) {
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			app.logger.Warn(ctx, "key store close failed", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Warn(ctx, "db close failed", "error", err)
		}
	}
}
