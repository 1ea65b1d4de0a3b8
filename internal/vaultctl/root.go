package vaultctl

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/catalogkeeper/internal/cryptox"
	"github.com/dmitrijs2005/catalogkeeper/internal/logging"
	"github.com/dmitrijs2005/catalogkeeper/internal/vault"
	"github.com/dmitrijs2005/catalogkeeper/internal/vault/keystores"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// openStore is replaced in tests.
var openStore = keystores.Open

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	dimColor  = color.New(color.Faint)
)

type options struct {
	source   *storeFlags
	cipher   string
	logLevel string
	logger   logging.Logger
}

// NewRootCommand builds the vaultctl command tree. Each call returns a fresh
// tree with its own flag state.
func NewRootCommand() *cobra.Command {
	o := &options{source: newStoreFlags(), cipher: string(cryptox.ModeCTR), logLevel: "warn"}

	root := &cobra.Command{
		Use:   "vaultctl",
		Short: "Administer the per-user key vault",
		Long: `vaultctl inspects and provisions the per-user encryption keys that protect
product descriptions.

Keys live in a key store: a JSON file, an S3 object, or a PostgreSQL or
SQLite table. Select it with --store and the matching --path, --dsn or
--s3-* flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			o.logger = logging.NewText(cmd.ErrOrStderr(), o.logLevel)
		},
	}

	fs := root.PersistentFlags()
	o.source.register(fs, "", "source")
	fs.StringVar(&o.cipher, "cipher", o.cipher, "cipher mode for encrypt/decrypt (ctr, gcm)")
	fs.StringVar(&o.logLevel, "log-level", o.logLevel, "diagnostic log level (debug, info, warn, error)")

	root.AddCommand(
		newInitCommand(o),
		newKeyCommand(o),
		newListCommand(o),
		newEncryptCommand(o),
		newDecryptCommand(o),
		newCopyCommand(o),
		newVersionCommand(),
	)
	return root
}

// withVault opens the source store, builds a vault over it and hands it to
// fn. The store is closed afterwards.
func (o *options) withVault(ctx context.Context, fn func(v *vault.Vault) error) error {
	store, err := openStore(ctx, o.source.config())
	if err != nil {
		return fmt.Errorf("open key store: %w", err)
	}
	defer store.Close()

	v, err := vault.New(ctx, store, o.logger)
	if err != nil {
		return err
	}
	return fn(v)
}

func (o *options) cipherBox() (*cryptox.CipherBox, error) {
	mode, err := cryptox.ParseMode(o.cipher)
	if err != nil {
		return nil, err
	}
	return cryptox.NewCipherBox(mode)
}
