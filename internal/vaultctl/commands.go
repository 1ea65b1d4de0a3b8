package vaultctl

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"text/tabwriter"

	"github.com/dmitrijs2005/catalogkeeper/internal/buildinfo"
	"github.com/dmitrijs2005/catalogkeeper/internal/common"
	"github.com/dmitrijs2005/catalogkeeper/internal/cryptox"
	"github.com/dmitrijs2005/catalogkeeper/internal/vault"
	"github.com/spf13/cobra"
)

func parseUserID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}

func newInitCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the vault in the selected store if it does not exist",
		Long: `Loads the vault from the selected store, creating a fresh one (with a new
master key and no user keys) when the store is empty. An unreadable store is
replaced by a fresh vault, exactly as the server does on start-up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withVault(cmd.Context(), func(v *vault.Vault) error {
				out := cmd.OutOrStdout()
				okColor.Fprintf(out, "Vault ready at %s\n", o.source.describe())
				fmt.Fprintf(out, "  user keys:  %d\n", v.Len())
				if v.HasMasterKey() {
					fmt.Fprintln(out, "  master key: present (not used for encryption)")
				} else {
					fmt.Fprintln(out, "  master key: missing")
				}
				return nil
			})
		},
	}
}

func newKeyCommand(o *options) *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "key <user-id>",
		Short: "Show (creating if needed) the key of a user",
		Long: `Prints the fingerprint of the user's key, creating and persisting a key on
first use. With --reveal the raw key is printed as base64.`,
		Example: `  vaultctl key 42
  vaultctl key 42 --reveal`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return o.withVault(cmd.Context(), func(v *vault.Vault) error {
				key, err := v.GetOrCreateKey(cmd.Context(), id)
				if err != nil {
					return err
				}
				defer common.WipeByteArray(key)

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "user %d fingerprint %s\n", id, cryptox.Fingerprint(key))
				if reveal {
					warnColor.Fprintf(cmd.ErrOrStderr(), "warning: printing raw key material\n")
					fmt.Fprintln(out, base64.StdEncoding.EncodeToString(key))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reveal, "reveal", false, "print the raw key as base64")
	return cmd
}

type keyListing struct {
	UserID      int64  `json:"user_id"`
	Fingerprint string `json:"fingerprint"`
}

func newListCommand(o *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users that have a key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withVault(cmd.Context(), func(v *vault.Vault) error {
				rows := make([]keyListing, 0, v.Len())
				for _, id := range v.UserIDs() {
					key, ok := v.Key(id)
					if !ok {
						continue
					}
					rows = append(rows, keyListing{UserID: id, Fingerprint: cryptox.Fingerprint(key)})
					common.WipeByteArray(key)
				}

				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(rows)
				}

				if len(rows) == 0 {
					dimColor.Fprintf(out, "No user keys in %s\n", o.source.describe())
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "USER ID\tFINGERPRINT")
				for _, r := range rows {
					fmt.Fprintf(tw, "%d\t%s\n", r.UserID, r.Fingerprint)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output in JSON format")
	return cmd
}

func newEncryptCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt <user-id> <text>",
		Short: "Encrypt text with a user's key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			box, err := o.cipherBox()
			if err != nil {
				return err
			}
			return o.withVault(cmd.Context(), func(v *vault.Vault) error {
				key, err := v.GetOrCreateKey(cmd.Context(), id)
				if err != nil {
					return err
				}
				defer common.WipeByteArray(key)

				blob, err := box.Encrypt(args[1], key)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), blob)
				return nil
			})
		},
	}
}

func newDecryptCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "decrypt <user-id> <blob>",
		Short: "Decrypt a blob with a user's key",
		Long: `Decrypts a base64 blob produced by the server or by "vaultctl encrypt".
The --cipher mode must match the one the blob was written with. Decrypt never
creates a key: an unknown user is an error.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			box, err := o.cipherBox()
			if err != nil {
				return err
			}
			return o.withVault(cmd.Context(), func(v *vault.Vault) error {
				key, ok := v.Key(id)
				if !ok {
					return fmt.Errorf("user %d has no key in %s", id, o.source.describe())
				}
				defer common.WipeByteArray(key)

				plain, err := box.Decrypt(args[1], key)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), plain)
				return nil
			})
		},
	}
}

func newCopyCommand(o *options) *cobra.Command {
	dest := newStoreFlags()
	dest.path = ""
	var force bool

	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy the vault to another key store",
		Long: `Copies the master key and every user key from the source store to the
destination store. The destination must be empty unless --force is given.
A user key that already exists in the destination is never replaced; such
users are reported.`,
		Example: `  vaultctl --path data/vault.json copy --to-store sqlite --to-path data/keys.db
  vaultctl copy --to-store s3 --to-s3-endpoint http://127.0.0.1:9000/ --to-s3-user admin --to-s3-password secret`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			src, err := openStore(ctx, o.source.config())
			if err != nil {
				return fmt.Errorf("open source key store: %w", err)
			}
			defer src.Close()

			st, err := src.Load(ctx)
			if err != nil {
				if errors.Is(err, vault.ErrStoreNotFound) {
					return fmt.Errorf("source %s holds no vault", o.source.describe())
				}
				return fmt.Errorf("load source: %w", err)
			}

			dst, err := openStore(ctx, dest.config())
			if err != nil {
				return fmt.Errorf("open destination key store: %w", err)
			}
			defer dst.Close()

			existing, err := dst.Load(ctx)
			switch {
			case err == nil && !force:
				return fmt.Errorf("destination %s already holds a vault, use --force to overwrite", dest.describe())
			case err == nil:
			case errors.Is(err, vault.ErrStoreNotFound):
				existing = nil
			default:
				o.logger.Warn(ctx, "destination unreadable, overwriting", "error", err)
				existing = nil
			}

			// destination keys win over source keys for the same user
			merged := st.Clone()
			if existing != nil {
				for id, k := range existing.UserKeys {
					merged.UserKeys[id] = k
				}
			}
			if err := dst.Init(ctx, merged); err != nil {
				return &vault.PersistenceError{Op: "copy", Err: err}
			}

			ids := make([]int64, 0, len(st.UserKeys))
			for id := range st.UserKeys {
				ids = append(ids, id)
			}
			slices.Sort(ids)

			var kept []int64
			for _, id := range ids {
				stored, err := dst.PutIfAbsent(ctx, id, st.UserKeys[id])
				if err != nil {
					return &vault.PersistenceError{Op: "copy", Err: err}
				}
				if !bytes.Equal(stored, st.UserKeys[id]) {
					kept = append(kept, id)
				}
			}

			out := cmd.OutOrStdout()
			okColor.Fprintf(out, "Copied %d user keys from %s to %s\n",
				len(ids)-len(kept), o.source.describe(), dest.describe())
			if len(kept) > 0 {
				warnColor.Fprintf(out, "Kept the destination's existing key for users %v\n", kept)
			}
			return nil
		},
	}

	dest.register(cmd.Flags(), "to-", "destination")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite keys in a non-empty destination")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			buildinfo.PrintBuildData(cmd.OutOrStdout())
		},
	}
}
