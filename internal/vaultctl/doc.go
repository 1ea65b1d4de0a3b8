// Package vaultctl implements the vaultctl admin command line: inspecting
// and provisioning per-user keys in any supported key store, encrypting and
// decrypting blobs by hand, and copying a vault between stores.
//
// Every command works on the store selected by the persistent flags:
//
//	vaultctl --store file --path data/vault.json list
//	vaultctl --store postgres --dsn "$DSN" key 42 --reveal
//	vaultctl --path data/vault.json copy --to-store sqlite --to-path keys.db
package vaultctl
