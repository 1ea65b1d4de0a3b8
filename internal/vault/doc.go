// Package vault maps user ids to per-user 256-bit data keys.
//
// Keys are created lazily on first use, persisted through a Store before they
// are handed out, and never regenerated. A Vault is safe for concurrent use:
// lookups of existing keys proceed in parallel, while creation and the write
// to the store form a single critical section.
//
// A Store that cannot be read at startup is treated as empty. Any data
// encrypted under keys it held becomes unreadable, so New logs that case at
// warning level.
package vault
