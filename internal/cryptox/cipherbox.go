// Package cryptox holds the symmetric cipher used for product descriptions
// and the password hashing helpers.
//
// A cipher blob is base64(iv || ciphertext). In ctr mode the ciphertext has
// the same length as the plaintext and carries no integrity check. In gcm
// mode the 16-byte prefix is the GCM nonce and the ciphertext is followed by
// a 16-byte tag; the two formats are not interchangeable.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// KeySize is the only accepted key length (AES-256).
	KeySize = 32
	// IVSize is the length of the blob prefix.
	IVSize = 16
	gcmTag = 16
)

// Mode selects the block cipher mode of a CipherBox.
type Mode string

const (
	ModeCTR Mode = "ctr"
	ModeGCM Mode = "gcm"
)

// ParseMode maps a config value to a Mode; an empty string means ModeCTR.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeCTR:
		return ModeCTR, nil
	case ModeGCM:
		return ModeGCM, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// CipherBox encrypts strings into self-contained base64 blobs.
// It holds no per-call state and is safe for concurrent use.
type CipherBox struct {
	mode Mode
}

// readIV is swapped in tests.
var readIV = func(b []byte) error {
	_, err := rand.Read(b)
	return err
}

func NewCipherBox(mode Mode) (*CipherBox, error) {
	if mode == "" {
		mode = ModeCTR
	}
	if mode != ModeCTR && mode != ModeGCM {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return &CipherBox{mode: mode}, nil
}

func (c *CipherBox) Mode() Mode { return c.mode }

// Encrypt encrypts the UTF-8 bytes of plaintext under key with a fresh IV.
func (c *CipherBox) Encrypt(plaintext string, key []byte) (string, error) {
	block, err := newBlock(key)
	if err != nil {
		return "", err
	}

	iv := make([]byte, IVSize)
	if err := readIV(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	var out []byte
	switch c.mode {
	case ModeGCM:
		aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
		if err != nil {
			return "", err
		}
		out = aead.Seal(iv, iv, []byte(plaintext), nil)
	default:
		out = make([]byte, IVSize+len(plaintext))
		copy(out, iv)
		cipher.NewCTR(block, iv).XORKeyStream(out[IVSize:], []byte(plaintext))
	}

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Any failure other than a bad key length is a
// *DecodeError.
func (c *CipherBox) Decrypt(blob string, key []byte) (string, error) {
	block, err := newBlock(key)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", &DecodeError{Reason: "invalid base64", Err: err}
	}

	var plain []byte
	switch c.mode {
	case ModeGCM:
		if len(raw) < IVSize+gcmTag {
			return "", &DecodeError{Reason: fmt.Sprintf("blob too short: %d bytes", len(raw))}
		}
		aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
		if err != nil {
			return "", err
		}
		plain, err = aead.Open(nil, raw[:IVSize], raw[IVSize:], nil)
		if err != nil {
			return "", &DecodeError{Reason: "authentication failed", Err: err}
		}
	default:
		if len(raw) < IVSize {
			return "", &DecodeError{Reason: fmt.Sprintf("blob too short: %d bytes", len(raw))}
		}
		plain = make([]byte, len(raw)-IVSize)
		cipher.NewCTR(block, raw[:IVSize]).XORKeyStream(plain, raw[IVSize:])
	}

	if !utf8.Valid(plain) {
		return "", &DecodeError{Reason: "plaintext is not valid UTF-8"}
	}
	return string(plain), nil
}

func newBlock(key []byte) (cipher.Block, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKeyLength, len(key))
	}
	return aes.NewCipher(key)
}
