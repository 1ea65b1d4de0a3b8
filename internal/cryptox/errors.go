package cryptox

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode is matched by every *DecodeError.
	ErrDecode = errors.New("cannot decode cipher blob")
	// ErrInvalidKeyLength is returned when a key is not 32 bytes long.
	ErrInvalidKeyLength = errors.New("key must be 32 bytes")
	// ErrUnknownMode is returned by NewCipherBox for unsupported modes.
	ErrUnknownMode = errors.New("unknown cipher mode")
	// ErrMalformedHash is returned by VerifyPassword for unparsable hashes.
	ErrMalformedHash = errors.New("malformed password hash")
)

// DecodeError reports why a blob could not be turned back into plaintext.
// A wrong key and a corrupted blob are not distinguished.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
	}
	return "decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }
