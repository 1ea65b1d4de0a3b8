// Package common contains shared constants and sentinel errors used across
// catalogkeeper components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// User roles.
const (
	RoleUser  = "User"
	RoleAdmin = "Admin"
)

// Placeholders shown instead of a product description.
const (
	// MaskedDescription replaces descriptions the caller may not read.
	MaskedDescription = "********"
	// UndisplayableDescription replaces descriptions that failed to decrypt.
	UndisplayableDescription = "(could not display this item)"
)
