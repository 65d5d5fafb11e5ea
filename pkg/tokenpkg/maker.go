// Package tokenpkg verifies bearer tokens that carry the caller's user id.
package tokenpkg

import "time"

// Maker is an interface for managing tokens.
type Maker interface {
	// CreateToken creates a new token for a specific user id and duration.
	CreateToken(userID string, duration time.Duration) (string, *Payload, error)
	// VerifyToken checks if the token is valid or not.
	VerifyToken(token string) (*Payload, error)
}

// Token types accepted by New.
const (
	TypePaseto = "paseto"
	TypeJWT    = "jwt"
)

// New returns the Maker of the given type.
func New(tokenType, symmetricKey string) (Maker, error) {
	if tokenType == TypeJWT {
		return NewJWTMaker(symmetricKey)
	}

	return NewPasetoMaker(symmetricKey)
}
