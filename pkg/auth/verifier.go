package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when the handshake carries no credential.
	ErrMissingToken = errors.New("no token presented")
	// ErrInvalidToken covers bad signatures, malformed tokens and expiry.
	ErrInvalidToken = errors.New("token is invalid")
)

// Claims is the custom JWT claims structure issued by the auth collaborator.
// Organization and property affiliations ride inside the token, so the
// gateway never performs a lookup of its own.
type Claims struct {
	OrganizationID string `json:"org,omitempty"`
	Role           string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the verified result of a handshake credential.
type Identity struct {
	UserID         string
	OrganizationID string
	Role           string
}

// Verifier validates HMAC-signed bearer tokens against a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a token string. It has no side effects and is
// safe for concurrent use.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing 'sub' claim", ErrInvalidToken)
	}

	return Identity{
		UserID:         claims.Subject,
		OrganizationID: claims.OrganizationID,
		Role:           claims.Role,
	}, nil
}
