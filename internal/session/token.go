package session

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims are the claims the FactoryLink backend puts in access tokens.
type AccessClaims struct {
	jwt.RegisteredClaims

	// UserID is the authenticated user's ID.
	UserID string `json:"uid"`

	// FactoryID is the factory (tenant) the session is scoped to.
	FactoryID string `json:"fid"`
}

// ParseAccessToken extracts the session context from a backend-issued access
// token. The signature is not verified here: the backend is the verifier and
// the client only needs the claims to scope its requests.
func ParseAccessToken(accessToken string) (Session, error) {
	claims := &AccessClaims{}
	parser := jwt.NewParser()

	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return Session{}, fmt.Errorf("parsing access token: %w", err)
	}

	if claims.UserID == "" {
		return Session{}, ErrNoSession
	}
	if claims.FactoryID == "" {
		return Session{}, ErrMissingFactory
	}

	return Session{
		UserID:      claims.UserID,
		FactoryID:   claims.FactoryID,
		AccessToken: accessToken,
	}, nil
}
