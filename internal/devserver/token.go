package devserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenLifespan = 30 * 24 * time.Hour

// Tokens issues and verifies HS512 bearer tokens whose subject is the username.
type Tokens struct {
	key      []byte
	lifespan time.Duration
}

// NewTokens creates a token manager signing with key.
func NewTokens(key string) *Tokens {
	return &Tokens{key: []byte(key), lifespan: tokenLifespan}
}

// Issue creates a token for username.
func (t *Tokens) Issue(username string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   username,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(t.lifespan)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(t.key)
}

// Verify checks the signature and expiry of token and returns its subject.
func (t *Tokens) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.key, nil
	})
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}
