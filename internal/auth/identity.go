// Package auth manages the session identity: the bearer token and username
// of the logged in user, backed by a credential store.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/omochice/toy-chat-client/internal/credstore"
)

// Identity is the authenticated user.
type Identity struct {
	Token    string
	Username string
}

// Valid reports whether both fields are set.
func (id Identity) Valid() bool {
	return id.Token != "" && id.Username != ""
}

// Load reads the identity from store. ok is false if either value is missing.
func Load(store credstore.Store) (id Identity, ok bool, err error) {
	token, hasToken, err := store.Get(credstore.KeyToken)
	if err != nil {
		return Identity{}, false, fmt.Errorf("failed to load token: %w", err)
	}
	username, hasUser, err := store.Get(credstore.KeyUsername)
	if err != nil {
		return Identity{}, false, fmt.Errorf("failed to load username: %w", err)
	}
	id = Identity{Token: token, Username: username}
	if !hasToken || !hasUser || !id.Valid() {
		return Identity{}, false, nil
	}
	return id, true, nil
}

// Save writes id to store.
func Save(store credstore.Store, id Identity) error {
	if err := store.Set(credstore.KeyToken, id.Token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	if err := store.Set(credstore.KeyUsername, id.Username); err != nil {
		return fmt.Errorf("failed to save username: %w", err)
	}
	return nil
}

// Clear removes the identity from store.
func Clear(store credstore.Store) error {
	if err := store.Remove(credstore.KeyToken); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	if err := store.Remove(credstore.KeyUsername); err != nil {
		return fmt.Errorf("failed to clear username: %w", err)
	}
	return nil
}

// Expired reports whether token is a JWT whose exp claim is before now.
// The signature is not checked; tokens that are not JWTs or carry no exp
// claim are left for the server to judge.
func Expired(token string, now time.Time) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.After(now)
}

// TokenSource returns a function reporting the stored bearer token, or ""
// when nobody is logged in. It is safe to call from any goroutine.
func TokenSource(store credstore.Store) func() string {
	return func() string {
		token, ok, err := store.Get(credstore.KeyToken)
		if err != nil || !ok {
			return ""
		}
		return token
	}
}
