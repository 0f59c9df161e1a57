package credstore

import (
	"errors"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
)

const keyPrefix = "cred:"

// Pebble is a Store persisted in a pebble database directory.
type Pebble struct {
	db *pebble.DB
}

// OpenPebble opens or creates the database at dir.
func OpenPebble(dir string) (*Pebble, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	return &Pebble{db: db}, nil
}

func (p *Pebble) Get(key string) (string, bool, error) {
	v, closer, err := p.db.Get([]byte(keyPrefix + key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	defer closer.Close()
	// v is only valid until closer is closed.
	return string(v), true, nil
}

func (p *Pebble) Set(key, value string) error {
	if err := p.db.Set([]byte(keyPrefix+key), []byte(value), pebble.Sync); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (p *Pebble) Remove(key string) error {
	if err := p.db.Delete([]byte(keyPrefix+key), pebble.Sync); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

func (p *Pebble) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
