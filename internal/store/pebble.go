// Package store persists the account checkpoint between runs.
package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/SudoMindfreak/QuantBox/internal/paper"
)

// ErrNotFound is returned when a key has never been written.
var ErrNotFound = errors.New("store: not found")

type PebbleStore struct {
	db *pebble.DB
}

// Open creates or opens a store in dir.
func Open(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", dir, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func kAccount() []byte { return []byte("acct") }

// SaveAccount writes the account checkpoint synchronously.
func (s *PebbleStore) SaveAccount(cp paper.Checkpoint) error {
	return s.put(kAccount(), cp)
}

// LoadAccount returns the last saved checkpoint or ErrNotFound.
func (s *PebbleStore) LoadAccount() (paper.Checkpoint, error) {
	var cp paper.Checkpoint
	err := s.get(kAccount(), &cp)
	return cp, err
}

func (s *PebbleStore) put(key []byte, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.db.Set(key, val, pebble.Sync); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (s *PebbleStore) get(key []byte, v any) error {
	val, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("read %s: %w", key, err)
	}
	defer closer.Close()
	if err := json.Unmarshal(val, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
