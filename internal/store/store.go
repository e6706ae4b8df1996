// Package store persists simulation sessions in BoltDB.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"LocMock/internal/model"
)

// historyLayout keeps every key the same width so byte order is start order.
const historyLayout = "2006-01-02T15:04:05.000000000Z"

var (
	sessionBucket = []byte("session")
	historyBucket = []byte("history")
	activeKey     = []byte("active")
)

// Store keeps the active session and the history of finished ones.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("[store] failed to create %s: %w", dir, err)
		}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("[store] failed to open BoltDB: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{sessionBucket, historyBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("[store] failed to create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// SaveSession records sess as the active session, replacing any previous one.
func (s *Store) SaveSession(sess model.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionBucket).Put(activeKey, data)
	})
}

// ActiveSession returns the session left active, if any.
func (s *Store) ActiveSession() (model.Session, bool, error) {
	var (
		sess  model.Session
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(sessionBucket).Get(activeKey)
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &sess)
	})
	if err != nil {
		return model.Session{}, false, fmt.Errorf("[store] failed to read session: %w", err)
	}
	return sess, found, nil
}

// EndSession clears the active session and appends stopped to the history.
func (s *Store) EndSession(stopped model.Session) error {
	data, err := json.Marshal(stopped)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(sessionBucket).Delete(activeKey); err != nil {
			return err
		}
		if stopped.ID == "" {
			return nil
		}
		key := []byte(stopped.StartedAt.UTC().Format(historyLayout) + "/" + stopped.ID)
		return tx.Bucket(historyBucket).Put(key, data)
	})
}

// History returns up to limit finished sessions, newest first. A limit of
// zero or less returns all of them.
func (s *Store) History(limit int) ([]model.Session, error) {
	var out []model.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(historyBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var sess model.Session
			if err := json.Unmarshal(v, &sess); err != nil {
				return fmt.Errorf("history %s: %w", k, err)
			}
			out = append(out, sess)
		}
		return nil
	})
	return out, err
}
