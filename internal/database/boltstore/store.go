// Package boltstore provides persistent storage using BoltDB (bbolt).
// Each destination collection is a nested bucket under BucketCollections,
// holding JSON documents keyed by an insertion sequence.
package boltstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names for organizing data
var (
	// BucketCollections holds one nested bucket per destination collection
	BucketCollections = []byte("collections")
)

// Store wraps a BoltDB database and provides access to collections.
type Store struct {
	db *bolt.DB
}

// Options configures the BoltDB store.
type Options struct {
	// Path to the database file. Parent directories will be created if needed.
	Path string

	// Timeout for obtaining a file lock on the database.
	// If zero, a default of 5 seconds is used.
	Timeout time.Duration

	// FileMode for creating the database file.
	// If zero, 0600 is used.
	FileMode os.FileMode
}

// DefaultOptions returns sensible defaults for development.
func DefaultOptions() Options {
	return Options{
		Path:     "tweetcastr.db",
		Timeout:  5 * time.Second,
		FileMode: 0600,
	}
}

// Open creates or opens a BoltDB database at the specified path.
// It creates the top-level bucket if it doesn't exist.
func Open(opts Options) (*Store, error) {
	defaults := DefaultOptions()
	if opts.Path == "" {
		opts.Path = defaults.Path
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.FileMode == 0 {
		opts.FileMode = defaults.FileMode
	}

	// Ensure parent directory exists
	dir := filepath.Dir(opts.Path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := bolt.Open(opts.Path, opts.FileMode, &bolt.Options{
		Timeout: opts.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(BucketCollections); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", BucketCollections, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Collection returns the named collection, creating its bucket if needed.
func (s *Store) Collection(name string) (*Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.Bucket(BucketCollections).CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return &Collection{db: s.db, name: []byte(name)}, nil
}

// Collections lists the names of all collections in the store.
func (s *Store) Collections() []string {
	var names []string

	s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(BucketCollections).ForEachBucket(func(k []byte) error {
			names = append(names, string(k))
			return nil
		})
	})

	return names
}
