package boltstore

import (
	"context"
	"encoding/binary"
	"fmt"

	"tweetcastr/internal/database"

	"github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"
)

// Ensure Collection implements database.Collection at compile time.
var _ database.Collection = (*Collection)(nil)

// Collection stores documents in a nested bucket, in insertion order.
type Collection struct {
	db   *bolt.DB
	name []byte
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return string(c.name)
}

func (c *Collection) bucket(tx *bolt.Tx) *bolt.Bucket {
	parent := tx.Bucket(BucketCollections)
	if parent == nil {
		return nil
	}
	return parent.Bucket(c.name)
}

// Count returns the number of stored documents.
func (c *Collection) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count int
	err := c.db.View(func(tx *bolt.Tx) error {
		bucket := c.bucket(tx)
		if bucket == nil {
			return nil
		}
		count = bucket.Stats().KeyN
		return nil
	})
	return count, err
}

// Insert appends a document under the bucket's next sequence number.
func (c *Collection) Insert(ctx context.Context, doc database.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		bucket := c.bucket(tx)
		if bucket == nil {
			return fmt.Errorf("collection %s not found", c.name)
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return bucket.Put(key, data)
	})
}

// List returns all documents in insertion order.
func (c *Collection) List() ([]database.Document, error) {
	var docs []database.Document

	err := c.db.View(func(tx *bolt.Tx) error {
		bucket := c.bucket(tx)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var doc database.Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("failed to decode document %d: %w", binary.BigEndian.Uint64(k), err)
			}
			docs = append(docs, doc)
			return nil
		})
	})

	return docs, err
}

// Clear removes all documents from the collection.
// Use with caution - primarily for testing.
func (c *Collection) Clear() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		parent := tx.Bucket(BucketCollections)
		if err := parent.DeleteBucket(c.name); err != nil {
			// Bucket might not exist, that's ok
			if err != bolt.ErrBucketNotFound {
				return err
			}
		}

		_, err := parent.CreateBucket(c.name)
		return err
	})
}
