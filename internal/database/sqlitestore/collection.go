package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tweetcastr/internal/database"

	"github.com/goccy/go-json"
)

// Ensure Collection implements database.Collection at compile time.
var _ database.Collection = (*Collection)(nil)

// Collection implements database.Collection over the shared documents table.
type Collection struct {
	db   *sql.DB
	name string
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Count returns the number of documents in the collection.
func (c *Collection) Count(ctx context.Context) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = ?`, c.name,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.name, err)
	}
	return count, nil
}

// Insert stores the document as JSON text.
func (c *Collection) Insert(ctx context.Context, doc database.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO documents (collection, body, inserted_at) VALUES (?, ?, ?)`,
		c.name, string(body), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", c.name, err)
	}
	return nil
}

// List returns all documents in insertion order.
func (c *Collection) List(ctx context.Context) ([]database.Document, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT body FROM documents WHERE collection = ? ORDER BY id`, c.name,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []database.Document
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var doc database.Document
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
