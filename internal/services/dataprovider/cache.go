package dataprovider

import (
	"context"
	"fmt"
	"sync"
	"time"

	memdb "github.com/hashicorp/go-memdb"
)

const (
	responsesTable = "responses"
	indexID        = "id"
	indexResource  = "resource"
)

type cachedResponse struct {
	Key      string
	Resource string
	Body     []byte
	StoredAt time.Time
}

// ResponseCache keeps decoded-ready response bodies for read operations.
// Entries older than ttl are ignored and writes to a resource drop all of its
// entries.
type ResponseCache struct {
	mu  sync.Mutex
	db  *memdb.MemDB
	ttl time.Duration
	now func() time.Time
	// generation moves on every Invalidate and Purge, under mu.
	generation uint64
}

func NewResponseCache(ttl time.Duration) (*ResponseCache, error) {
	db, err := memdb.NewMemDB(&memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			responsesTable: {
				Name: responsesTable,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
					indexResource: {
						Name:    indexResource,
						Indexer: &memdb.StringFieldIndex{Field: "Resource"},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}

	return &ResponseCache{db: db, ttl: ttl, now: time.Now}, nil
}

func (c *ResponseCache) Get(key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}

	txn := c.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(responsesTable, indexID, key)
	if err != nil || raw == nil {
		return nil, false
	}
	entry := raw.(*cachedResponse)
	if c.now().Sub(entry.StoredAt) >= c.ttl {
		return nil, false
	}
	return entry.Body, true
}

// Generation identifies the current cache contents. Take it before a request
// and hand it to Put once the response arrives.
func (c *ResponseCache) Generation() uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Put stores body unless the cache was invalidated or purged after gen was
// taken. It reports whether the entry was stored.
func (c *ResponseCache) Put(gen uint64, resource, key string, body []byte) (bool, error) {
	if c == nil {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		return false, nil
	}

	txn := c.db.Txn(true)
	defer txn.Abort()

	stored := make([]byte, len(body))
	copy(stored, body)
	if err := txn.Insert(responsesTable, &cachedResponse{
		Key:      key,
		Resource: resource,
		Body:     stored,
		StoredAt: c.now(),
	}); err != nil {
		return false, fmt.Errorf("cache response: %w", err)
	}
	txn.Commit()
	return true, nil
}

// Invalidate drops every cached response of resource.
func (c *ResponseCache) Invalidate(resource string) error {
	if c == nil {
		return nil
	}
	return c.deleteAll(indexResource, resource)
}

// Purge drops everything. It runs on logout and on session expiry.
func (c *ResponseCache) Purge(_ context.Context) error {
	if c == nil {
		return nil
	}
	return c.deleteAll(indexID+"_prefix", "")
}

func (c *ResponseCache) Len() int {
	if c == nil {
		return 0
	}
	txn := c.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(responsesTable, indexID+"_prefix", "")
	if err != nil {
		return 0
	}
	n := 0
	for obj := it.Next(); obj != nil; obj = it.Next() {
		n++
	}
	return n
}

func (c *ResponseCache) deleteAll(index string, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	txn := c.db.Txn(true)
	defer txn.Abort()

	c.generation++
	if _, err := txn.DeleteAll(responsesTable, index, value); err != nil {
		return fmt.Errorf("invalidate cached responses: %w", err)
	}
	txn.Commit()
	return nil
}
