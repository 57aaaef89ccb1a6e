// Package canoncache caches the latest canonical snapshot per lead in
// Redis so diff runs do not have to re-read and re-parse the note table.
// The cache is advisory: a miss falls back to the database, and a write
// failure is logged but never fails the run.
package canoncache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"denticlinic/api/internal/canonical"
)

const defaultTTL = 24 * time.Hour

type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client) *Cache {
	return &Cache{client: client, ttl: defaultTTL}
}

func key(leadID string) string {
	return "canon:" + leadID
}

// Get returns the cached snapshot for a lead, or nil on miss. Corrupt
// entries are dropped and reported as a miss.
func (c *Cache) Get(ctx context.Context, leadID string) *canonical.Canonical {
	if c == nil || c.client == nil {
		return nil
	}
	body, err := c.client.Get(ctx, key(leadID)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		log.Printf("canoncache: get %s: %v", leadID, err)
		return nil
	}
	snapshot, err := canonical.DecodeNote(body)
	if err != nil {
		log.Printf("canoncache: corrupt entry for %s, evicting: %v", leadID, err)
		_ = c.client.Del(ctx, key(leadID)).Err()
		return nil
	}
	return snapshot
}

// Put stores the wire-encoded snapshot.
func (c *Cache) Put(ctx context.Context, leadID string, snapshot *canonical.Canonical) {
	if c == nil || c.client == nil || snapshot == nil {
		return
	}
	body, err := canonical.EncodeNote(snapshot)
	if err != nil {
		log.Printf("canoncache: encode %s: %v", leadID, err)
		return
	}
	if err := c.client.Set(ctx, key(leadID), body, c.ttl).Err(); err != nil {
		log.Printf("canoncache: put %s: %v", leadID, err)
	}
}

func (c *Cache) Invalidate(ctx context.Context, leadID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, key(leadID)).Err(); err != nil {
		return fmt.Errorf("invalidate %s: %w", leadID, err)
	}
	return nil
}
