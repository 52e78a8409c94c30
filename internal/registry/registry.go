// Package registry resolves VEN ids to the records the VTN authenticates against.
//
// The registry is read-mostly and may be eventually consistent with the
// registration workflow: a lookup can return a record that is slightly stale.
package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/evidenceledger/oadrvtn/internal/cache"
	"github.com/evidenceledger/oadrvtn/internal/database"
	"github.com/evidenceledger/oadrvtn/internal/models"
)

// Port looks up a VEN. A nil record with a nil error means the VEN is unknown.
type Port interface {
	Lookup(ctx context.Context, venID string) (*models.VenRecord, error)
}

// Func adapts a lookup function to the Port interface.
type Func func(ctx context.Context, venID string) (*models.VenRecord, error)

// Lookup calls f.
func (f Func) Lookup(ctx context.Context, venID string) (*models.VenRecord, error) {
	return f(ctx, venID)
}

// FromDatabase returns a Port reading the vens table.
func FromDatabase(db *database.Database) Port {
	return Func(db.GetVen)
}

// Cached is a read-through cache in front of another Port. Unknown VENs are cached too.
type Cached struct {
	next  Port
	ttl   time.Duration
	cache *cache.Cache[*models.VenRecord]
}

// NewCached wraps next with a cache of the given TTL.
func NewCached(next Port, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		ttl:   ttl,
		cache: cache.New[*models.VenRecord](ttl),
	}
}

// Lookup returns the cached record or asks the wrapped Port. Errors are not cached.
func (c *Cached) Lookup(ctx context.Context, venID string) (*models.VenRecord, error) {
	if ven, ok := c.cache.Get(venID); ok {
		return ven, nil
	}

	ven, err := c.next.Lookup(ctx, venID)
	if err != nil {
		return nil, err
	}

	c.cache.Set(venID, ven, c.ttl)
	slog.Debug("VEN registry cache miss", "ven_id", venID, "found", ven != nil)
	return ven, nil
}

// Invalidate drops the cached entry of a VEN, after its record changed.
func (c *Cached) Invalidate(venID string) {
	c.cache.Delete(venID)
}
