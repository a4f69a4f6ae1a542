package registry

import (
	"context"
	"sync"
	"time"

	"fixly/internal/models"
)

type memoryEntry struct {
	value     interface{}
	expiresAt time.Time
}

// MemoryCache keeps registry lookups in-process with a per-entry TTL.
type MemoryCache struct {
	listings sync.Map
	vendors  sync.Map
	ttl      time.Duration
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		ttl: ttl,
	}
}

func (c *MemoryCache) GetServiceListing(ctx context.Context, serviceID string) (*models.ServiceListing, error) {
	val, ok := c.listings.Load(serviceID)
	if !ok {
		return nil, nil
	}
	entry := val.(*memoryEntry)
	if time.Now().After(entry.expiresAt) {
		c.listings.Delete(serviceID)
		return nil, nil
	}
	return entry.value.(*models.ServiceListing), nil
}

func (c *MemoryCache) SetServiceListing(ctx context.Context, listing *models.ServiceListing) error {
	c.listings.Store(listing.ServiceID, &memoryEntry{
		value:     listing,
		expiresAt: time.Now().Add(c.ttl),
	})
	return nil
}

func (c *MemoryCache) GetVendor(ctx context.Context, userID string) (*models.Vendor, error) {
	val, ok := c.vendors.Load(userID)
	if !ok {
		return nil, nil
	}
	entry := val.(*memoryEntry)
	if time.Now().After(entry.expiresAt) {
		c.vendors.Delete(userID)
		return nil, nil
	}
	return entry.value.(*models.Vendor), nil
}

func (c *MemoryCache) SetVendor(ctx context.Context, userID string, vendor *models.Vendor) error {
	c.vendors.Store(userID, &memoryEntry{
		value:     vendor,
		expiresAt: time.Now().Add(c.ttl),
	})
	return nil
}
