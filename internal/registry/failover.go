package registry

import (
	"context"
	"sync/atomic"
	"time"

	"fixly/internal/models"

	"github.com/rs/zerolog"
)

// FailoverCache serves from the primary cache until it errors, then degrades
// to the fallback and probes the primary again after a minute.
type FailoverCache struct {
	primary   Cache
	fallback  Cache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverCache(primary, fallback Cache, logger *zerolog.Logger) *FailoverCache {
	return &FailoverCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (c *FailoverCache) markDown(err error) {
	c.logger.Error().Err(err).Msg("Primary registry cache failed, falling back to memory")
	c.isDown.Store(true)
	c.lastCheck.Store(time.Now().UnixNano())
}

func (c *FailoverCache) shouldProbe() bool {
	return time.Since(time.Unix(0, c.lastCheck.Load())) > time.Minute
}

func (c *FailoverCache) GetServiceListing(ctx context.Context, serviceID string) (*models.ServiceListing, error) {
	if !c.isDown.Load() {
		listing, err := c.primary.GetServiceListing(ctx, serviceID)
		if err == nil {
			return listing, nil
		}
		c.markDown(err)
	}

	if c.isDown.Load() && c.shouldProbe() {
		listing, err := c.primary.GetServiceListing(ctx, serviceID)
		if err == nil {
			c.isDown.Store(false)
			return listing, nil
		}
		c.lastCheck.Store(time.Now().UnixNano())
	}

	return c.fallback.GetServiceListing(ctx, serviceID)
}

func (c *FailoverCache) SetServiceListing(ctx context.Context, listing *models.ServiceListing) error {
	if !c.isDown.Load() {
		err := c.primary.SetServiceListing(ctx, listing)
		if err == nil {
			return nil
		}
		c.markDown(err)
	}

	return c.fallback.SetServiceListing(ctx, listing)
}

func (c *FailoverCache) GetVendor(ctx context.Context, userID string) (*models.Vendor, error) {
	if !c.isDown.Load() {
		vendor, err := c.primary.GetVendor(ctx, userID)
		if err == nil {
			return vendor, nil
		}
		c.markDown(err)
	}

	if c.isDown.Load() && c.shouldProbe() {
		vendor, err := c.primary.GetVendor(ctx, userID)
		if err == nil {
			c.isDown.Store(false)
			return vendor, nil
		}
		c.lastCheck.Store(time.Now().UnixNano())
	}

	return c.fallback.GetVendor(ctx, userID)
}

func (c *FailoverCache) SetVendor(ctx context.Context, userID string, vendor *models.Vendor) error {
	if !c.isDown.Load() {
		err := c.primary.SetVendor(ctx, userID, vendor)
		if err == nil {
			return nil
		}
		c.markDown(err)
	}

	return c.fallback.SetVendor(ctx, userID, vendor)
}
