package registry

import (
	"context"
	"errors"
	"time"

	"fixly/internal/database"
	"fixly/internal/domain"
	"fixly/internal/models"

	"github.com/rs/zerolog"
)

// Cache stores resolved listings and vendor profiles. A miss is (nil, nil);
// errors mean the cache itself is unavailable.
type Cache interface {
	GetServiceListing(ctx context.Context, serviceID string) (*models.ServiceListing, error)
	SetServiceListing(ctx context.Context, listing *models.ServiceListing) error
	GetVendor(ctx context.Context, userID string) (*models.Vendor, error)
	SetVendor(ctx context.Context, userID string, vendor *models.Vendor) error
}

// CachedRegistry is a read-through cache in front of the catalog source.
// Not-found answers from the source are returned as-is and never cached.
type CachedRegistry struct {
	cache  Cache
	source domain.Registry
	logger *zerolog.Logger
}

func NewCachedRegistry(cache Cache, source domain.Registry, logger *zerolog.Logger) *CachedRegistry {
	return &CachedRegistry{
		cache:  cache,
		source: source,
		logger: logger,
	}
}

func (r *CachedRegistry) GetServiceListing(ctx context.Context, serviceID string) (*models.ServiceListing, error) {
	if listing, err := r.cache.GetServiceListing(ctx, serviceID); err != nil {
		r.logger.Warn().Err(err).Str("service_id", serviceID).Msg("Service listing cache read failed")
	} else if listing != nil {
		return listing, nil
	}

	listing, err := r.source.GetServiceListing(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	if err := r.cache.SetServiceListing(ctx, listing); err != nil {
		r.logger.Warn().Err(err).Str("service_id", serviceID).Msg("Service listing cache write failed")
	}
	return listing, nil
}

func (r *CachedRegistry) GetVendorByUserID(ctx context.Context, userID string) (*models.Vendor, error) {
	if vendor, err := r.cache.GetVendor(ctx, userID); err != nil {
		r.logger.Warn().Err(err).Str("user_id", userID).Msg("Vendor cache read failed")
	} else if vendor != nil {
		return vendor, nil
	}

	vendor, err := r.source.GetVendorByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := r.cache.SetVendor(ctx, userID, vendor); err != nil {
		r.logger.Warn().Err(err).Str("user_id", userID).Msg("Vendor cache write failed")
	}
	return vendor, nil
}

// IsNotFound reports whether the registry answered authoritatively that the
// record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, database.ErrServiceNotFound) || errors.Is(err, database.ErrVendorNotFound)
}

// DefaultTTL bounds how long a cached listing may lag behind catalog edits.
const DefaultTTL = 5 * time.Minute
