package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fixly/internal/models"
)

func (db *DB) CreateVendor(ctx context.Context, vendor *models.Vendor) error {
	query := `INSERT INTO vendors (id, user_id, business_name, approved, created_at)
              VALUES (?, ?, ?, ?, ?)`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		vendor.ID,
		vendor.UserID,
		vendor.BusinessName,
		vendor.Approved,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create vendor: %w", err)
	}
	vendor.CreatedAt = now
	return nil
}

// GetVendorByUserID resolves the vendor profile owned by a user. The unique
// constraint on vendors.user_id guarantees at most one.
func (db *DB) GetVendorByUserID(ctx context.Context, userID string) (*models.Vendor, error) {
	query := `SELECT id, user_id, business_name, approved, created_at
              FROM vendors WHERE user_id = ?`
	return db.queryVendor(ctx, query, userID)
}

func (db *DB) GetVendorByID(ctx context.Context, id string) (*models.Vendor, error) {
	query := `SELECT id, user_id, business_name, approved, created_at
              FROM vendors WHERE id = ?`
	return db.queryVendor(ctx, query, id)
}

func (db *DB) queryVendor(ctx context.Context, query string, args ...any) (*models.Vendor, error) {
	var v models.Vendor
	err := db.QueryRowContext(ctx, query, args...).Scan(
		&v.ID, &v.UserID, &v.BusinessName, &v.Approved, &v.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVendorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vendor: %w", err)
	}
	return &v, nil
}

func (db *DB) CreateService(ctx context.Context, service *models.Service) error {
	query := `INSERT INTO services (id, vendor_id, name, price, active, created_at)
              VALUES (?, ?, ?, ?, ?, ?)`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		service.ID,
		service.VendorID,
		service.Name,
		service.Price,
		service.Active,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	service.CreatedAt = now
	return nil
}

// GetServiceListing resolves a service together with its owning vendor and
// that vendor's user, the lookup the booking lifecycle depends on.
func (db *DB) GetServiceListing(ctx context.Context, serviceID string) (*models.ServiceListing, error) {
	query := `SELECT s.id, s.name, s.price, v.id, v.user_id
              FROM services s
              JOIN vendors v ON v.id = s.vendor_id
              WHERE s.id = ? AND s.active = 1`

	var listing models.ServiceListing
	err := db.QueryRowContext(ctx, query, serviceID).Scan(
		&listing.ServiceID, &listing.ServiceName, &listing.Price,
		&listing.VendorID, &listing.VendorUserID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrServiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service listing: %w", err)
	}
	return &listing, nil
}

func (db *DB) DeactivateService(ctx context.Context, id string) error {
	query := `UPDATE services SET active = 0 WHERE id = ?`
	result, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate service: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrServiceNotFound
	}
	return nil
}
