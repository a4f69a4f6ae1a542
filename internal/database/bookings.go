package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fixly/internal/models"
)

const bookingColumns = `id, client_id, vendor_id, service_id, scheduled_date,
                 problem_description, address, total_price, final_price,
                 is_price_revised, revision_reason, start_otp, status,
                 created_at, updated_at, version`

func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	query := `INSERT INTO bookings (
				id, client_id, vendor_id, service_id, scheduled_date,
				problem_description, address, total_price, start_otp,
				status, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		booking.ID,
		booking.ClientID,
		booking.VendorID,
		booking.ServiceID,
		booking.ScheduledDate,
		booking.ProblemDescription,
		booking.Address,
		booking.TotalPrice,
		booking.StartOTP,
		booking.Status,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1

	return nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`

	var b models.Booking
	err := db.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.ClientID, &b.VendorID, &b.ServiceID, &b.ScheduledDate,
		&b.ProblemDescription, &b.Address, &b.TotalPrice, &b.FinalPrice,
		&b.IsPriceRevised, &b.RevisionReason, &b.StartOTP, &b.Status,
		&b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &b, nil
}

// UpdateBookingStatusWithVersion performs a compare-and-swap on the status:
// the write applies only when the row still carries fromVersion.
func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id string, fromVersion int64, status string) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// ApplyQuoteRevisionWithVersion records a vendor price revision and moves the
// booking to WAITING_APPROVAL in a single versioned write.
func (db *DB) ApplyQuoteRevisionWithVersion(ctx context.Context, id string, fromVersion int64, finalPrice float64, reason string) error {
	query := `UPDATE bookings
              SET final_price = ?, is_price_revised = 1, revision_reason = ?,
                  status = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, finalPrice, reason, models.StatusWaitingApproval, time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to apply quote revision: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// GetClientBookings returns the client's bookings newest-first, joined with
// the service name and the vendor side's public contact fields.
func (db *DB) GetClientBookings(ctx context.Context, clientID string) ([]*models.BookingView, error) {
	query := `SELECT b.id, b.client_id, b.vendor_id, b.service_id, b.scheduled_date,
                     b.problem_description, b.address, b.total_price, b.final_price,
                     b.is_price_revised, b.revision_reason, b.start_otp, b.status,
                     b.created_at, b.updated_at, b.version,
                     s.name, u.name, u.phone
              FROM bookings b
              JOIN services s ON s.id = b.service_id
              JOIN vendors v ON v.id = b.vendor_id
              JOIN users u ON u.id = v.user_id
              WHERE b.client_id = ?
              ORDER BY b.created_at DESC`
	return db.queryBookingViews(ctx, query, clientID)
}

// GetVendorBookings returns a vendor profile's bookings newest-first, joined
// with the service name and the client's public contact fields.
func (db *DB) GetVendorBookings(ctx context.Context, vendorID string) ([]*models.BookingView, error) {
	query := `SELECT b.id, b.client_id, b.vendor_id, b.service_id, b.scheduled_date,
                     b.problem_description, b.address, b.total_price, b.final_price,
                     b.is_price_revised, b.revision_reason, b.start_otp, b.status,
                     b.created_at, b.updated_at, b.version,
                     s.name, u.name, u.phone
              FROM bookings b
              JOIN services s ON s.id = b.service_id
              JOIN users u ON u.id = b.client_id
              WHERE b.vendor_id = ?
              ORDER BY b.created_at DESC`
	return db.queryBookingViews(ctx, query, vendorID)
}

func (db *DB) queryBookingViews(ctx context.Context, query string, args ...any) ([]*models.BookingView, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var views []*models.BookingView
	for rows.Next() {
		v := &models.BookingView{}
		err := rows.Scan(
			&v.ID, &v.ClientID, &v.VendorID, &v.ServiceID, &v.ScheduledDate,
			&v.ProblemDescription, &v.Address, &v.TotalPrice, &v.FinalPrice,
			&v.IsPriceRevised, &v.RevisionReason, &v.StartOTP, &v.Status,
			&v.CreatedAt, &v.UpdatedAt, &v.Version,
			&v.ServiceName, &v.CounterpartName, &v.CounterpartPhone,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return views, nil
}
