package domain

import (
	"context"
	"time"

	"fixly/internal/models"
)

// Repository is the persistence surface the booking lifecycle runs on.
type Repository interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	UpdateBookingStatusWithVersion(ctx context.Context, id string, fromVersion int64, status string) error
	ApplyQuoteRevisionWithVersion(ctx context.Context, id string, fromVersion int64, finalPrice float64, reason string) error
	GetClientBookings(ctx context.Context, clientID string) ([]*models.BookingView, error)
	GetVendorBookings(ctx context.Context, vendorID string) ([]*models.BookingView, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Registry resolves services and vendor profiles. The booking core consumes
// it, it does not own it; implementations may cache.
type Registry interface {
	GetServiceListing(ctx context.Context, serviceID string) (*models.ServiceListing, error)
	GetVendorByUserID(ctx context.Context, userID string) (*models.Vendor, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// ExportWorker receives booking snapshots for async ledger export.
type ExportWorker interface {
	EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error
}

type BookingService interface {
	Create(ctx context.Context, clientID string, req CreateBookingInput) (*models.Booking, error)
	ListForClient(ctx context.Context, clientID string) ([]*models.BookingView, error)
	ListForVendor(ctx context.Context, userID string) ([]*models.BookingView, error)
	UpdateStatus(ctx context.Context, bookingID, newStatus, actingUserID string) (*models.Booking, error)
	StartJob(ctx context.Context, bookingID, otp, actingUserID string) (*models.Booking, error)
	ReviseQuote(ctx context.Context, bookingID string, newPrice float64, reason, actingUserID string) (*models.Booking, error)
	ApproveRevision(ctx context.Context, bookingID string, approved bool, actingUserID string) (*models.Booking, error)
}

// CreateBookingInput is the client-supplied payload for a new booking.
type CreateBookingInput struct {
	ServiceID          string
	ScheduledDate      time.Time
	ProblemDescription string
	Address            string
	TotalPrice         float64
}
