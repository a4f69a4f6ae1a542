package service

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"fixly/internal/apperrors"
	"fixly/internal/database"
	"fixly/internal/domain"
	"fixly/internal/events"
	"fixly/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BookingLifecycle owns the booking state machine: creation, status
// transitions, the OTP-gated start handshake and the quote-revision
// protocol. It consumes the service/vendor registry and user directory,
// it does not own them.
type BookingLifecycle struct {
	repo     domain.Repository
	registry domain.Registry
	eventBus domain.EventPublisher
	exporter domain.ExportWorker
	logger   *zerolog.Logger
}

func NewBookingLifecycle(repo domain.Repository, registry domain.Registry, eventBus domain.EventPublisher, exporter domain.ExportWorker, logger *zerolog.Logger) *BookingLifecycle {
	return &BookingLifecycle{
		repo:     repo,
		registry: registry,
		eventBus: eventBus,
		exporter: exporter,
		logger:   logger,
	}
}

func (s *BookingLifecycle) Create(ctx context.Context, clientID string, in domain.CreateBookingInput) (*models.Booking, error) {
	if strings.TrimSpace(in.ProblemDescription) == "" {
		return nil, apperrors.Validation("problem description is required")
	}
	if strings.TrimSpace(in.Address) == "" {
		return nil, apperrors.Validation("address is required")
	}
	if in.TotalPrice < 0 {
		return nil, apperrors.Validation("total price cannot be negative")
	}
	if !in.ScheduledDate.After(time.Now()) {
		return nil, apperrors.Validation("scheduled date must be in the future")
	}

	listing, err := s.registry.GetServiceListing(ctx, in.ServiceID)
	if err != nil {
		if errors.Is(err, database.ErrServiceNotFound) {
			return nil, apperrors.NotFoundWithID("Service", in.ServiceID)
		}
		return nil, apperrors.Internal("failed to resolve service", err)
	}

	if listing.VendorUserID == clientID {
		return nil, apperrors.Conflict("cannot book your own service")
	}

	otp, err := generateStartOTP()
	if err != nil {
		return nil, apperrors.Internal("failed to generate start code", err)
	}

	booking := &models.Booking{
		ID:                 uuid.NewString(),
		ClientID:           clientID,
		VendorID:           listing.VendorID,
		ServiceID:          listing.ServiceID,
		ScheduledDate:      in.ScheduledDate,
		ProblemDescription: strings.TrimSpace(in.ProblemDescription),
		Address:            strings.TrimSpace(in.Address),
		TotalPrice:         in.TotalPrice,
		StartOTP:           otp,
		Status:             models.StatusPending,
	}

	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		return nil, apperrors.Internal("failed to create booking", err)
	}

	s.publishEvent(events.EventBookingCreated, booking, clientID)
	s.enqueueExport(ctx, "upsert", booking)

	s.logger.Info().
		Str("booking_id", booking.ID).
		Str("client_id", clientID).
		Str("service_id", booking.ServiceID).
		Msg("booking created")

	return booking, nil
}

func (s *BookingLifecycle) ListForClient(ctx context.Context, clientID string) ([]*models.BookingView, error) {
	views, err := s.repo.GetClientBookings(ctx, clientID)
	if err != nil {
		return nil, apperrors.Internal("failed to list bookings", err)
	}
	if views == nil {
		views = []*models.BookingView{}
	}
	return views, nil
}

// ListForVendor resolves the acting user's vendor profile and returns its
// bookings. A user with no vendor profile gets an empty list, not an error.
func (s *BookingLifecycle) ListForVendor(ctx context.Context, userID string) ([]*models.BookingView, error) {
	vendor, err := s.registry.GetVendorByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrVendorNotFound) {
			return []*models.BookingView{}, nil
		}
		return nil, apperrors.Internal("failed to resolve vendor profile", err)
	}

	views, err := s.repo.GetVendorBookings(ctx, vendor.ID)
	if err != nil {
		return nil, apperrors.Internal("failed to list bookings", err)
	}
	if views == nil {
		views = []*models.BookingView{}
	}
	for _, v := range views {
		// the start code is the client's secret
		v.StartOTP = ""
	}
	return views, nil
}

// UpdateStatus drives the generic accept/reject/complete edges. The acting
// user must be the booking's vendor-owner or hold the ADMIN role; either way
// only the edges in genericUpdateEdges are reachable here.
func (s *BookingLifecycle) UpdateStatus(ctx context.Context, bookingID, newStatus, actingUserID string) (*models.Booking, error) {
	if !isKnownStatus(newStatus) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown status %q", newStatus))
	}

	booking, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if err := s.authorizeVendorOwnerOrAdmin(ctx, booking, actingUserID); err != nil {
		return nil, err
	}

	if !canGenericUpdate(booking.Status, newStatus) {
		return nil, apperrors.InvalidState(
			fmt.Sprintf("cannot change status from %s to %s", booking.Status, newStatus),
			booking.Status,
		)
	}

	updated, err := s.applyTransition(ctx, booking, newStatus)
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventBookingStatusChanged, updated, actingUserID)
	s.enqueueExport(ctx, "update_status", updated)

	updated.StartOTP = ""
	return updated, nil
}

// StartJob performs the OTP-gated ACCEPTED -> IN_PROGRESS handshake. The OTP
// is compared once and never rotated; a replay fails the status precondition.
func (s *BookingLifecycle) StartJob(ctx context.Context, bookingID, otp, actingUserID string) (*models.Booking, error) {
	booking, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if err := s.authorizeVendorOwner(ctx, booking, actingUserID); err != nil {
		return nil, err
	}

	if booking.Status != models.StatusAccepted {
		return nil, apperrors.InvalidState("job can only be started when ACCEPTED", booking.Status)
	}

	if otp != booking.StartOTP {
		return nil, apperrors.Validation("invalid OTP")
	}

	updated, err := s.applyTransition(ctx, booking, models.StatusInProgress)
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventBookingJobStarted, updated, actingUserID)
	s.enqueueExport(ctx, "update_status", updated)

	s.logger.Info().Str("booking_id", bookingID).Msg("job started")

	updated.StartOTP = ""
	return updated, nil
}

// ReviseQuote records a vendor-initiated price change and parks the booking
// in WAITING_APPROVAL until the client decides.
func (s *BookingLifecycle) ReviseQuote(ctx context.Context, bookingID string, newPrice float64, reason, actingUserID string) (*models.Booking, error) {
	if newPrice < 0 {
		return nil, apperrors.Validation("revised price cannot be negative")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.Validation("revision reason is required")
	}

	booking, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if err := s.authorizeVendorOwner(ctx, booking, actingUserID); err != nil {
		return nil, err
	}

	if booking.Status != models.StatusAccepted && booking.Status != models.StatusInProgress {
		return nil, apperrors.InvalidState("quote can only be revised when ACCEPTED or IN_PROGRESS", booking.Status)
	}

	err = s.repo.ApplyQuoteRevisionWithVersion(ctx, bookingID, booking.Version, newPrice, strings.TrimSpace(reason))
	if err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			return nil, apperrors.Conflict("booking was modified concurrently, re-fetch and retry")
		}
		return nil, apperrors.Internal("failed to revise quote", err)
	}

	updated, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventBookingQuoteRevised, updated, actingUserID)
	s.enqueueExport(ctx, "upsert", updated)

	s.logger.Info().
		Str("booking_id", bookingID).
		Float64("new_price", newPrice).
		Msg("quote revised")

	updated.StartOTP = ""
	return updated, nil
}

// ApproveRevision resolves a pending quote revision. Approval resumes the
// job as IN_PROGRESS; rejection cancels the booking. The revision fields stay
// populated either way, as a record of what was proposed.
func (s *BookingLifecycle) ApproveRevision(ctx context.Context, bookingID string, approved bool, actingUserID string) (*models.Booking, error) {
	booking, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if booking.ClientID != actingUserID {
		return nil, apperrors.Forbidden("only the booking's client can decide a revision")
	}

	if booking.Status != models.StatusWaitingApproval {
		return nil, apperrors.InvalidState("no pending revision to approve", booking.Status)
	}

	target := models.StatusInProgress
	if !approved {
		target = models.StatusCancelled
	}

	updated, err := s.applyTransition(ctx, booking, target)
	if err != nil {
		return nil, err
	}

	s.publishEvent(events.EventBookingRevisionResolved, updated, actingUserID)
	s.enqueueExport(ctx, "update_status", updated)

	return updated, nil
}

// --- Helpers ---

func (s *BookingLifecycle) getBooking(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrBookingNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		return nil, apperrors.Internal("failed to load booking", err)
	}
	return booking, nil
}

// applyTransition validates the edge against the adjacency table and applies
// it with a version CAS, so concurrent writers fail instead of overwriting.
func (s *BookingLifecycle) applyTransition(ctx context.Context, booking *models.Booking, to string) (*models.Booking, error) {
	if !canTransition(booking.Status, to) {
		return nil, apperrors.InvalidState(
			fmt.Sprintf("no transition from %s to %s", booking.Status, to),
			booking.Status,
		)
	}

	err := s.repo.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version, to)
	if err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			return nil, apperrors.Conflict("booking was modified concurrently, re-fetch and retry")
		}
		return nil, apperrors.Internal("failed to update booking status", err)
	}

	return s.getBooking(ctx, booking.ID)
}

func (s *BookingLifecycle) authorizeVendorOwner(ctx context.Context, booking *models.Booking, actingUserID string) error {
	vendor, err := s.registry.GetVendorByUserID(ctx, actingUserID)
	if err != nil {
		if errors.Is(err, database.ErrVendorNotFound) {
			return apperrors.Forbidden("not the vendor for this booking")
		}
		return apperrors.Internal("failed to resolve vendor profile", err)
	}
	if vendor.ID != booking.VendorID {
		return apperrors.Forbidden("not the vendor for this booking")
	}
	return nil
}

func (s *BookingLifecycle) authorizeVendorOwnerOrAdmin(ctx context.Context, booking *models.Booking, actingUserID string) error {
	ownerErr := s.authorizeVendorOwner(ctx, booking, actingUserID)
	if ownerErr == nil {
		return nil
	}
	if appErr, ok := apperrors.As(ownerErr); !ok || appErr.Code != apperrors.CodeForbidden {
		return ownerErr
	}

	user, err := s.repo.GetUserByID(ctx, actingUserID)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return ownerErr
		}
		return apperrors.Internal("failed to resolve acting user", err)
	}
	if user.IsAdmin() {
		return nil
	}
	return ownerErr
}

func (s *BookingLifecycle) publishEvent(eventType string, booking *models.Booking, changedBy string) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:  booking.ID,
		ClientID:   booking.ClientID,
		VendorID:   booking.VendorID,
		ServiceID:  booking.ServiceID,
		Status:     booking.Status,
		TotalPrice: booking.TotalPrice,
		FinalPrice: booking.FinalPrice,
		ChangedBy:  changedBy,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", booking.ID).Msg("publish event error")
	}
}

func (s *BookingLifecycle) enqueueExport(ctx context.Context, taskType string, booking *models.Booking) {
	if s.exporter == nil {
		return
	}
	if err := s.exporter.EnqueueTask(ctx, taskType, booking); err != nil {
		s.logger.Error().Err(err).Str("booking_id", booking.ID).Str("task", taskType).Msg("export enqueue error")
	}
}

// generateStartOTP draws a uniform 4-digit start code in [1000, 9999].
// The code is scoped to one booking, so collisions across bookings are fine.
func generateStartOTP() (string, error) {
	n, err := crand.Int(crand.Reader, big.NewInt(9000))
	if err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return strconv.FormatInt(n.Int64()+1000, 10), nil
}
