package service

import (
	"context"
	"testing"
	"time"

	"fixly/internal/apperrors"
	"fixly/internal/database"
	"fixly/internal/domain"
	"fixly/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) CreateBooking(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *mockRepo) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockRepo) UpdateBookingStatusWithVersion(ctx context.Context, id string, v int64, s string) error {
	return m.Called(ctx, id, v, s).Error(0)
}
func (m *mockRepo) ApplyQuoteRevisionWithVersion(ctx context.Context, id string, v int64, price float64, reason string) error {
	return m.Called(ctx, id, v, price, reason).Error(0)
}
func (m *mockRepo) GetClientBookings(ctx context.Context, clientID string) ([]*models.BookingView, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BookingView), args.Error(1)
}
func (m *mockRepo) GetVendorBookings(ctx context.Context, vendorID string) ([]*models.BookingView, error) {
	args := m.Called(ctx, vendorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BookingView), args.Error(1)
}
func (m *mockRepo) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type mockRegistry struct {
	mock.Mock
}

func (m *mockRegistry) GetServiceListing(ctx context.Context, serviceID string) (*models.ServiceListing, error) {
	args := m.Called(ctx, serviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ServiceListing), args.Error(1)
}
func (m *mockRegistry) GetVendorByUserID(ctx context.Context, userID string) (*models.Vendor, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Vendor), args.Error(1)
}

func newLifecycle(repo *mockRepo, reg *mockRegistry) *BookingLifecycle {
	logger := zerolog.Nop()
	return NewBookingLifecycle(repo, reg, nil, nil, &logger)
}

func validInput() domain.CreateBookingInput {
	return domain.CreateBookingInput{
		ServiceID:          "svc-1",
		ScheduledDate:      time.Now().Add(48 * time.Hour),
		ProblemDescription: "washing machine leaks",
		Address:            "12 Main St",
		TotalPrice:         100,
	}
}

func listing() *models.ServiceListing {
	return &models.ServiceListing{
		ServiceID:    "svc-1",
		ServiceName:  "Appliance repair",
		VendorID:     "ven-1",
		VendorUserID: "vendor-user",
		Price:        100,
	}
}

func assertAppCode(t *testing.T, err error, code string) {
	t.Helper()
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

func TestCreateBooking_Success(t *testing.T) {
	repo := new(mockRepo)
	reg := new(mockRegistry)
	svc := newLifecycle(repo, reg)
	ctx := context.Background()

	reg.On("GetServiceListing", ctx, "svc-1").Return(listing(), nil)
	repo.On("CreateBooking", ctx, mock.AnythingOfType("*models.Booking")).Return(nil)

	booking, err := svc.Create(ctx, "client-1", validInput())
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, booking.Status)
	assert.Equal(t, "client-1", booking.ClientID)
	assert.Equal(t, "ven-1", booking.VendorID)
	assert.Len(t, booking.StartOTP, 4)
	assert.GreaterOrEqual(t, booking.StartOTP, "1000")
	assert.LessOrEqual(t, booking.StartOTP, "9999")
	repo.AssertExpectations(t)
}

func TestCreateBooking_Validation(t *testing.T) {
	svc := newLifecycle(new(mockRepo), new(mockRegistry))
	ctx := context.Background()

	t.Run("EmptyDescription", func(t *testing.T) {
		in := validInput()
		in.ProblemDescription = "   "
		_, err := svc.Create(ctx, "client-1", in)
		assertAppCode(t, err, apperrors.CodeValidation)
	})

	t.Run("EmptyAddress", func(t *testing.T) {
		in := validInput()
		in.Address = ""
		_, err := svc.Create(ctx, "client-1", in)
		assertAppCode(t, err, apperrors.CodeValidation)
	})

	t.Run("NegativePrice", func(t *testing.T) {
		in := validInput()
		in.TotalPrice = -5
		_, err := svc.Create(ctx, "client-1", in)
		assertAppCode(t, err, apperrors.CodeValidation)
	})

	t.Run("PastDate", func(t *testing.T) {
		in := validInput()
		in.ScheduledDate = time.Now().Add(-time.Hour)
		_, err := svc.Create(ctx, "client-1", in)
		assertAppCode(t, err, apperrors.CodeValidation)
	})
}

func TestCreateBooking_UnknownService(t *testing.T) {
	repo := new(mockRepo)
	reg := new(mockRegistry)
	svc := newLifecycle(repo, reg)
	ctx := context.Background()

	reg.On("GetServiceListing", ctx, "svc-1").Return(nil, database.ErrServiceNotFound)

	_, err := svc.Create(ctx, "client-1", validInput())
	assertAppCode(t, err, apperrors.CodeNotFound)
}

func TestCreateBooking_OwnService(t *testing.T) {
	repo := new(mockRepo)
	reg := new(mockRegistry)
	svc := newLifecycle(repo, reg)
	ctx := context.Background()

	reg.On("GetServiceListing", ctx, "svc-1").Return(listing(), nil)

	_, err := svc.Create(ctx, "vendor-user", validInput())
	assertAppCode(t, err, apperrors.CodeConflict)
}

func TestListForVendor_NoProfile(t *testing.T) {
	repo := new(mockRepo)
	reg := new(mockRegistry)
	svc := newLifecycle(repo, reg)
	ctx := context.Background()

	reg.On("GetVendorByUserID", ctx, "user-1").Return(nil, database.ErrVendorNotFound)

	views, err := svc.ListForVendor(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestListForVendor_HidesStartCode(t *testing.T) {
	repo := new(mockRepo)
	reg := new(mockRegistry)
	svc := newLifecycle(repo, reg)
	ctx := context.Background()

	reg.On("GetVendorByUserID", ctx, "vendor-user").Return(&models.Vendor{ID: "ven-1", UserID: "vendor-user"}, nil)
	repo.On("GetVendorBookings", ctx, "ven-1").Return([]*models.BookingView{
		{Booking: models.Booking{ID: "bk-1", StartOTP: "1234"}},
	}, nil)

	views, err := svc.ListForVendor(ctx, "vendor-user")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Empty(t, views[0].StartOTP)
}

func pendingBooking() *models.Booking {
	return &models.Booking{
		ID:       "bk-1",
		ClientID: "client-1",
		VendorID: "ven-1",
		StartOTP: "1234",
		Status:   models.StatusPending,
		Version:  1,
	}
}

func expectVendorOwner(reg *mockRegistry, ctx context.Context) {
	reg.On("GetVendorByUserID", ctx, "vendor-user").Return(&models.Vendor{ID: "ven-1", UserID: "vendor-user"}, nil)
}

func TestUpdateStatus_Accept(t *testing.T) {
	repo := new(mockRepo)
	reg := new(mockRegistry)
	svc := newLifecycle(repo, reg)
	ctx := context.Background()

	booking := pendingBooking()
	accepted := *booking
	accepted.Status = models.StatusAccepted
	accepted.Version = 2

	repo.On("GetBooking", ctx, "bk-1").Return(booking, nil).Once()
	expectVendorOwner(reg, ctx)
	repo.On("UpdateBookingStatusWithVersion", ctx, "bk-1", int64(1), models.StatusAccepted).Return(nil)
	repo.On("GetBooking", ctx, "bk-1").Return(&accepted, nil).Once()

	updated, err := svc.UpdateStatus(ctx, "bk-1", models.StatusAccepted, "vendor-user")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, updated.Status)
	assert.Empty(t, updated.StartOTP)
	repo.AssertExpectations(t)
}

func TestUpdateStatus_UnknownStatus(t *testing.T) {
	svc := newLifecycle(new(mockRepo), new(mockRegistry))

	_, err := svc.UpdateStatus(context.Background(), "bk-1", "DONE", "vendor-user")
	assertAppCode(t, err, apperrors.CodeInvalidInput)
}

func TestUpdateStatus_RestrictedEdges(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name string
		from string
		to   string
	}{
		{"PendingToInProgress", models.StatusPending, models.StatusInProgress},
		{"PendingToCancelled", models.StatusPending, models.StatusCancelled},
		{"AcceptedToCompleted", models.StatusAccepted, models.StatusCompleted},
		{"WaitingApprovalToInProgress", models.StatusWaitingApproval, models.StatusInProgress},
		{"CompletedToPending", models.StatusCompleted, models.StatusPending},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := new(mockRepo)
			reg := new(mockRegistry)
			svc := newLifecycle(repo, reg)

			booking := pendingBooking()
			booking.Status = tc.from
			repo.On("GetBooking", ctx, "bk-1").Return(booking, nil)
			expectVendorOwner(reg, ctx)

			_, err := svc.UpdateStatus(ctx, "bk-1", tc.to, "vendor-user")
			assertAppCode(t, err, apperrors.CodeInvalidState)
		})
	}
}

func TestUpdateStatus_ForbiddenForStranger(t *testing.T) {
	repo := new(mockRepo)
	reg := new(mockRegistry)
	svc := newLifecycle(repo, reg)
	ctx := context.Background()

	repo.On("GetBooking", ctx, "bk-1").Return(pendingBooking(), nil)
	reg.On("GetVendorByUserID", ctx, "stranger").Return(nil, database.ErrVendorNotFound)
	repo.On("GetUserByID", ctx, "stranger").Return(&models.User{ID: "stranger", Role: models.RoleClient}, nil)

	_, err := svc.UpdateStatus(ctx, "bk-1", models.StatusAccepted, "stranger")
	assertAppCode(t, err, apperrors.CodeForbidden)
}

func TestUpdateStatus_AdminAllowed(t *testing.T) {
	repo := new(mockRepo)
	reg := new(mockRegistry)
	svc := newLifecycle(repo, reg)
	ctx := context.Background()

	booking := pendingBooking()
	rejected := *booking
	rejected.Status = models.StatusRejected
	rejected.Version = 2

	repo.On("GetBooking", ctx, "bk-1").Return(booking, nil).Once()
	reg.On("GetVendorByUserID", ctx, "admin-1").Return(nil, database.ErrVendorNotFound)
	repo.On("GetUserByID", ctx, "admin-1").Return(&models.User{ID: "admin-1", Role: models.RoleAdmin}, nil)
	repo.On("UpdateBookingStatusWithVersion", ctx, "bk-1", int64(1), models.StatusRejected).Return(nil)
	repo.On("GetBooking", ctx, "bk-1").Return(&rejected, nil).Once()

	updated, err := svc.UpdateStatus(ctx, "bk-1", models.StatusRejected, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, updated.Status)
}

func TestUpdateStatus_ConcurrentModification(t *testing.T) {
	repo := new(mockRepo)
	reg := new(mockRegistry)
	svc := newLifecycle(repo, reg)
	ctx := context.Background()

	repo.On("GetBooking", ctx, "bk-1").Return(pendingBooking(), nil)
	expectVendorOwner(reg, ctx)
	repo.On("UpdateBookingStatusWithVersion", ctx, "bk-1", int64(1), models.StatusAccepted).
		Return(database.ErrConcurrentModification)

	_, err := svc.UpdateStatus(ctx, "bk-1", models.StatusAccepted, "vendor-user")
	assertAppCode(t, err, apperrors.CodeConflict)
}

func TestStartJob_Success(t *testing.T) {
	repo := new(mockRepo)
	reg := new(mockRegistry)
	svc := newLifecycle(repo, reg)
	ctx := context.Background()

	booking := pendingBooking()
	booking.Status = models.StatusAccepted
	started := *booking
	started.Status = models.StatusInProgress
	started.Version = 2

	repo.On("GetBooking", ctx, "bk-1").Return(booking, nil).Once()
	expectVendorOwner(reg, ctx)
	repo.On("UpdateBookingStatusWithVersion", ctx, "bk-1", int64(1), models.StatusInProgress).Return(nil)
	repo.On("GetBooking", ctx, "bk-1").Return(&started, nil).Once()

	updated, err := svc.StartJob(ctx, "bk-1", "1234", "vendor-user")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, updated.Status)
	assert.Empty(t, updated.StartOTP)
}

func TestStartJob_WrongOTP(t *testing.T) {
	repo := new(mockRepo)
	reg := new(mockRegistry)
	svc := newLifecycle(repo, reg)
	ctx := context.Background()

	booking := pendingBooking()
	booking.Status = models.StatusAccepted
	repo.On("GetBooking", ctx, "bk-1").Return(booking, nil)
	expectVendorOwner(reg, ctx)

	_, err := svc.StartJob(ctx, "bk-1", "0000", "vendor-user")
	assertAppCode(t, err, apperrors.CodeValidation)
}

func TestStartJob_WrongStatus(t *testing.T) {
	ctx := context.Background()

	for _, status := range []string{models.StatusPending, models.StatusInProgress, models.StatusCompleted} {
		t.Run(status, func(t *testing.T) {
			repo := new(mockRepo)
			reg := new(mockRegistry)
			svc := newLifecycle(repo, reg)

			booking := pendingBooking()
			booking.Status = status
			repo.On("GetBooking", ctx, "bk-1").Return(booking, nil)
			expectVendorOwner(reg, ctx)

			// A replayed correct code still fails the status precondition.
			_, err := svc.StartJob(ctx, "bk-1", "1234", "vendor-user")
			assertAppCode(t, err, apperrors.CodeInvalidState)
		})
	}
}

func TestStartJob_NotOwner(t *testing.T) {
	repo := new(mockRepo)
	reg := new(mockRegistry)
	svc := newLifecycle(repo, reg)
	ctx := context.Background()

	booking := pendingBooking()
	booking.Status = models.StatusAccepted
	repo.On("GetBooking", ctx, "bk-1").Return(booking, nil)
	reg.On("GetVendorByUserID", ctx, "other-vendor").Return(&models.Vendor{ID: "ven-9", UserID: "other-vendor"}, nil)

	_, err := svc.StartJob(ctx, "bk-1", "1234", "other-vendor")
	assertAppCode(t, err, apperrors.CodeForbidden)
}

func TestReviseQuote_Success(t *testing.T) {
	repo := new(mockRepo)
	reg := new(mockRegistry)
	svc := newLifecycle(repo, reg)
	ctx := context.Background()

	booking := pendingBooking()
	booking.Status = models.StatusInProgress
	finalPrice := 180.0
	reason := "extra parts needed"
	revised := *booking
	revised.Status = models.StatusWaitingApproval
	revised.FinalPrice = &finalPrice
	revised.IsPriceRevised = true
	revised.RevisionReason = &reason
	revised.Version = 2

	repo.On("GetBooking", ctx, "bk-1").Return(booking, nil).Once()
	expectVendorOwner(reg, ctx)
	repo.On("ApplyQuoteRevisionWithVersion", ctx, "bk-1", int64(1), 180.0, reason).Return(nil)
	repo.On("GetBooking", ctx, "bk-1").Return(&revised, nil).Once()

	updated, err := svc.ReviseQuote(ctx, "bk-1", 180, reason, "vendor-user")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaitingApproval, updated.Status)
	assert.True(t, updated.IsPriceRevised)
	require.NotNil(t, updated.FinalPrice)
	assert.Equal(t, 180.0, *updated.FinalPrice)
}

func TestReviseQuote_Validation(t *testing.T) {
	svc := newLifecycle(new(mockRepo), new(mockRegistry))
	ctx := context.Background()

	_, err := svc.ReviseQuote(ctx, "bk-1", -1, "reason", "vendor-user")
	assertAppCode(t, err, apperrors.CodeValidation)

	_, err = svc.ReviseQuote(ctx, "bk-1", 100, "  ", "vendor-user")
	assertAppCode(t, err, apperrors.CodeValidation)
}

func TestReviseQuote_WrongStatus(t *testing.T) {
	repo := new(mockRepo)
	reg := new(mockRegistry)
	svc := newLifecycle(repo, reg)
	ctx := context.Background()

	repo.On("GetBooking", ctx, "bk-1").Return(pendingBooking(), nil)
	expectVendorOwner(reg, ctx)

	_, err := svc.ReviseQuote(ctx, "bk-1", 180, "extra parts", "vendor-user")
	assertAppCode(t, err, apperrors.CodeInvalidState)
}

func TestReviseQuote_ConcurrentModification(t *testing.T) {
	repo := new(mockRepo)
	reg := new(mockRegistry)
	svc := newLifecycle(repo, reg)
	ctx := context.Background()

	booking := pendingBooking()
	booking.Status = models.StatusAccepted
	repo.On("GetBooking", ctx, "bk-1").Return(booking, nil)
	expectVendorOwner(reg, ctx)
	repo.On("ApplyQuoteRevisionWithVersion", ctx, "bk-1", int64(1), 180.0, "extra parts").
		Return(database.ErrConcurrentModification)

	_, err := svc.ReviseQuote(ctx, "bk-1", 180, "extra parts", "vendor-user")
	assertAppCode(t, err, apperrors.CodeConflict)
}

func TestApproveRevision_Approve(t *testing.T) {
	repo := new(mockRepo)
	reg := new(mockRegistry)
	svc := newLifecycle(repo, reg)
	ctx := context.Background()

	booking := pendingBooking()
	booking.Status = models.StatusWaitingApproval
	resumed := *booking
	resumed.Status = models.StatusInProgress
	resumed.Version = 2

	repo.On("GetBooking", ctx, "bk-1").Return(booking, nil).Once()
	repo.On("UpdateBookingStatusWithVersion", ctx, "bk-1", int64(1), models.StatusInProgress).Return(nil)
	repo.On("GetBooking", ctx, "bk-1").Return(&resumed, nil).Once()

	updated, err := svc.ApproveRevision(ctx, "bk-1", true, "client-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, updated.Status)
}

func TestApproveRevision_Reject(t *testing.T) {
	repo := new(mockRepo)
	reg := new(mockRegistry)
	svc := newLifecycle(repo, reg)
	ctx := context.Background()

	booking := pendingBooking()
	booking.Status = models.StatusWaitingApproval
	cancelled := *booking
	cancelled.Status = models.StatusCancelled
	cancelled.Version = 2

	repo.On("GetBooking", ctx, "bk-1").Return(booking, nil).Once()
	repo.On("UpdateBookingStatusWithVersion", ctx, "bk-1", int64(1), models.StatusCancelled).Return(nil)
	repo.On("GetBooking", ctx, "bk-1").Return(&cancelled, nil).Once()

	updated, err := svc.ApproveRevision(ctx, "bk-1", false, "client-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, updated.Status)
}

func TestApproveRevision_OnlyClient(t *testing.T) {
	repo := new(mockRepo)
	reg := new(mockRegistry)
	svc := newLifecycle(repo, reg)
	ctx := context.Background()

	booking := pendingBooking()
	booking.Status = models.StatusWaitingApproval
	repo.On("GetBooking", ctx, "bk-1").Return(booking, nil)

	_, err := svc.ApproveRevision(ctx, "bk-1", true, "vendor-user")
	assertAppCode(t, err, apperrors.CodeForbidden)
}

func TestApproveRevision_NoPendingRevision(t *testing.T) {
	repo := new(mockRepo)
	reg := new(mockRegistry)
	svc := newLifecycle(repo, reg)
	ctx := context.Background()

	booking := pendingBooking()
	booking.Status = models.StatusInProgress
	repo.On("GetBooking", ctx, "bk-1").Return(booking, nil)

	_, err := svc.ApproveRevision(ctx, "bk-1", true, "client-1")
	assertAppCode(t, err, apperrors.CodeInvalidState)
}

func TestGenerateStartOTPRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		otp, err := generateStartOTP()
		require.NoError(t, err)
		require.Len(t, otp, 4)
		assert.GreaterOrEqual(t, otp, "1000")
		assert.LessOrEqual(t, otp, "9999")
	}
}
