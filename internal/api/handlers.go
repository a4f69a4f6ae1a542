package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"fixly/internal/domain"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type createBookingRequest struct {
	ServiceID          string    `json:"service_id" validate:"required"`
	ScheduledDate      time.Time `json:"scheduled_date" validate:"required"`
	ProblemDescription string    `json:"problem_description" validate:"required"`
	Address            string    `json:"address" validate:"required"`
	TotalPrice         float64   `json:"total_price" validate:"gte=0"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type startJobRequest struct {
	OTP string `json:"otp" validate:"required"`
}

type reviseQuoteRequest struct {
	FinalPrice     float64 `json:"final_price" validate:"gte=0"`
	RevisionReason string  `json:"revision_reason" validate:"required"`
}

type quoteDecisionRequest struct {
	Approved *bool `json:"approved" validate:"required"`
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createBookingRequest
	if !s.decode(w, r, &req) {
		return
	}

	booking, err := s.svc.Create(r.Context(), principal.UserID, domain.CreateBookingInput{
		ServiceID:          req.ServiceID,
		ScheduledDate:      req.ScheduledDate,
		ProblemDescription: req.ProblemDescription,
		Address:            req.Address,
		TotalPrice:         req.TotalPrice,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"booking": booking})
}

func (s *HTTPServer) handleMyBookings(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	views, err := s.svc.ListForClient(r.Context(), principal.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"bookings": views})
}

func (s *HTTPServer) handleAssignedBookings(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	views, err := s.svc.ListForVendor(r.Context(), principal.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"bookings": views})
}

func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req updateStatusRequest
	if !s.decode(w, r, &req) {
		return
	}

	booking, err := s.svc.UpdateStatus(r.Context(), r.PathValue("id"), strings.ToUpper(strings.TrimSpace(req.Status)), principal.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"booking": booking})
}

func (s *HTTPServer) handleStartJob(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req startJobRequest
	if !s.decode(w, r, &req) {
		return
	}

	booking, err := s.svc.StartJob(r.Context(), r.PathValue("id"), strings.TrimSpace(req.OTP), principal.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"booking": booking})
}

func (s *HTTPServer) handleReviseQuote(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req reviseQuoteRequest
	if !s.decode(w, r, &req) {
		return
	}

	booking, err := s.svc.ReviseQuote(r.Context(), r.PathValue("id"), req.FinalPrice, req.RevisionReason, principal.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"booking": booking})
}

func (s *HTTPServer) handleQuoteDecision(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req quoteDecisionRequest
	if !s.decode(w, r, &req) {
		return
	}

	booking, err := s.svc.ApproveRevision(r.Context(), r.PathValue("id"), *req.Approved, principal.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"booking": booking})
}

// principal reads the caller identity from context, falling back to the raw
// gateway headers when auth middleware is disabled.
func (s *HTTPServer) principal(r *http.Request) (Principal, bool) {
	if p, ok := PrincipalFromContext(r.Context()); ok {
		return p, true
	}

	p, err := s.auth.extractPrincipal(r)
	if err != nil {
		return Principal{}, false
	}
	return p, true
}

// decode parses and validates the JSON body, writing a 400 on failure.
func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var fields []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				fields = append(fields, fe.Field())
			}
		}
		writeError(w, http.StatusBadRequest, "invalid request: "+strings.Join(fields, ", "))
		return false
	}
	return true
}
