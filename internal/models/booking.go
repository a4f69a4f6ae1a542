package models

import "time"

type Booking struct {
	ID                 string    `json:"id"`
	ClientID           string    `json:"client_id"`
	VendorID           string    `json:"vendor_id"`
	ServiceID          string    `json:"service_id"`
	ScheduledDate      time.Time `json:"scheduled_date"`
	ProblemDescription string    `json:"problem_description"`
	Address            string    `json:"address"`
	TotalPrice         float64   `json:"total_price"`
	FinalPrice         *float64  `json:"final_price,omitempty"`
	IsPriceRevised     bool      `json:"is_price_revised"`
	RevisionReason     *string   `json:"revision_reason,omitempty"`
	StartOTP           string    `json:"start_otp,omitempty"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	Version            int64     `json:"version"`
}

// BookingView is a booking joined with its service and the counterpart
// party's public contact fields, as returned by the list operations.
type BookingView struct {
	Booking
	ServiceName      string `json:"service_name"`
	CounterpartName  string `json:"counterpart_name"`
	CounterpartPhone string `json:"counterpart_phone"`
}
