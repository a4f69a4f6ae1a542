package models

import "time"

// Vendor is a service-providing profile owned by exactly one user.
type Vendor struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	BusinessName string    `json:"business_name"`
	Approved     bool      `json:"approved"`
	CreatedAt    time.Time `json:"created_at"`
}

type Service struct {
	ID        string    `json:"id"`
	VendorID  string    `json:"vendor_id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// ServiceListing is a service resolved together with its owning vendor,
// the shape the registry cache stores.
type ServiceListing struct {
	ServiceID    string  `json:"service_id"`
	ServiceName  string  `json:"service_name"`
	VendorID     string  `json:"vendor_id"`
	VendorUserID string  `json:"vendor_user_id"`
	Price        float64 `json:"price"`
}
