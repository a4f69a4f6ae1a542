package models

// Booking lifecycle statuses.
const (
	StatusPending         = "PENDING"
	StatusAccepted        = "ACCEPTED"
	StatusInProgress      = "IN_PROGRESS"
	StatusWaitingApproval = "WAITING_APPROVAL"
	StatusCompleted       = "COMPLETED"
	StatusRejected        = "REJECTED"
	StatusCancelled       = "CANCELLED"
)

// User roles.
const (
	RoleClient = "CLIENT"
	RoleVendor = "VENDOR"
	RoleAdmin  = "ADMIN"
)

// Statuses returns the full status set, e.g. for validation.
func Statuses() []string {
	return []string{
		StatusPending,
		StatusAccepted,
		StatusInProgress,
		StatusWaitingApproval,
		StatusCompleted,
		StatusRejected,
		StatusCancelled,
	}
}

// IsTerminalStatus reports whether no transition leaves the given status.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}
