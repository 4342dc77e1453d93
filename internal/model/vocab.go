package model

// Issue statuses as reported by the dashboard API.
const (
	StatusReported   = "REPORTED"
	StatusValidated  = "VALIDATED"
	StatusAssigned   = "ASSIGNED"
	StatusInProgress = "IN_PROGRESS"
	StatusResolved   = "RESOLVED"
	StatusClosed     = "CLOSED"
)

// Issue categories as reported by the dashboard API.
const (
	CategoryPothole     = "POTHOLE"
	CategoryStreetlight = "STREETLIGHT"
	CategoryGraffiti    = "GRAFFITI"
	CategoryTrash       = "TRASH"
	CategoryNoise       = "NOISE"
	CategoryOther       = "OTHER"
)

// Statuses lists the known statuses in workflow order.
var Statuses = []string{
	StatusReported,
	StatusValidated,
	StatusAssigned,
	StatusInProgress,
	StatusResolved,
	StatusClosed,
}

// IsOpenStatus returns true for statuses the server counts as open.
func IsOpenStatus(status string) bool {
	switch status {
	case StatusReported, StatusValidated, StatusAssigned, StatusInProgress:
		return true
	}
	return false
}
