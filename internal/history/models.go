package history

import "time"

// DeploymentRecord represents a single deployment attempt in the database
type DeploymentRecord struct {
	ID              int64
	Site            string
	Client          string // client fingerprint
	Status          string // success, name_taken, failed
	CreatedAt       time.Time
	DeploymentID    *string  // nullable, provider-assigned
	URL             *string  // nullable
	DurationSeconds *float64 // nullable
	ErrorMessage    *string  // nullable
}
