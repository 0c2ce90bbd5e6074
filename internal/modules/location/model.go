// README: Courier position models for the live GEO index and audit snapshots.
package location

import (
	"time"

	"levo/internal/types"
)

// CourierLocation is a courier's last known position with its distance from
// a search centre, in kilometres.
type CourierLocation struct {
	CourierID types.ID
	Position  types.Point
	Distance  float64
}

// Snapshot is an append-only last-known-coordinate record kept for audit.
// The platform stores positions only; it never extrapolates movement.
type Snapshot struct {
	ID         int64
	CourierID  types.ID
	Position   types.Point
	RecordedAt time.Time
}
