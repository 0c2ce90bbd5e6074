// README: Location service handles courier position updates and nearby search.
package location

import (
	"context"
	"errors"
	"time"

	"levo/internal/types"
)

// DefaultRadiusKm is the cutoff for candidate-courier proximity search.
const DefaultRadiusKm = 15.0

var ErrBadPosition = errors.New("position out of range")

type Service struct {
	store    *Store
	radiusKm float64
}

// NewService builds the location service. radiusKm is the default proximity
// cutoff; zero or negative picks DefaultRadiusKm.
func NewService(store *Store, radiusKm float64) *Service {
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}
	return &Service{store: store, radiusKm: radiusKm}
}

type Update struct {
	CourierID types.ID
	Position  types.Point
}

// Update refreshes the live GEO index and appends an audit snapshot. The
// snapshot write is best-effort; losing one must not reject the update.
func (s *Service) Update(ctx context.Context, u Update) error {
	if u.Position.Lat < -90 || u.Position.Lat > 90 || u.Position.Lng < -180 || u.Position.Lng > 180 {
		return ErrBadPosition
	}
	if err := s.store.SetPosition(ctx, u.CourierID, u.Position); err != nil {
		return err
	}
	_ = s.store.AppendSnapshot(ctx, Snapshot{
		CourierID:  u.CourierID,
		Position:   u.Position,
		RecordedAt: time.Now(),
	})
	return nil
}

// NearbyCouriers returns couriers within radiusKm of p sorted by distance
// ascending. radiusKm <= 0 falls back to the configured cutoff.
func (s *Service) NearbyCouriers(ctx context.Context, p types.Point, radiusKm float64) ([]CourierLocation, error) {
	if radiusKm <= 0 {
		radiusKm = s.radiusKm
	}
	couriers, err := s.store.Nearby(ctx, p, radiusKm)
	if err != nil {
		return nil, err
	}
	// Redis already sorts, but the contract is ours to keep.
	sortByDistance(couriers, func(c CourierLocation) float64 { return c.Distance })
	return couriers, nil
}
