// README: Courier position store backed by Redis GEO and Postgres snapshots.
package location

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"levo/internal/types"
)

const courierGeoKey = "location:couriers"

type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewStore(db *pgxpool.Pool, redis *redis.Client) *Store {
	return &Store{db: db, redis: redis}
}

func (s *Store) SetPosition(ctx context.Context, courierID types.ID, p types.Point) error {
	return s.redis.GeoAdd(ctx, courierGeoKey, &redis.GeoLocation{
		Name:      string(courierID),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

func (s *Store) Remove(ctx context.Context, courierID types.ID) error {
	return s.redis.ZRem(ctx, courierGeoKey, string(courierID)).Err()
}

// Nearby returns couriers within radiusKm of p, closest first.
func (s *Store) Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]CourierLocation, error) {
	results, err := s.redis.GeoSearchLocation(ctx, courierGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  p.Lng,
			Latitude:   p.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]CourierLocation, len(results))
	for i, r := range results {
		out[i] = CourierLocation{
			CourierID: types.ID(r.Name),
			Position:  types.Point{Lat: r.Latitude, Lng: r.Longitude},
			Distance:  r.Dist,
		}
	}
	return out, nil
}

func (s *Store) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO courier_location_snapshots (courier_id, lat, lng, recorded_at)
		VALUES ($1, $2, $3, $4)`,
		string(snap.CourierID), snap.Position.Lat, snap.Position.Lng, snap.RecordedAt,
	)
	return err
}
