// README: Order store interface and PostgreSQL implementation.
package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"levo/internal/types"
)

// Transition is the atomic write applied on a successful status change.
type Transition struct {
	To            Status
	ActorID       *types.ID
	AssignCourier *types.ID
	Note          *string
	PhotoRef      *string
	At            time.Time
}

// Filter narrows List to what the caller's role may see.
type Filter struct {
	Status *Status
	// PartyID matches orders where the id is the shipper or intermediary.
	PartyID *types.ID
	// CourierID matches orders assigned to the courier; combined with
	// IncludeUnassigned it also matches the open pool of unassigned
	// orders (StatusNew and StatusPendingAssignment).
	CourierID         *types.ID
	IncludeUnassigned bool
}

type Store interface {
	// Create persists the order and its initial history entry atomically.
	Create(ctx context.Context, o *Order, first HistoryEntry) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	List(ctx context.Context, f Filter) ([]Order, error)
	History(ctx context.Context, orderID types.ID) ([]HistoryEntry, error)
	// ApplyTransition performs the compare-and-set status update plus the
	// history append in one transaction. It reports false when the order
	// was concurrently modified (status or version no longer match).
	ApplyTransition(ctx context.Context, id types.ID, from Status, version int, t Transition) (bool, error)
	// ForceStatus sets the status unconditionally (gateway-triggered
	// dispute path). Returns false when the order already has the status.
	ForceStatus(ctx context.Context, id types.ID, to Status, entry HistoryEntry) (bool, error)
}

var errTrackingCodeTaken = errors.New("tracking code taken")

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Create(ctx context.Context, o *Order, first HistoryEntry) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, tracking_code, shipper_id, shipper_role, intermediary_id, courier_id,
			origin_street, origin_number, origin_district, origin_city, origin_state, origin_postal_code, origin_lat, origin_lng,
			dest_street, dest_number, dest_district, dest_city, dest_state, dest_postal_code, dest_lat, dest_lng,
			tier, fare, payout, fee, currency, distance_km, item_count, weight_kg,
			status, status_version, scheduled_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22,
			$23, $24, $25, $26, $27, $28, $29, $30,
			$31, $32, $33, $34
		)`,
		string(o.ID), o.TrackingCode, string(o.ShipperID), string(o.ShipperRole), idPtr(o.IntermediaryID), idPtr(o.CourierID),
		o.Origin.Street, o.Origin.Number, o.Origin.District, o.Origin.City, o.Origin.State, o.Origin.PostalCode, o.Origin.Position.Lat, o.Origin.Position.Lng,
		o.Destination.Street, o.Destination.Number, o.Destination.District, o.Destination.City, o.Destination.State, o.Destination.PostalCode, o.Destination.Position.Lat, o.Destination.Position.Lng,
		string(o.Tier), o.Fare, o.Payout, o.Fee, o.Currency, o.DistanceKm, o.ItemCount, o.WeightKg,
		string(o.Status), o.StatusVersion, o.ScheduledAt, o.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "orders_tracking_code_key" {
			return errTrackingCodeTaken
		}
		return err
	}

	if err := appendHistoryTx(ctx, tx, first); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PgStore) Get(ctx context.Context, id types.ID) (*Order, error) {
	rows, err := s.db.Query(ctx, selectOrders+` WHERE id = $1`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	o, err := scanOrder(rows)
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PgStore) List(ctx context.Context, f Filter) ([]Order, error) {
	query := selectOrders + ` WHERE 1=1`
	args := []any{}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if f.PartyID != nil {
		args = append(args, string(*f.PartyID))
		query += fmt.Sprintf(` AND (shipper_id = $%d OR intermediary_id = $%d)`, len(args), len(args))
	}
	if f.CourierID != nil {
		args = append(args, string(*f.CourierID))
		if f.IncludeUnassigned {
			query += fmt.Sprintf(` AND (courier_id = $%d OR (courier_id IS NULL AND status IN ('new', 'pending_assignment')))`, len(args))
		} else {
			query += fmt.Sprintf(` AND courier_id = $%d`, len(args))
		}
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (s *PgStore) History(ctx context.Context, orderID types.ID) ([]HistoryEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, status, actor_id, note, photo_ref, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY id ASC`, string(orderID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var actorID, note, photoRef sql.NullString
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Status, &actorID, &note, &photoRef, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actorID.Valid {
			a := types.ID(actorID.String)
			e.ActorID = &a
		}
		if note.Valid {
			e.Note = &note.String
		}
		if photoRef.Valid {
			e.PhotoRef = &photoRef.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PgStore) ApplyTransition(ctx context.Context, id types.ID, from Status, version int, t Transition) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    status_version = status_version + 1,
		    courier_id = COALESCE($2, courier_id),
		    accepted_at = CASE WHEN $1 = 'accepted' THEN $3 ELSE accepted_at END,
		    picked_up_at = CASE WHEN $1 = 'picked_up' THEN $3 ELSE picked_up_at END,
		    delivered_at = CASE WHEN $1 = 'delivered' THEN $3 ELSE delivered_at END,
		    cancelled_at = CASE WHEN $1 = 'cancelled' THEN $3 ELSE cancelled_at END,
		    pickup_photo_ref = CASE WHEN $1 = 'picked_up' THEN COALESCE($4, pickup_photo_ref) ELSE pickup_photo_ref END,
		    delivery_photo_ref = CASE WHEN $1 = 'delivered' THEN COALESCE($4, delivery_photo_ref) ELSE delivery_photo_ref END
		WHERE id = $5 AND status = $6 AND status_version = $7`,
		string(t.To), idPtr(t.AssignCourier), t.At, t.PhotoRef,
		string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	err = appendHistoryTx(ctx, tx, HistoryEntry{
		OrderID:   id,
		Status:    t.To,
		ActorID:   t.ActorID,
		Note:      t.Note,
		PhotoRef:  t.PhotoRef,
		CreatedAt: t.At,
	})
	if err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (s *PgStore) ForceStatus(ctx context.Context, id types.ID, to Status, entry HistoryEntry) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $1, status_version = status_version + 1
		WHERE id = $2 AND status <> $1`,
		string(to), string(id),
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	if err := appendHistoryTx(ctx, tx, entry); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func appendHistoryTx(ctx context.Context, tx pgx.Tx, e HistoryEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO order_status_history (order_id, status, actor_id, note, photo_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.OrderID), string(e.Status), idPtr(e.ActorID), e.Note, e.PhotoRef, e.CreatedAt,
	)
	return err
}

const selectOrders = `
	SELECT id, tracking_code, shipper_id, shipper_role, intermediary_id, courier_id,
	       origin_street, origin_number, origin_district, origin_city, origin_state, origin_postal_code, origin_lat, origin_lng,
	       dest_street, dest_number, dest_district, dest_city, dest_state, dest_postal_code, dest_lat, dest_lng,
	       tier, fare, payout, fee, currency, distance_km, item_count, weight_kg,
	       status, status_version, pickup_photo_ref, delivery_photo_ref,
	       scheduled_at, created_at, accepted_at, picked_up_at, delivered_at, cancelled_at
	FROM orders`

func scanOrder(rows pgx.Rows) (*Order, error) {
	var o Order
	var intermediaryID, courierID, pickupPhoto, deliveryPhoto sql.NullString
	var itemCount sql.NullInt32
	var weightKg sql.NullFloat64
	var scheduledAt, acceptedAt, pickedUpAt, deliveredAt, cancelledAt sql.NullTime

	err := rows.Scan(
		&o.ID, &o.TrackingCode, &o.ShipperID, &o.ShipperRole, &intermediaryID, &courierID,
		&o.Origin.Street, &o.Origin.Number, &o.Origin.District, &o.Origin.City, &o.Origin.State, &o.Origin.PostalCode, &o.Origin.Position.Lat, &o.Origin.Position.Lng,
		&o.Destination.Street, &o.Destination.Number, &o.Destination.District, &o.Destination.City, &o.Destination.State, &o.Destination.PostalCode, &o.Destination.Position.Lat, &o.Destination.Position.Lng,
		&o.Tier, &o.Fare, &o.Payout, &o.Fee, &o.Currency, &o.DistanceKm, &itemCount, &weightKg,
		&o.Status, &o.StatusVersion, &pickupPhoto, &deliveryPhoto,
		&scheduledAt, &o.CreatedAt, &acceptedAt, &pickedUpAt, &deliveredAt, &cancelledAt,
	)
	if err != nil {
		return nil, err
	}

	if intermediaryID.Valid {
		v := types.ID(intermediaryID.String)
		o.IntermediaryID = &v
	}
	if courierID.Valid {
		v := types.ID(courierID.String)
		o.CourierID = &v
	}
	if pickupPhoto.Valid {
		o.PickupPhotoRef = &pickupPhoto.String
	}
	if deliveryPhoto.Valid {
		o.DeliveryPhotoRef = &deliveryPhoto.String
	}
	if itemCount.Valid {
		v := int(itemCount.Int32)
		o.ItemCount = &v
	}
	if weightKg.Valid {
		o.WeightKg = &weightKg.Float64
	}
	o.ScheduledAt = toTimePtr(scheduledAt)
	o.AcceptedAt = toTimePtr(acceptedAt)
	o.PickedUpAt = toTimePtr(pickedUpAt)
	o.DeliveredAt = toTimePtr(deliveredAt)
	o.CancelledAt = toTimePtr(cancelledAt)
	return &o, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

