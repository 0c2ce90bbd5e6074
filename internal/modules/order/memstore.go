// README: In-memory order store for tests and local runs without Postgres.
package order

import (
	"context"
	"sync"

	"levo/internal/types"
)

// MemStore implements Store with a mutex providing the same compare-and-set
// semantics as the conditional UPDATE in PgStore.
type MemStore struct {
	mu      sync.Mutex
	orders  map[types.ID]*Order
	history map[types.ID][]HistoryEntry
	codes   map[string]bool
	nextID  int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		orders:  make(map[types.ID]*Order),
		history: make(map[types.ID][]HistoryEntry),
		codes:   make(map[string]bool),
	}
}

func (s *MemStore) Create(_ context.Context, o *Order, first HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.codes[o.TrackingCode] {
		return errTrackingCodeTaken
	}
	s.codes[o.TrackingCode] = true

	cp := *o
	s.orders[o.ID] = &cp
	s.appendHistoryLocked(first)
	return nil
}

func (s *MemStore) Get(_ context.Context, id types.ID) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *MemStore) List(_ context.Context, f Filter) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Order
	for _, o := range s.orders {
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		if f.PartyID != nil {
			if o.ShipperID != *f.PartyID &&
				(o.IntermediaryID == nil || *o.IntermediaryID != *f.PartyID) {
				continue
			}
		}
		if f.CourierID != nil {
			assigned := o.CourierID != nil && *o.CourierID == *f.CourierID
			open := o.CourierID == nil &&
				(o.Status == StatusNew || o.Status == StatusPendingAssignment)
			if !assigned && !(f.IncludeUnassigned && open) {
				continue
			}
		}
		out = append(out, *o)
	}
	return out, nil
}

func (s *MemStore) History(_ context.Context, orderID types.ID) ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.history[orderID]
	out := make([]HistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *MemStore) ApplyTransition(_ context.Context, id types.ID, from Status, version int, t Transition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	if o.Status != from || o.StatusVersion != version {
		return false, nil
	}

	o.Status = t.To
	o.StatusVersion++
	if t.AssignCourier != nil {
		o.CourierID = t.AssignCourier
	}
	at := t.At
	switch t.To {
	case StatusAccepted:
		o.AcceptedAt = &at
	case StatusPickedUp:
		o.PickedUpAt = &at
		if t.PhotoRef != nil {
			o.PickupPhotoRef = t.PhotoRef
		}
	case StatusDelivered:
		o.DeliveredAt = &at
		if t.PhotoRef != nil {
			o.DeliveryPhotoRef = t.PhotoRef
		}
	case StatusCancelled:
		o.CancelledAt = &at
	}

	s.appendHistoryLocked(HistoryEntry{
		OrderID:   id,
		Status:    t.To,
		ActorID:   t.ActorID,
		Note:      t.Note,
		PhotoRef:  t.PhotoRef,
		CreatedAt: t.At,
	})
	return true, nil
}

func (s *MemStore) ForceStatus(_ context.Context, id types.ID, to Status, entry HistoryEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return false, ErrNotFound
	}
	if o.Status == to {
		return false, nil
	}
	o.Status = to
	o.StatusVersion++
	s.appendHistoryLocked(entry)
	return true, nil
}

func (s *MemStore) appendHistoryLocked(e HistoryEntry) {
	s.nextID++
	e.ID = s.nextID
	s.history[e.OrderID] = append(s.history[e.OrderID], e)
}
