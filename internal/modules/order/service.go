// README: Order service implements creation, role-gated reads, and the lifecycle state machine.
package order

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"levo/internal/modules/location"
	"levo/internal/modules/pricing"
	"levo/internal/types"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrValidation        = errors.New("invalid order request")
	ErrInvalidTransition = errors.New("transition not allowed")
	ErrAlreadyAssigned   = errors.New("order already assigned to another courier")
	ErrAccessDenied      = errors.New("access denied")
	ErrConflict          = errors.New("order state conflict")
)

// Pricer computes the fare split for an order; implemented by pricing.Service.
type Pricer interface {
	Quote(distanceKm float64, tier pricing.Tier) (pricing.Quote, error)
}

type Service struct {
	store  Store
	pricer Pricer
	log    *slog.Logger
}

func NewService(store Store, pricer Pricer, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, pricer: pricer, log: log}
}

type CreateCommand struct {
	Actor        Actor
	Intermediary *types.ID
	Origin       Address
	Destination  Address
	Tier         pricing.Tier
	// DistanceKm carries the quote-time distance so the persisted fare
	// matches the quoted one exactly. Zero means compute it here.
	DistanceKm  float64
	ItemCount   *int
	WeightKg    *float64
	ScheduledAt *time.Time
}

// Create validates the command, prices the route, and persists the order in
// StatusNew together with its first history entry.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	if !cmd.Actor.Role.IsShipper() {
		return nil, ErrAccessDenied
	}
	if err := validateCreate(cmd); err != nil {
		return nil, err
	}

	distance := cmd.DistanceKm
	if distance <= 0 {
		distance = location.HaversineKm(cmd.Origin.Position, cmd.Destination.Position)
	}
	quote, err := s.pricer.Quote(distance, cmd.Tier)
	if err != nil {
		return nil, ErrValidation
	}

	now := time.Now()
	o := &Order{
		ID:             newID(),
		ShipperID:      cmd.Actor.ID,
		ShipperRole:    cmd.Actor.Role,
		IntermediaryID: cmd.Intermediary,
		Origin:         cmd.Origin,
		Destination:    cmd.Destination,
		Tier:           cmd.Tier,
		Fare:           quote.Fare,
		Payout:         quote.Payout,
		Fee:            quote.Fee,
		Currency:       "BRL",
		DistanceKm:     distance,
		ItemCount:      cmd.ItemCount,
		WeightKg:       cmd.WeightKg,
		Status:         StatusNew,
		StatusVersion:  0,
		ScheduledAt:    cmd.ScheduledAt,
		CreatedAt:      now,
	}

	first := HistoryEntry{
		OrderID:   o.ID,
		Status:    StatusNew,
		ActorID:   &cmd.Actor.ID,
		CreatedAt: now,
	}

	// Tracking codes are random; retry a few times if the unique
	// constraint rejects one.
	for attempt := 0; attempt < 3; attempt++ {
		o.TrackingCode = NewTrackingCode()
		err = s.store.Create(ctx, o, first)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, errTrackingCodeTaken) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: tracking code allocation failed", ErrConflict)
}

func validateCreate(cmd CreateCommand) error {
	if !cmd.Tier.Valid() {
		return ErrValidation
	}
	if cmd.Tier == pricing.TierScheduled {
		if cmd.ScheduledAt == nil || cmd.ScheduledAt.Before(time.Now()) {
			return ErrValidation
		}
	}
	for _, a := range []Address{cmd.Origin, cmd.Destination} {
		if a.Street == "" || a.City == "" || a.PostalCode == "" {
			return ErrValidation
		}
		if a.Position.Lat == 0 && a.Position.Lng == 0 {
			return ErrValidation
		}
	}
	return nil
}

type TransitionCommand struct {
	OrderID  types.ID
	Target   Status
	Actor    Actor
	Note     *string
	PhotoRef *string
}

// Transition validates and applies one status change. The permitted-
// transition table is checked first, then the role permission, then the
// accept-assignment rule; the write itself is a compare-and-set so a
// concurrent winner makes the loser fail rather than be overwritten.
func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) error {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if !CanTransition(o.Status, cmd.Target) {
		return ErrInvalidTransition
	}
	if !RoleCanRequest(cmd.Actor.Role, cmd.Target) {
		return ErrAccessDenied
	}
	if err := checkParty(o, cmd.Actor, cmd.Target); err != nil {
		return err
	}

	t := Transition{
		To:       cmd.Target,
		ActorID:  &cmd.Actor.ID,
		Note:     cmd.Note,
		PhotoRef: cmd.PhotoRef,
		At:       time.Now(),
	}
	if cmd.Target == StatusAccepted && cmd.Actor.Role == RoleCourier {
		if o.CourierID != nil && *o.CourierID != cmd.Actor.ID {
			return ErrAlreadyAssigned
		}
		t.AssignCourier = &cmd.Actor.ID
	}

	ok, err := s.store.ApplyTransition(ctx, o.ID, o.Status, o.StatusVersion, t)
	if err != nil {
		return err
	}
	if !ok {
		return s.loserError(ctx, cmd)
	}

	s.log.Info("order transition",
		"order_id", o.ID, "from", o.Status, "to", cmd.Target, "actor", cmd.Actor.ID)
	return nil
}

// checkParty ensures the actor is actually a party to the order it wants to
// move. Accepting binds the courier and is governed by the assignment rule
// in Transition; every later courier move must come from the assigned
// courier, and a cancel must come from the order's own shipper or
// intermediary. Administrators are exempt.
func checkParty(o *Order, actor Actor, target Status) error {
	switch {
	case actor.Role == RoleAdmin:
		return nil
	case actor.Role == RoleCourier:
		if target == StatusAccepted {
			return nil
		}
		if o.CourierID == nil || *o.CourierID != actor.ID {
			return ErrAccessDenied
		}
	case actor.Role.IsShipper():
		if o.ShipperID != actor.ID &&
			(o.IntermediaryID == nil || *o.IntermediaryID != actor.ID) {
			return ErrAccessDenied
		}
	}
	return nil
}

// loserError re-reads the order so the losing side of a race gets the most
// descriptive rejection available.
func (s *Service) loserError(ctx context.Context, cmd TransitionCommand) error {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return ErrConflict
	}
	if cmd.Target == StatusAccepted && o.CourierID != nil && *o.CourierID != cmd.Actor.ID {
		return ErrAlreadyAssigned
	}
	if !CanTransition(o.Status, cmd.Target) {
		return ErrInvalidTransition
	}
	return ErrConflict
}

// MarkPaymentConfirmed advances a freshly paid order to PendingAssignment,
// making it visible to couriers. Replays and late deliveries are no-ops.
func (s *Service) MarkPaymentConfirmed(ctx context.Context, orderID types.ID) error {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status != StatusNew {
		return nil
	}
	note := "payment confirmed"
	ok, err := s.store.ApplyTransition(ctx, o.ID, o.Status, o.StatusVersion, Transition{
		To:   StatusPendingAssignment,
		Note: &note,
		At:   time.Now(),
	})
	if err != nil {
		return err
	}
	if !ok {
		// Lost a race with another confirmation or a cancel; whoever
		// won has already moved the order on.
		return nil
	}
	s.log.Info("order awaiting assignment", "order_id", orderID)
	return nil
}

// ForceDispute freezes the order in StatusDisputed regardless of its current
// state. This is the single gateway-triggered transition that bypasses the
// permitted-transition table.
func (s *Service) ForceDispute(ctx context.Context, orderID types.ID, note string) error {
	_, err := s.store.Get(ctx, orderID)
	if err != nil {
		return err
	}
	_, err = s.store.ForceStatus(ctx, orderID, StatusDisputed, HistoryEntry{
		OrderID:   orderID,
		Status:    StatusDisputed,
		Note:      &note,
		CreatedAt: time.Now(),
	})
	return err
}

// Find loads an order without role gating. It exists for in-process
// collaborators (payment coordination, reconciliation); HTTP reads go
// through Get.
func (s *Service) Find(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.Get(ctx, id)
}

// List returns the orders the actor is allowed to see, optionally narrowed
// by status.
func (s *Service) List(ctx context.Context, actor Actor, status *Status) ([]Order, error) {
	f := Filter{Status: status}
	switch {
	case actor.Role == RoleAdmin:
		// admins see everything
	case actor.Role.IsShipper():
		f.PartyID = &actor.ID
	case actor.Role == RoleCourier:
		f.CourierID = &actor.ID
		f.IncludeUnassigned = true
	default:
		return nil, ErrAccessDenied
	}
	return s.store.List(ctx, f)
}

// Detail is an order with its full status timeline.
type Detail struct {
	Order   Order
	History []HistoryEntry
}

// Get returns one order's detail, gated to its parties, couriers browsing
// the open pool, and administrators. Callers outside that set are refused
// outright.
func (s *Service) Get(ctx context.Context, actor Actor, id types.ID) (*Detail, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSeeDetail(actor, o) {
		return nil, ErrAccessDenied
	}
	history, err := s.store.History(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Detail{Order: *o, History: history}, nil
}

func canSeeDetail(actor Actor, o *Order) bool {
	switch {
	case actor.Role == RoleAdmin:
		return true
	case o.ShipperID == actor.ID:
		return true
	case o.IntermediaryID != nil && *o.IntermediaryID == actor.ID:
		return true
	case o.CourierID != nil && *o.CourierID == actor.ID:
		return true
	case actor.Role == RoleCourier && o.CourierID == nil &&
		(o.Status == StatusNew || o.Status == StatusPendingAssignment):
		// Open-pool orders are visible to any courier who could accept them.
		return true
	}
	return false
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}
