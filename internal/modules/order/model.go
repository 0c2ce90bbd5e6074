// README: Delivery order aggregate, status definitions, and permission tables.
package order

import (
	"time"

	"levo/internal/modules/pricing"
	"levo/internal/types"
)

type Status string

const (
	StatusNew               Status = "new"
	StatusPendingAssignment Status = "pending_assignment"
	StatusAccepted          Status = "accepted"
	StatusEnRoutePickup     Status = "en_route_pickup"
	StatusPickedUp          Status = "picked_up"
	StatusInTransit         Status = "in_transit"
	StatusDelivered         Status = "delivered"
	StatusCancelled         Status = "cancelled"
	StatusDisputed          Status = "disputed"
)

// AllowedTransitions represents the delivery state flow (diagram) as code.
// Disputed is reachable from Delivered through the table; the gateway
// chargeback path forces it from any state and bypasses this table.
var AllowedTransitions = map[Status][]Status{
	StatusNew:               {StatusPendingAssignment, StatusCancelled},
	StatusPendingAssignment: {StatusAccepted, StatusCancelled},
	StatusAccepted:          {StatusEnRoutePickup, StatusCancelled},
	StatusEnRoutePickup:     {StatusPickedUp},
	StatusPickedUp:          {StatusInTransit},
	StatusInTransit:         {StatusDelivered},
	StatusDelivered:         {StatusDisputed},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

type Role string

const (
	RoleCourier      Role = "courier"
	RoleStore        Role = "store"
	RoleFactory      Role = "factory"
	RoleIntermediary Role = "intermediary"
	RoleAdmin        Role = "admin"
)

// IsShipper reports whether the role belongs to the shipper family.
func (r Role) IsShipper() bool {
	return r == RoleStore || r == RoleFactory || r == RoleIntermediary
}

func (r Role) Known() bool {
	switch r {
	case RoleCourier, RoleStore, RoleFactory, RoleIntermediary, RoleAdmin:
		return true
	}
	return false
}

var courierTargets = map[Status]bool{
	StatusAccepted:      true,
	StatusEnRoutePickup: true,
	StatusPickedUp:      true,
	StatusInTransit:     true,
	StatusDelivered:     true,
}

// RoleCanRequest is the (role, target-status) permission lookup. It only
// answers who may ask; whether the move is legal at all is CanTransition.
func RoleCanRequest(role Role, target Status) bool {
	switch {
	case role == RoleAdmin:
		return true
	case role == RoleCourier:
		return courierTargets[target]
	case role.IsShipper():
		return target == StatusCancelled
	}
	return false
}

// Actor is the authenticated caller of a core operation.
type Actor struct {
	ID   types.ID
	Role Role
}

// Address is snapshotted onto the order at creation and never re-resolved.
type Address struct {
	Street     string
	Number     string
	District   string
	City       string
	State      string
	PostalCode string
	Position   types.Point
}

type Order struct {
	ID           types.ID
	TrackingCode string

	ShipperID      types.ID
	ShipperRole    Role
	IntermediaryID *types.ID
	CourierID      *types.ID

	Origin      Address
	Destination Address

	Tier     pricing.Tier
	Fare     int64
	Payout   int64
	Fee      int64
	Currency string

	DistanceKm float64
	ItemCount  *int
	WeightKg   *float64

	Status        Status
	StatusVersion int

	PickupPhotoRef   *string
	DeliveryPhotoRef *string

	ScheduledAt *time.Time
	CreatedAt   time.Time
	AcceptedAt  *time.Time
	PickedUpAt  *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time
}

// HistoryEntry is one row of the append-only status log.
type HistoryEntry struct {
	ID        int64
	OrderID   types.ID
	Status    Status
	ActorID   *types.ID
	Note      *string
	PhotoRef  *string
	CreatedAt time.Time
}
