// README: Order handlers for create, list, detail, and lifecycle transitions.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"levo/internal/modules/order"
	"levo/internal/modules/pricing"
	"levo/internal/types"
)

type OrderHandler struct {
	order *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{order: svc}
}

type addressReq struct {
	Street     string  `json:"street"`
	Number     string  `json:"number"`
	District   string  `json:"district"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
}

func (a addressReq) address() order.Address {
	return order.Address{
		Street:     a.Street,
		Number:     a.Number,
		District:   a.District,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Position:   types.Point{Lat: a.Lat, Lng: a.Lng},
	}
}

type createOrderReq struct {
	Origin         addressReq `json:"origin"`
	Destination    addressReq `json:"destination"`
	Tier           string     `json:"tier"`
	DistanceKm     float64    `json:"distance_km"`
	ItemCount      *int       `json:"item_count"`
	WeightKg       *float64   `json:"weight_kg"`
	ScheduledAt    *time.Time `json:"scheduled_at"`
	IntermediaryID *string    `json:"intermediary_id"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	cmd := order.CreateCommand{
		Actor:       actor,
		Origin:      req.Origin.address(),
		Destination: req.Destination.address(),
		Tier:        pricing.Tier(req.Tier),
		DistanceKm:  req.DistanceKm,
		ItemCount:   req.ItemCount,
		WeightKg:    req.WeightKg,
		ScheduledAt: req.ScheduledAt,
	}
	if req.IntermediaryID != nil && *req.IntermediaryID != "" {
		id := types.ID(*req.IntermediaryID)
		cmd.Intermediary = &id
	}
	o, err := h.order.Create(c.Request.Context(), cmd)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, orderView(o))
}

func (h *OrderHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var status *order.Status
	if s := c.Query("status"); s != "" {
		st := order.Status(s)
		status = &st
	}
	orders, err := h.order.List(c.Request.Context(), actor, status)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	views := make([]gin.H, 0, len(orders))
	for i := range orders {
		views = append(views, orderView(&orders[i]))
	}
	writeJSON(c, http.StatusOK, gin.H{"orders": views})
}

func (h *OrderHandler) Get(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing order id")
		return
	}
	detail, err := h.order.Get(c.Request.Context(), actor, types.ID(id))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	view := orderView(&detail.Order)
	history := make([]gin.H, 0, len(detail.History))
	for _, e := range detail.History {
		entry := gin.H{"status": e.Status, "created_at": e.CreatedAt}
		if e.ActorID != nil {
			entry["actor_id"] = *e.ActorID
		}
		if e.Note != nil {
			entry["note"] = *e.Note
		}
		if e.PhotoRef != nil {
			entry["photo_ref"] = *e.PhotoRef
		}
		history = append(history, entry)
	}
	view["history"] = history
	writeJSON(c, http.StatusOK, view)
}

type transitionReq struct {
	Target   string  `json:"target"`
	Note     *string `json:"note"`
	PhotoRef *string `json:"photo_ref"`
}

func (h *OrderHandler) Transition(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing order id")
		return
	}
	var req transitionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Target == "" {
		writeError(c, http.StatusBadRequest, "missing target status")
		return
	}
	err := h.order.Transition(c.Request.Context(), order.TransitionCommand{
		OrderID:  types.ID(id),
		Target:   order.Status(req.Target),
		Actor:    actor,
		Note:     req.Note,
		PhotoRef: req.PhotoRef,
	})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order_id": id, "status": req.Target})
}

// orderView is the wire shape shared by list and detail responses.
func orderView(o *order.Order) gin.H {
	v := gin.H{
		"order_id":      o.ID,
		"tracking_code": o.TrackingCode,
		"status":        o.Status,
		"tier":          o.Tier,
		"shipper_id":    o.ShipperID,
		"origin":        addressView(o.Origin),
		"destination":   addressView(o.Destination),
		"distance_km":   o.DistanceKm,
		"fare":          o.Fare,
		"payout":        o.Payout,
		"fee":           o.Fee,
		"currency":      o.Currency,
		"created_at":    o.CreatedAt,
	}
	if o.CourierID != nil {
		v["courier_id"] = *o.CourierID
	}
	if o.IntermediaryID != nil {
		v["intermediary_id"] = *o.IntermediaryID
	}
	if o.ScheduledAt != nil {
		v["scheduled_at"] = *o.ScheduledAt
	}
	if o.DeliveredAt != nil {
		v["delivered_at"] = *o.DeliveredAt
	}
	if o.PickupPhotoRef != nil {
		v["pickup_photo_ref"] = *o.PickupPhotoRef
	}
	if o.DeliveryPhotoRef != nil {
		v["delivery_photo_ref"] = *o.DeliveryPhotoRef
	}
	return v
}

func addressView(a order.Address) gin.H {
	return gin.H{
		"street":      a.Street,
		"number":      a.Number,
		"district":    a.District,
		"city":        a.City,
		"state":       a.State,
		"postal_code": a.PostalCode,
		"lat":         a.Position.Lat,
		"lng":         a.Position.Lng,
	}
}
