// README: Courier location handlers: self-reported position updates and
// proximity lookups for dispatch.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"levo/internal/http/middleware"
	"levo/internal/modules/location"
	"levo/internal/modules/order"
	"levo/internal/types"
)

type LocationHandler struct {
	location *location.Service
}

func NewLocationHandler(svc *location.Service) *LocationHandler {
	return &LocationHandler{location: svc}
}

type updateLocationReq struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Update records the authenticated courier's own position. Couriers cannot
// report positions for anyone else: the id always comes from the token.
func (h *LocationHandler) Update(c *gin.Context) {
	if order.Role(middleware.CallerRole(c)) != order.RoleCourier {
		writeError(c, http.StatusForbidden, "courier role required")
		return
	}
	var req updateLocationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.location.Update(c.Request.Context(), location.Update{
		CourierID: types.ID(middleware.CallerUID(c)),
		Position:  types.Point{Lat: req.Lat, Lng: req.Lng},
	})
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

// Nearby returns couriers close to a point, nearest first. Shippers use it
// to gauge pickup coverage; couriers have no business seeing each other.
func (h *LocationHandler) Nearby(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	if !actor.Role.IsShipper() && actor.Role != order.RoleAdmin {
		writeError(c, http.StatusForbidden, "forbidden")
		return
	}
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
	if err1 != nil || err2 != nil {
		writeError(c, http.StatusBadRequest, "lat and lng query parameters are required")
		return
	}
	radiusKm := 0.0
	if r := c.Query("radius_km"); r != "" {
		radiusKm, _ = strconv.ParseFloat(r, 64)
	}
	couriers, err := h.location.NearbyCouriers(c.Request.Context(), types.Point{Lat: lat, Lng: lng}, radiusKm)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	views := make([]gin.H, 0, len(couriers))
	for _, cl := range couriers {
		views = append(views, gin.H{
			"courier_id":  cl.CourierID,
			"lat":         cl.Position.Lat,
			"lng":         cl.Position.Lng,
			"distance_km": cl.Distance,
		})
	}
	writeJSON(c, http.StatusOK, gin.H{"couriers": views})
}
