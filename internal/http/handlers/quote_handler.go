// README: Quote handler; prices a route before an order exists.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"levo/internal/modules/location"
	"levo/internal/modules/pricing"
	"levo/internal/types"
)

type QuoteHandler struct {
	pricing *pricing.Service
}

func NewQuoteHandler(svc *pricing.Service) *QuoteHandler {
	return &QuoteHandler{pricing: svc}
}

type quoteReq struct {
	Origin      pointReq `json:"origin"`
	Destination pointReq `json:"destination"`
	// Tier is optional; empty means quote every tier.
	Tier string `json:"tier"`
}

type pointReq struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p pointReq) valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180 &&
		!(p.Lat == 0 && p.Lng == 0)
}

func (p pointReq) point() types.Point {
	return types.Point{Lat: p.Lat, Lng: p.Lng}
}

// Quote prices the straight-line route between two points. The returned
// distance_km should be echoed back on order creation so the persisted fare
// matches the quoted one.
func (h *QuoteHandler) Quote(c *gin.Context) {
	var req quoteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !req.Origin.valid() || !req.Destination.valid() {
		writeError(c, http.StatusBadRequest, "origin and destination coordinates are required")
		return
	}

	distance := location.HaversineKm(req.Origin.point(), req.Destination.point())

	if req.Tier != "" {
		q, err := h.pricing.Quote(distance, pricing.Tier(req.Tier))
		if err != nil {
			writeOrderError(c, err)
			return
		}
		writeJSON(c, http.StatusOK, gin.H{"distance_km": distance, "quotes": []pricing.Quote{q}})
		return
	}

	quotes, err := h.pricing.QuoteAll(distance)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"distance_km": distance, "quotes": quotes})
}
