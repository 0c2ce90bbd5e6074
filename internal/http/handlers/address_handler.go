// README: Address search handler backed by the geocoding service.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"levo/internal/maps"
)

// Geocoder is implemented by maps.GeocodeService.
type Geocoder interface {
	SearchAddress(ctx context.Context, query string) ([]maps.Candidate, error)
	FromPostalCode(ctx context.Context, cep string) (maps.Candidate, error)
}

type AddressHandler struct {
	geocoder Geocoder
}

func NewAddressHandler(g Geocoder) *AddressHandler {
	return &AddressHandler{geocoder: g}
}

func (h *AddressHandler) Search(c *gin.Context) {
	if _, ok := requireActor(c); !ok {
		return
	}
	q := c.Query("q")
	if q == "" {
		writeError(c, http.StatusBadRequest, "missing q query parameter")
		return
	}
	candidates, err := h.geocoder.SearchAddress(c.Request.Context(), q)
	if err != nil {
		writeAddressError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"candidates": candidates})
}

// ByPostalCode resolves a Brazilian CEP to its single best address candidate.
func (h *AddressHandler) ByPostalCode(c *gin.Context) {
	if _, ok := requireActor(c); !ok {
		return
	}
	candidate, err := h.geocoder.FromPostalCode(c.Request.Context(), c.Param("cep"))
	if err != nil {
		writeAddressError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, candidate)
}
