// README: Base handler utilities (JSON helpers, domain error mapping, caller
// identity extraction).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"levo/internal/http/middleware"
	"levo/internal/maps"
	"levo/internal/modules/order"
	"levo/internal/modules/payment"
	"levo/internal/modules/pricing"
	"levo/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// callerActor builds the domain actor from the auth middleware's context.
// Second return is false when the role claim is missing or unknown, which
// means the account is not provisioned for the marketplace.
func callerActor(c *gin.Context) (order.Actor, bool) {
	uid := middleware.CallerUID(c)
	role := order.Role(middleware.CallerRole(c))
	if uid == "" || !role.Known() {
		return order.Actor{}, false
	}
	return order.Actor{ID: types.ID(uid), Role: role}, true
}

func requireActor(c *gin.Context) (order.Actor, bool) {
	actor, ok := callerActor(c)
	if !ok {
		writeError(c, http.StatusForbidden, "account has no marketplace role")
	}
	return actor, ok
}

func writeOrderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrValidation), errors.Is(err, pricing.ErrUnknownTier):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrAccessDenied):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrAlreadyAssigned),
		errors.Is(err, order.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

func writePaymentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, payment.ErrPaymentNotFound), errors.Is(err, order.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, payment.ErrBadMethod):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, payment.ErrForbidden):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, payment.ErrPayoutNotReady), errors.Is(err, payment.ErrDuplicate):
		writeError(c, http.StatusConflict, err.Error())
	default:
		// Gateway unavailability surfaces as 502: the request was valid,
		// the money rail was not.
		writeError(c, http.StatusBadGateway, "payment gateway unavailable")
	}
}

func writeAddressError(c *gin.Context, err error) {
	if errors.Is(err, maps.ErrAddressNotFound) {
		writeError(c, http.StatusNotFound, err.Error())
		return
	}
	writeError(c, http.StatusBadGateway, "address lookup unavailable")
}
