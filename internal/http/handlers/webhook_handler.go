// README: Gateway webhook endpoint. Verifies the HMAC signature over the raw
// body before anything is parsed, then hands the event to the reconciler.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"levo/internal/gateway"
	"levo/internal/modules/payment"
)

// signatureHeader carries the hex HMAC-SHA256 of the raw request body.
const signatureHeader = "X-Gateway-Signature"

// maxWebhookBody caps reads; gateway events are small.
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	secret     string
	reconciler *payment.Reconciler
}

func NewWebhookHandler(secret string, rec *payment.Reconciler) *WebhookHandler {
	return &WebhookHandler{secret: secret, reconciler: rec}
}

// Handle processes one delivery. 2xx acknowledges; 5xx asks the gateway to
// redeliver. Signature failures get a deliberately uninformative 401.
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		writeError(c, http.StatusBadRequest, "unreadable body")
		return
	}
	if !gateway.VerifySignature(h.secret, body, c.GetHeader(signatureHeader)) {
		writeError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	ev, err := payment.ParseEvent(body)
	if err != nil {
		if errors.Is(err, payment.ErrBadEvent) {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}

	if err := h.reconciler.Handle(c.Request.Context(), ev); err != nil {
		// Transient failure; the gateway retries with backoff.
		writeError(c, http.StatusInternalServerError, "event not applied")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"received": true})
}
