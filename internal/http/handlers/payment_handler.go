// README: Payment handlers: request a charge, read Pix details, poll status,
// and trigger a courier payout.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"levo/internal/modules/payment"
	"levo/internal/types"
)

type PaymentHandler struct {
	payment *payment.Service
}

func NewPaymentHandler(svc *payment.Service) *PaymentHandler {
	return &PaymentHandler{payment: svc}
}

type requestPaymentReq struct {
	Method string `json:"method"`
}

func (h *PaymentHandler) Request(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing order id")
		return
	}
	var req requestPaymentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	p, err := h.payment.RequestPayment(c.Request.Context(), payment.RequestCommand{
		OrderID: types.ID(id),
		Method:  payment.Method(req.Method),
		Actor:   actor,
	})
	if err != nil {
		writePaymentError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, paymentView(p))
}

func (h *PaymentHandler) PixDetails(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id := c.Param("id")
	pix, err := h.payment.GetPixDetails(c.Request.Context(), types.ID(id), actor)
	if err != nil {
		writePaymentError(c, err)
		return
	}
	v := gin.H{}
	if pix.QRCode != nil {
		v["qr_code"] = *pix.QRCode
	}
	if pix.CopyPaste != nil {
		v["copy_paste"] = *pix.CopyPaste
	}
	if pix.ExpiresAt != nil {
		v["expires_at"] = *pix.ExpiresAt
	}
	writeJSON(c, http.StatusOK, v)
}

func (h *PaymentHandler) Status(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id := c.Param("id")
	p, err := h.payment.GetPaymentStatus(c.Request.Context(), types.ID(id), actor)
	if err != nil {
		writePaymentError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, paymentView(p))
}

func (h *PaymentHandler) Payout(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	id := c.Param("id")
	po, err := h.payment.InitiatePayout(c.Request.Context(), types.ID(id), actor)
	if err != nil {
		writePaymentError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{
		"payout_id":  po.ID,
		"order_id":   po.OrderID,
		"courier_id": po.CourierID,
		"amount":     po.Amount,
		"status":     po.Status,
	})
}

func paymentView(p *payment.Payment) gin.H {
	v := gin.H{
		"payment_id": p.ID,
		"order_id":   p.OrderID,
		"method":     p.Method,
		"status":     p.Status,
		"amount":     p.Amount,
		"currency":   p.Currency,
		"created_at": p.CreatedAt,
	}
	if p.PaidAt != nil {
		v["paid_at"] = *p.PaidAt
	}
	return v
}
