package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/inkwell-backend/internal/http/response"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
	"github.com/yungbote/inkwell-backend/internal/services"
)

const maxWebhookBytes = 64 << 10

type BillingHandler struct {
	log     *logger.Logger
	billing services.BillingService
}

func NewBillingHandler(log *logger.Logger, billing services.BillingService) *BillingHandler {
	return &BillingHandler{log: log.With("handler", "BillingHandler"), billing: billing}
}

// GET /api/plans
func (h *BillingHandler) ListPlans(c *gin.Context) {
	response.RespondOK(c, gin.H{"plans": h.billing.Catalog().List()})
}

// GET /api/billing/subscription
func (h *BillingHandler) GetSubscription(c *gin.Context) {
	sub, err := h.billing.Subscription(c.Request.Context(), callerID(c))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"subscription": sub})
}

// POST /api/billing/checkout
// body: { "plan_key": "creator" }
func (h *BillingHandler) Checkout(c *gin.Context) {
	var req struct {
		PlanKey string `json:"plan_key"`
	}
	if !bindJSON(c, &req) {
		return
	}
	url, err := h.billing.CreateCheckout(c.Request.Context(), callerID(c), req.PlanKey)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"url": url})
}

// POST /api/billing/portal
func (h *BillingHandler) Portal(c *gin.Context) {
	url, err := h.billing.CreatePortal(c.Request.Context(), callerID(c))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"url": url})
}

// POST /api/billing/webhook
// Stripe calls this unauthenticated; the signature header is the credential.
func (h *BillingHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes+1))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if len(payload) > maxWebhookBytes {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "payload_too_large", nil)
		return
	}
	if err := h.billing.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		h.log.Warn("Webhook rejected", "error", err)
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"received": true})
}
