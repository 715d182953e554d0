package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"marketplace-app/internal/models"
	"marketplace-app/internal/services"
)

// SignatureHeader carries the gateway's HMAC over the exact request body bytes.
const SignatureHeader = "X-Gateway-Signature"

// EventVerifier is the gateway client's webhook surface.
type EventVerifier interface {
	ConstructWebhookEvent(payload []byte, signatureHeader string) (*models.WebhookEvent, error)
}

type WebhookHandler struct {
	verifier   EventVerifier
	dispatcher *services.WebhookDispatcher
}

func NewWebhookHandler(verifier EventVerifier, dispatcher *services.WebhookDispatcher) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, dispatcher: dispatcher}
}

// HandlePaymentWebhook verifies and parses the callback, acknowledges it, and
// hands the event to the dispatcher. Processing failures are retried out of
// band; the gateway only ever sees a signature or parse failure.
func (h *WebhookHandler) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	event, err := h.verifier.ConstructWebhookEvent(payload, c.GetHeader(SignatureHeader))
	if err != nil {
		if errors.Is(err, models.ErrSignature) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.dispatcher.Enqueue(*event)
	c.JSON(http.StatusOK, gin.H{"received": true})
}
