package http

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"

	"github.com/escrowcore/ledgercore/internal/mlog"
	"github.com/escrowcore/ledgercore/internal/webhook"
)

// WebhookHandlers implements spec §6's POST /webhooks/{provider}/notification.
type WebhookHandlers struct {
	Webhooks         *webhook.Service
	MidtransServerKey string
	GenericHMACSecret string
}

// midtransPayload is spec §4.5 step 2's example Midtrans callback shape.
type midtransPayload struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
}

// genericEventPayload is the envelope every non-Midtrans provider
// posts, modeled on stripe-go's stripe.Event — this core has no
// Stripe integration, but its {id, type, data} shape is the de facto
// standard generic-provider event envelope and is reused verbatim
// here rather than inventing a parallel one.
type genericEventPayload struct {
	stripe.Event
	OrderID      *uuid.UUID `json:"orderId,omitempty"`
	WithdrawalID *uuid.UUID `json:"withdrawalId,omitempty"`
	Status       string     `json:"status"`
}

// Notification handles POST /webhooks/{provider}/notification. Per
// spec §4.5 step 7, this always answers 200 regardless of internal
// outcome — only a body-decode failure (not even an invalid
// signature) produces a non-200, since the provider never retries on
// anything else.
func (h *WebhookHandlers) Notification(c *fiber.Ctx) error {
	provider := c.Params("provider")
	raw := c.Body()

	in := webhook.IncomingWebhook{
		Provider:   provider,
		RawPayload: raw,
		RequestIP:  c.IP(),
	}

	switch provider {
	case "midtrans":
		var payload midtransPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return WithError(c, errValidation("malformed midtrans payload: "+err.Error()))
		}

		in.EventID = payload.OrderID + ":" + payload.StatusCode
		in.EventType = "payment.notification"
		in.MidtransOrderID = payload.OrderID
		in.MidtransStatusCode = payload.StatusCode
		in.MidtransGrossAmount = payload.GrossAmount
		in.SignatureKey = payload.SignatureKey
		in.HMACSecret = h.MidtransServerKey
		in.ProviderStatus = payload.TransactionStatus

		if orderID, err := uuid.Parse(payload.OrderID); err == nil {
			in.OrderID = &orderID
		}
	default:
		var payload genericEventPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return WithError(c, errValidation("malformed webhook payload: "+err.Error()))
		}

		in.EventID = payload.ID
		in.EventType = string(payload.Type)
		in.HMACSecret = h.GenericHMACSecret
		in.HMACSignature = c.Get("X-Signature")
		in.ProviderStatus = payload.Status
		in.OrderID = payload.OrderID
		in.WithdrawalID = payload.WithdrawalID
	}

	if ts := c.Get("X-Timestamp"); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			in.Timestamp = &parsed
		}
	}

	_, err := h.Webhooks.ProcessWebhook(c.UserContext(), in)
	if err != nil {
		mlog.NewLoggerFromContext(c.UserContext()).Warnf("webhook %s/%s processed with error (still answering 200): %v", provider, in.EventID, err)
	}

	return c.SendStatus(fiber.StatusOK)
}
