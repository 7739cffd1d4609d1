package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookStatus is the processing status of a received provider callback.
type WebhookStatus string

const (
	WebhookPending   WebhookStatus = "PENDING"
	WebhookProcessed WebhookStatus = "PROCESSED"
	WebhookFailed    WebhookStatus = "FAILED"
)

// WebhookEvent records one received provider callback, persisted
// before any processing decision — even an invalid signature is kept
// for forensics (spec §4.5).
type WebhookEvent struct {
	ID              string        `json:"id"`
	Provider        string        `json:"provider"`
	EventID         string        `json:"eventId"`
	EventType       string        `json:"eventType"`
	RawPayload      []byte        `json:"-"`
	RedactedHeaders map[string]string `json:"redactedHeaders,omitempty"`
	RequestIP       string        `json:"requestIp,omitempty"`
	Status          WebhookStatus `json:"status"`
	SignatureValid  bool          `json:"signatureValid"`
	RetryCount      int           `json:"retryCount"`
	LastRetryAt     *time.Time    `json:"lastRetryAt,omitempty"`
	PaymentID       *string       `json:"paymentId,omitempty"`
	// ProviderStatus, OrderID and WithdrawalID are retained from the
	// original callback so C7's retry job can replay step 6 of spec
	// §4.5 without needing the raw request again.
	ProviderStatus  string        `json:"providerStatus,omitempty"`
	OrderID         *uuid.UUID    `json:"orderId,omitempty"`
	WithdrawalID    *uuid.UUID    `json:"withdrawalId,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// MaxWebhookRetries bounds the internal retry discipline of spec §4.5/§5.
const MaxWebhookRetries = 5

// PaymentStatus is the internal normalized status a provider status
// maps to, per the fixed table of spec §4.5.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailure PaymentStatus = "FAILURE"
	PaymentExpired PaymentStatus = "EXPIRED"
	PaymentFraud   PaymentStatus = "FRAUD_DENY"
)

// PaymentStatusHistory is one row recorded each time a payment or
// disbursement's status changes as a result of webhook processing.
type PaymentStatusHistory struct {
	ID        string        `json:"id"`
	PaymentID string        `json:"paymentId"`
	Status    PaymentStatus `json:"status"`
	Source    string        `json:"source"`
	CreatedAt time.Time     `json:"createdAt"`
}
