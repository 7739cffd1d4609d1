package webhook

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/escrowcore/ledgercore/internal/apperrors"
	"github.com/escrowcore/ledgercore/internal/domain"
	"github.com/escrowcore/ledgercore/internal/events"
	"github.com/escrowcore/ledgercore/internal/mlog"
	"github.com/escrowcore/ledgercore/internal/mretry"
)

// OrderDriver drives C3's order-payment confirmation from a
// successful payment webhook, satisfied by escrow.Service.
type OrderDriver interface {
	PayOrder(ctx context.Context, orderID uuid.UUID, idempotencyKey string) (*domain.EscrowHold, error)
}

// WithdrawalDriver drives C4's disbursement settlement from a
// provider webhook, satisfied by withdrawal.Service.
type WithdrawalDriver interface {
	Complete(ctx context.Context, withdrawalID uuid.UUID, providerDisbursementID, idempotencyKey string) (*domain.Withdrawal, error)
	Reject(ctx context.Context, withdrawalID, rejectorID uuid.UUID, reason string) (*domain.Withdrawal, error)
}

// replayWindow bounds the optional x-timestamp replay check of spec §4.5.
const replayWindow = 5 * time.Minute

// midtransStatusTable maps Midtrans's transaction_status values to
// the internal PaymentStatus of spec §4.5 step 6's fixed table.
var midtransStatusTable = map[string]domain.PaymentStatus{
	"capture":    domain.PaymentSuccess,
	"settlement": domain.PaymentSuccess,
	"pending":    domain.PaymentPending,
	"deny":       domain.PaymentFailure,
	"cancel":     domain.PaymentFailure,
	"expire":     domain.PaymentExpired,
	"fraud":      domain.PaymentFraud,
}

// MapProviderStatus resolves a provider's raw status string to an
// internal PaymentStatus, defaulting to PENDING for anything outside
// the fixed table rather than guessing.
func MapProviderStatus(provider, raw string) domain.PaymentStatus {
	switch provider {
	case "midtrans":
		if s, ok := midtransStatusTable[raw]; ok {
			return s
		}
	}

	return domain.PaymentPending
}

// IncomingWebhook is the canonical shape a provider-specific HTTP
// handler parses a raw callback into before calling ProcessWebhook —
// the signature math stays provider-specific, everything downstream
// of "is this signed correctly" is not.
type IncomingWebhook struct {
	Provider        string
	EventID         string
	EventType       string
	RawPayload      []byte
	RequestIP       string
	RedactedHeaders map[string]string
	Timestamp       *time.Time

	// Midtrans-specific signature inputs (spec §4.5 step 2's example).
	MidtransOrderID     string
	MidtransStatusCode  string
	MidtransGrossAmount string
	SignatureKey        string

	// Generic HMAC-SHA256 inputs for non-Midtrans providers.
	HMACSecret    string
	HMACSignature string

	ProviderStatus string
	OrderID        *uuid.UUID
	WithdrawalID   *uuid.UUID
}

// Service implements C5's ingestion pipeline.
type Service struct {
	Events      EventRepository
	History     HistoryRepository
	Orders      OrderDriver
	Withdrawals WithdrawalDriver
	RetryConfig mretry.Config
	Tracer      trace.Tracer

	// Publisher fans a successfully-processed event out to external
	// collaborators; nil is valid and simply skips publishing.
	Publisher events.Publisher
}

func (s *Service) publish(ctx context.Context, eventID string) {
	if s.Publisher == nil {
		return
	}

	if err := s.Publisher.Publish(ctx, events.Event{
		Kind: events.KindWebhookProcessed, EventID: eventID, OccurredAt: time.Now().UTC(),
	}); err != nil {
		mlog.NewLoggerFromContext(ctx).Warnf("webhook: publish processed event=%s: %v", eventID, err)
	}
}

func (s *Service) tracer() trace.Tracer {
	if s.Tracer != nil {
		return s.Tracer
	}

	return trace.NewNoopTracerProvider().Tracer("webhook")
}

func (s *Service) verify(in IncomingWebhook) bool {
	if in.Timestamp != nil && time.Since(*in.Timestamp).Abs() > replayWindow {
		return false
	}

	if in.Provider == "midtrans" {
		return VerifyMidtrans(in.MidtransOrderID, in.MidtransStatusCode, in.MidtransGrossAmount, in.HMACSecret, in.SignatureKey)
	}

	return VerifyHMACSHA256(in.RawPayload, in.HMACSecret, in.HMACSignature)
}

// ProcessWebhook runs spec §4.5's full pipeline. It persists every new
// event, even one with an invalid signature, and returns
// apperrors.UnauthorizedError{Code: CodeInvalidSignature} in that case;
// the HTTP handler logs that error and still answers 200. A validly
// signed replay of an event_id that is already PROCESSED returns the
// stored event without persisting a second row. Every other outcome,
// including an internal processing failure, returns a nil error.
func (s *Service) ProcessWebhook(ctx context.Context, in IncomingWebhook) (*domain.WebhookEvent, error) {
	logger := mlog.NewLoggerFromContext(ctx)
	ctx, span := s.tracer().Start(ctx, "webhook.process")
	defer span.End()

	valid := s.verify(in)
	now := time.Now().UTC()

	event := &domain.WebhookEvent{
		ID:              uuid.NewString(),
		Provider:        in.Provider,
		EventID:         in.EventID,
		EventType:       in.EventType,
		RawPayload:      in.RawPayload,
		RedactedHeaders: in.RedactedHeaders,
		RequestIP:       in.RequestIP,
		Status:          domain.WebhookPending,
		SignatureValid:  valid,
		ProviderStatus:  in.ProviderStatus,
		OrderID:         in.OrderID,
		WithdrawalID:    in.WithdrawalID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if !valid {
		event.Status = domain.WebhookFailed
	}

	if valid {
		if existing, err := s.Events.FindByEventID(ctx, in.Provider, in.EventID); err == nil && existing.Status == domain.WebhookProcessed {
			return existing, nil
		}
	}

	if err := s.Events.Create(ctx, event); err != nil {
		return nil, err
	}

	if !valid {
		logger.Warnf("webhook signature invalid provider=%s event=%s", in.Provider, in.EventID)
		return event, apperrors.UnauthorizedError{Code: apperrors.CodeInvalidSignature, Message: "invalid webhook signature"}
	}

	internalStatus := MapProviderStatus(in.Provider, in.ProviderStatus)

	if err := s.apply(ctx, event, internalStatus); err != nil {
		logger.Errorf("webhook processing failed provider=%s event=%s: %v", in.Provider, in.EventID, err)

		event.Status = domain.WebhookFailed
		event.RetryCount++
		lastRetry := now
		event.LastRetryAt = &lastRetry

		if updErr := s.Events.Update(ctx, event); updErr != nil {
			return nil, updErr
		}

		return event, nil
	}

	event.Status = domain.WebhookProcessed

	if err := s.Events.Update(ctx, event); err != nil {
		return nil, err
	}

	s.publish(ctx, event.EventID)

	return event, nil
}

// apply resolves the referenced payment/withdrawal, records history,
// and drives C3/C4, per spec §4.5 step 6. It reads everything it needs
// off event itself (rather than the original IncomingWebhook) so C7's
// retry job can call it again without the original raw request.
func (s *Service) apply(ctx context.Context, event *domain.WebhookEvent, status domain.PaymentStatus) error {
	if err := s.History.Create(ctx, &domain.PaymentStatusHistory{
		ID: uuid.NewString(), PaymentID: event.EventID, Status: status, Source: event.Provider, CreatedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}

	switch {
	case event.OrderID != nil:
		return s.applyOrder(ctx, *event.OrderID, event.EventID, status, event)
	case event.WithdrawalID != nil:
		return s.applyWithdrawal(ctx, *event.WithdrawalID, event.EventID, status, event)
	}

	return nil
}

// RetryFailed re-attempts every FAILED event still under
// domain.MaxWebhookRetries, driven by C7 on a fixed interval. It
// replays step 6 of spec §4.5 using the event's own stored
// ProviderStatus/OrderID/WithdrawalID rather than the original
// request, which is never persisted.
func (s *Service) RetryFailed(ctx context.Context) (int, error) {
	ctx, span := s.tracer().Start(ctx, "webhook.retry_failed")
	defer span.End()

	logger := mlog.NewLoggerFromContext(ctx)

	dueEvents, err := s.Events.ListDueForRetry(ctx)
	if err != nil {
		return 0, err
	}

	retried := 0

	for _, event := range dueEvents {
		status := MapProviderStatus(event.Provider, event.ProviderStatus)

		err := s.apply(ctx, event, status)
		now := time.Now().UTC()
		event.LastRetryAt = &now

		if err != nil {
			logger.Warnf("webhook retry failed provider=%s event=%s attempt=%d: %v", event.Provider, event.EventID, event.RetryCount+1, err)
			event.RetryCount++
		} else {
			event.Status = domain.WebhookProcessed
			s.publish(ctx, event.EventID)
		}

		if updErr := s.Events.Update(ctx, event); updErr != nil {
			return retried, updErr
		}

		retried++
	}

	return retried, nil
}

func (s *Service) applyOrder(ctx context.Context, orderID uuid.UUID, idempotencyKey string, status domain.PaymentStatus, event *domain.WebhookEvent) error {
	if status != domain.PaymentSuccess {
		return nil
	}

	if _, err := s.Orders.PayOrder(ctx, orderID, idempotencyKey); err != nil {
		return err
	}

	paymentID := orderID.String()
	event.PaymentID = &paymentID

	return nil
}

func (s *Service) applyWithdrawal(ctx context.Context, withdrawalID uuid.UUID, idempotencyKey string, status domain.PaymentStatus, event *domain.WebhookEvent) error {
	switch status {
	case domain.PaymentSuccess:
		if _, err := s.Withdrawals.Complete(ctx, withdrawalID, idempotencyKey, idempotencyKey); err != nil {
			return err
		}
	case domain.PaymentFailure, domain.PaymentExpired, domain.PaymentFraud:
		if _, err := s.Withdrawals.Reject(ctx, withdrawalID, uuid.Nil, "provider reported "+string(status)); err != nil {
			return err
		}
	}

	paymentID := withdrawalID.String()
	event.PaymentID = &paymentID

	return nil
}
