package idempotency

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/escrowcore/ledgercore/internal/apperrors"
	"github.com/escrowcore/ledgercore/internal/mlog"
)

// Default TTLs of spec §4.6.
const (
	ProcessingTTL = 30 * time.Second
	RecordTTL     = 24 * time.Hour
)

// Decision is Guard.Begin's outcome for the caller's HTTP middleware.
type Decision int

const (
	// DecisionProceed means no cached outcome exists (or the prior
	// attempt timed out) — the handler should run normally.
	DecisionProceed Decision = iota
	// DecisionCachedCompleted means the handler previously succeeded —
	// return the cached response verbatim.
	DecisionCachedCompleted
	// DecisionCachedFailed means the handler previously failed —
	// return the cached 4xx error.
	DecisionCachedFailed
)

// Guard implements C6's begin/complete/fail lifecycle of spec §4.6.
type Guard struct {
	Store         Store
	ProcessingTTL time.Duration
	RecordTTL     time.Duration
}

// NewGuard returns a Guard with spec §4.6's default TTLs.
func NewGuard(store Store) *Guard {
	return &Guard{Store: store, ProcessingTTL: ProcessingTTL, RecordTTL: RecordTTL}
}

func (g *Guard) processingTTL() time.Duration {
	if g.ProcessingTTL > 0 {
		return g.ProcessingTTL
	}

	return ProcessingTTL
}

func (g *Guard) recordTTL() time.Duration {
	if g.RecordTTL > 0 {
		return g.RecordTTL
	}

	return RecordTTL
}

// Begin runs spec §4.6's incoming-request decision table. A nil error
// with DecisionProceed means the caller should execute the handler and
// call Complete or Fail when it finishes.
func (g *Guard) Begin(ctx context.Context, userID uuid.UUID, clientKey, fingerprint string) (Decision, *Record, error) {
	logger := mlog.NewLoggerFromContext(ctx)
	key := Key(userID, clientKey)

	inserted, err := g.Store.TrySetProcessing(ctx, key, fingerprint, g.processingTTL())
	if err != nil {
		return DecisionProceed, nil, err
	}

	if inserted {
		return DecisionProceed, nil, nil
	}

	rec, found, err := g.Store.Load(ctx, key)
	if err != nil {
		return DecisionProceed, nil, err
	}

	if !found {
		// The processing record expired between TrySetProcessing's
		// failed insert and this Load — treat as a fresh request.
		if _, err := g.Store.TrySetProcessing(ctx, key, fingerprint, g.processingTTL()); err != nil {
			return DecisionProceed, nil, err
		}

		return DecisionProceed, nil, nil
	}

	if rec.Fingerprint != fingerprint {
		return DecisionProceed, nil, apperrors.ValidationError{
			Code:    apperrors.CodeIdempotencyKeyReused,
			Message: "idempotency key reused with a different request body",
		}
	}

	switch rec.State {
	case StateCompleted:
		return DecisionCachedCompleted, &rec, nil
	case StateFailed:
		return DecisionCachedFailed, &rec, nil
	case StateProcessing:
		if time.Since(rec.CreatedAt) < g.processingTTL() {
			return DecisionProceed, nil, apperrors.ConflictError{
				Code:    apperrors.CodeRequestInProgress,
				Message: "an identical request is already being processed",
			}
		}

		logger.Warnf("idempotency key %s timed out in processing, clearing and allowing retry", key)

		if err := g.Store.Delete(ctx, key); err != nil {
			return DecisionProceed, nil, err
		}

		if _, err := g.Store.TrySetProcessing(ctx, key, fingerprint, g.processingTTL()); err != nil {
			return DecisionProceed, nil, err
		}

		return DecisionProceed, nil, nil
	}

	return DecisionProceed, nil, nil
}

// Complete stamps a successful terminal outcome, cached for RecordTTL.
func (g *Guard) Complete(ctx context.Context, userID uuid.UUID, clientKey, fingerprint string, statusCode int, body []byte) error {
	return g.Store.Save(ctx, Key(userID, clientKey), Record{
		State: StateCompleted, Fingerprint: fingerprint, StatusCode: statusCode, Body: body, CreatedAt: time.Now().UTC(),
	}, g.recordTTL())
}

// Fail stamps a failed terminal outcome, cached for RecordTTL.
func (g *Guard) Fail(ctx context.Context, userID uuid.UUID, clientKey, fingerprint string, statusCode int, body []byte) error {
	return g.Store.Save(ctx, Key(userID, clientKey), Record{
		State: StateFailed, Fingerprint: fingerprint, StatusCode: statusCode, Body: body, CreatedAt: time.Now().UTC(),
	}, g.recordTTL())
}
