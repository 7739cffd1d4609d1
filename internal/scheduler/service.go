package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/escrowcore/ledgercore/internal/domain"
	"github.com/escrowcore/ledgercore/internal/escrow"
	"github.com/escrowcore/ledgercore/internal/mlog"
	"github.com/escrowcore/ledgercore/internal/wallet"
	"github.com/escrowcore/ledgercore/internal/webhook"
	"github.com/escrowcore/ledgercore/internal/withdrawal"
)

// Intervals for the four periodic tasks of spec §4.7.
const (
	escrowReleaseInterval   = time.Minute
	limitResetInterval      = time.Hour
	walletReconcileInterval = 6 * time.Hour
	webhookRetryInterval    = 15 * time.Minute
)

// Lock names, one per task, passed to Locker.TryLock.
const (
	lockEscrowRelease   = "escrow-auto-release"
	lockLimitReset      = "limit-reset"
	lockWalletReconcile = "wallet-reconcile"
	lockWebhookRetry    = "webhook-retry"
)

// Service runs C7: four independently-ticking periodic tasks, each
// gated by Locker so only one node in a multi-node deployment runs a
// given tick. Modeled on the teacher's RedisQueueConsumer.Run —
// ticker + select loop, one goroutine per task rather than one loop
// multiplexing several intervals.
type Service struct {
	Locker Locker

	Escrows    *escrow.Service
	Limits     withdrawal.LimitRepository
	Wallets    *wallet.Service
	WalletRepo wallet.Repository
	Webhooks   *webhook.Service

	Tracer trace.Tracer
}

func (s *Service) tracer() trace.Tracer {
	if s.Tracer != nil {
		return s.Tracer
	}

	return trace.NewNoopTracerProvider().Tracer("scheduler")
}

// Run starts all four task loops and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	logger := mlog.NewLoggerFromContext(ctx)
	logger.Info("scheduler started")

	var wg sync.WaitGroup

	tasks := []struct {
		name     string
		interval time.Duration
		run      func(context.Context)
	}{
		{lockEscrowRelease, escrowReleaseInterval, s.runEscrowAutoRelease},
		{lockLimitReset, limitResetInterval, s.runLimitReset},
		{lockWalletReconcile, walletReconcileInterval, s.runWalletReconcile},
		{lockWebhookRetry, webhookRetryInterval, s.runWebhookRetry},
	}

	for _, t := range tasks {
		wg.Add(1)

		go func(name string, interval time.Duration, run func(context.Context)) {
			defer wg.Done()
			s.loop(ctx, name, interval, run)
		}(t.name, t.interval, t.run)
	}

	wg.Wait()
	logger.Info("scheduler stopped")
}

// loop ticks run at interval until ctx is cancelled, skipping a tick
// entirely (rather than blocking) when the named lock is already held
// by another node.
func (s *Service) loop(ctx context.Context, name string, interval time.Duration, run func(context.Context)) {
	logger := mlog.NewLoggerFromContext(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			unlock, ok, err := s.Locker.TryLock(ctx, name)
			if err != nil {
				logger.Errorf("scheduler: lock %s: %v", name, err)
				continue
			}

			if !ok {
				continue
			}

			run(ctx)

			if err := unlock(ctx); err != nil {
				logger.Warnf("scheduler: unlock %s: %v", name, err)
			}
		}
	}
}

// runEscrowAutoRelease releases every PAID order whose auto_release_at
// has passed, acting as domain.ActorSystem per spec §4.7's "every
// minute: release escrows past their auto-release deadline."
func (s *Service) runEscrowAutoRelease(ctx context.Context) {
	logger := mlog.NewLoggerFromContext(ctx)
	ctx, span := s.tracer().Start(ctx, "scheduler.escrow_auto_release")
	defer span.End()

	orders, err := s.Escrows.Orders.ListAwaitingAutoRelease(ctx, time.Now().UTC())
	if err != nil {
		logger.Errorf("scheduler: list awaiting auto-release: %v", err)
		return
	}

	for _, order := range orders {
		idempotencyKey := "auto-release:" + order.ID.String()

		if err := s.Escrows.Release(ctx, order.ID, domain.ActorSystem, uuid.Nil, idempotencyKey); err != nil {
			logger.Errorf("scheduler: auto-release order=%s: %v", order.ID, err)
		}
	}
}

// runLimitReset zeroes daily/monthly usage counters for every user
// whose window has rolled over since the last check, the same rule
// withdrawal.ResetIfWindowRolled applies inline on each request — this
// sweep exists so a quiet user's limit row doesn't carry stale usage
// indefinitely.
func (s *Service) runLimitReset(ctx context.Context) {
	logger := mlog.NewLoggerFromContext(ctx)
	ctx, span := s.tracer().Start(ctx, "scheduler.limit_reset")
	defer span.End()

	limits, err := s.Limits.ListAll(ctx)
	if err != nil {
		logger.Errorf("scheduler: list limits: %v", err)
		return
	}

	now := time.Now().UTC()

	for _, limit := range limits {
		before := *limit

		if err := withdrawal.ResetIfWindowRolled(limit, now); err != nil {
			logger.Errorf("scheduler: reset limit user=%s: %v", limit.UserID, err)
			continue
		}

		if *limit == before {
			continue
		}

		if err := s.Limits.Update(ctx, limit); err != nil {
			logger.Errorf("scheduler: persist reset limit user=%s: %v", limit.UserID, err)
		}
	}
}

// runWalletReconcile re-derives each wallet's balance from C1's ledger
// and flags any mismatch, per spec §4.7's "every 6 hours: reconcile
// wallet balances against the ledger."
func (s *Service) runWalletReconcile(ctx context.Context) {
	logger := mlog.NewLoggerFromContext(ctx)
	ctx, span := s.tracer().Start(ctx, "scheduler.wallet_reconcile")
	defer span.End()

	wallets, err := s.WalletRepo.ListAll(ctx)
	if err != nil {
		logger.Errorf("scheduler: list wallets: %v", err)
		return
	}

	for _, w := range wallets {
		if _, err := s.Wallets.Reconcile(ctx, w.ID); err != nil {
			logger.Errorf("scheduler: reconcile wallet=%s: %v", w.ID, err)
		}
	}
}

// runWebhookRetry re-attempts FAILED webhook events still under the
// retry cap, per spec §4.7's "every 15 minutes: retry failed webhook
// processing (exponential backoff, cap 5)" — the backoff window itself
// is enforced by webhook.EventRepository.ListDueForRetry.
func (s *Service) runWebhookRetry(ctx context.Context) {
	logger := mlog.NewLoggerFromContext(ctx)
	ctx, span := s.tracer().Start(ctx, "scheduler.webhook_retry")
	defer span.End()

	n, err := s.Webhooks.RetryFailed(ctx)
	if err != nil {
		logger.Errorf("scheduler: webhook retry: %v", err)
		return
	}

	if n > 0 {
		logger.Infof("scheduler: retried %d webhook events", n)
	}
}
