package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/escrowcore/ledgercore/internal/apperrors"
	"github.com/escrowcore/ledgercore/internal/domain"
	"github.com/escrowcore/ledgercore/internal/events"
	"github.com/escrowcore/ledgercore/internal/ledger"
	"github.com/escrowcore/ledgercore/internal/mlog"
	"github.com/escrowcore/ledgercore/internal/money"
	"github.com/escrowcore/ledgercore/internal/wallet"
)

// WalletLookup resolves a user's wallet ID, needed to drive C2 from
// C3 without importing wallet's full repository surface.
type WalletLookup interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
}

// Service implements C3: the order/escrow/dispute state machines and
// the actor-authorization table of spec §4.3.
type Service struct {
	Orders   OrderRepository
	Escrows  EscrowRepository
	Disputes DisputeRepository
	Wallets  WalletLookup
	WalletSvc *wallet.Service
	Ledger   *ledger.UseCase
	Tracer   trace.Tracer

	// Events publishes outbound domain events; nil is a valid,
	// fully-functional configuration (publishing is best-effort and
	// never gates a money-moving operation).
	Events events.Publisher
}

// publish fires an outbound domain event, logging (never returning) a
// failure — the event queue is never on the critical path of a
// money-moving operation.
func (s *Service) publish(ctx context.Context, kind events.Kind, orderID, escrowID uuid.UUID) {
	if s.Events == nil {
		return
	}

	if err := s.Events.Publish(ctx, events.Event{
		Kind: kind, OrderID: orderID, EscrowID: escrowID, OccurredAt: time.Now().UTC(),
	}); err != nil {
		mlog.NewLoggerFromContext(ctx).Warnf("escrow: publish %s for order=%s: %v", kind, orderID, err)
	}
}

func (s *Service) tracer() trace.Tracer {
	if s.Tracer != nil {
		return s.Tracer
	}

	return trace.NewNoopTracerProvider().Tracer("escrow")
}

// CreateOrderInput is the caller-supplied shape for CreateOrder.
type CreateOrderInput struct {
	InitiatorID       uuid.UUID
	CounterpartyID    uuid.UUID
	InitiatorRole     domain.Role
	AmountMinor       money.Minor
	PlatformFeeMinor  money.Minor
	FeePayer          domain.Role
	HoldingPeriodDays int
}

// CreateOrder opens a new order in PENDING_ACCEPT, per spec §4.3.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	ctx, span := s.tracer().Start(ctx, "escrow.create_order")
	defer span.End()

	if !in.AmountMinor.IsPositive() {
		return nil, apperrors.ValidationError{Code: apperrors.CodeInvalidAmount, Message: "order amount must be positive"}
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:                uuid.New(),
		InitiatorID:       in.InitiatorID,
		CounterpartyID:    in.CounterpartyID,
		InitiatorRole:     in.InitiatorRole,
		AmountMinor:       in.AmountMinor,
		PlatformFeeMinor:  in.PlatformFeeMinor,
		FeePayer:          in.FeePayer,
		HoldingPeriodDays: in.HoldingPeriodDays,
		Status:            domain.OrderPendingAccept,
		InviteToken:       uuid.NewString(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.Orders.Create(ctx, order); err != nil {
		return nil, err
	}

	return order, nil
}

func (s *Service) transitionOrder(ctx context.Context, order *domain.Order, to domain.OrderStatus) error {
	if !domain.CanTransitionOrder(order.Status, to) {
		return apperrors.ValidationError{
			Code:    apperrors.CodeInvalidStateTransition,
			Message: fmt.Sprintf("order cannot transition from %s to %s", order.Status, to),
		}
	}

	order.Status = to
	order.UpdatedAt = time.Now().UTC()

	return s.Orders.Update(ctx, order)
}

// AcceptOrder moves an order from PENDING_ACCEPT to ACCEPTED; only the
// counterparty may accept (spec §4.3).
func (s *Service) AcceptOrder(ctx context.Context, orderID, actorID uuid.UUID) (*domain.Order, error) {
	ctx, span := s.tracer().Start(ctx, "escrow.accept_order")
	defer span.End()

	order, err := s.Orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.CounterpartyID != actorID {
		return nil, apperrors.ForbiddenError{Code: apperrors.CodeUnauthorizedTransition, Message: "only the counterparty may accept an order"}
	}

	now := time.Now().UTC()
	order.AcceptedAt = &now

	if err := s.transitionOrder(ctx, order, domain.OrderAccepted); err != nil {
		return nil, err
	}

	return order, nil
}

// PayOrder moves ACCEPTED → PAID, locks the buyer's funds, and opens
// the escrow hold — spec §4.3's CreateEscrow.
func (s *Service) PayOrder(ctx context.Context, orderID uuid.UUID, idempotencyKey string) (*domain.EscrowHold, error) {
	logger := mlog.NewLoggerFromContext(ctx)
	ctx, span := s.tracer().Start(ctx, "escrow.pay_order")
	defer span.End()

	order, err := s.Orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	buyerWallet, err := s.Wallets.FindByUserID(ctx, order.BuyerID())
	if err != nil {
		return nil, err
	}

	sellerWallet, err := s.Wallets.FindByUserID(ctx, order.SellerID())
	if err != nil {
		return nil, err
	}

	if _, err := s.WalletSvc.Lock(ctx, buyerWallet.ID, order.AmountMinor); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	escrowID := uuid.New()

	if _, err := s.Ledger.RecordEscrowHold(ctx, buyerWallet.ID, escrowID, order.AmountMinor, idempotencyKey); err != nil {
		return nil, err
	}

	hold := &domain.EscrowHold{
		ID:             escrowID,
		OrderID:        order.ID,
		BuyerWalletID:  buyerWallet.ID,
		SellerWalletID: sellerWallet.ID,
		AmountMinor:    order.AmountMinor,
		Status:         domain.EscrowActive,
		TimeoutAt:      now.AddDate(0, 0, order.HoldingPeriodDays),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.Escrows.Create(ctx, hold); err != nil {
		return nil, err
	}

	order.PaidAt = &now
	order.AutoReleaseAt = &hold.TimeoutAt
	if err := s.transitionOrder(ctx, order, domain.OrderPaid); err != nil {
		return nil, err
	}

	logger.Infof("escrow %s opened for order %s, timeout at %s", hold.ID, order.ID, hold.TimeoutAt)

	return hold, nil
}

func (s *Service) loadOrderAndEscrow(ctx context.Context, orderID uuid.UUID) (*domain.Order, *domain.EscrowHold, error) {
	order, err := s.Orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	hold, err := s.Escrows.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, hold, nil
}

// Release moves ACTIVE → RELEASED: only the buyer (or SYSTEM, for
// timeout auto-release) may release, per spec §4.3's authorization
// table. Funds move seller-wards net of the platform fee.
func (s *Service) Release(ctx context.Context, orderID uuid.UUID, actor domain.Actor, actorID uuid.UUID, idempotencyKey string) error {
	ctx, span := s.tracer().Start(ctx, "escrow.release")
	defer span.End()

	order, hold, err := s.loadOrderAndEscrow(ctx, orderID)
	if err != nil {
		return err
	}

	if actor != domain.ActorSystem && actorID != order.BuyerID() {
		return apperrors.ForbiddenError{Code: apperrors.CodeUnauthorizedTransition, Message: "only the buyer may release escrow"}
	}

	if !domain.CanTransitionEscrow(hold.Status, domain.EscrowReleased) {
		return apperrors.ValidationError{
			Code:    apperrors.CodeInvalidStateTransition,
			Message: fmt.Sprintf("escrow cannot transition from %s to RELEASED", hold.Status),
		}
	}

	sellerWallet, err := s.Wallets.FindByUserID(ctx, order.SellerID())
	if err != nil {
		return err
	}

	if _, err := s.Ledger.RecordEscrowRelease(ctx, sellerWallet.ID, hold.ID, hold.AmountMinor, order.PlatformFeeMinor, idempotencyKey); err != nil {
		return err
	}

	net, err := money.Sub(hold.AmountMinor, order.PlatformFeeMinor)
	if err != nil {
		return apperrors.IntegrityError{Code: apperrors.CodeLedgerInvariantViolation, Message: err.Error()}
	}

	if err := s.WalletSvc.ReleaseEscrow(ctx, hold.BuyerWalletID, sellerWallet.ID, hold.AmountMinor, net); err != nil {
		return err
	}

	now := time.Now().UTC()
	hold.Status = domain.EscrowReleased
	hold.ResolvedAt = &now
	hold.UpdatedAt = now

	if err := s.Escrows.Update(ctx, hold); err != nil {
		return err
	}

	order.CompletedAt = &now

	if err := s.transitionOrder(ctx, order, domain.OrderCompleted); err != nil {
		return err
	}

	s.publish(ctx, events.KindEscrowReleased, order.ID, hold.ID)

	return nil
}

// Refund moves ACTIVE → REFUNDED: only the seller may refund, per spec
// §4.3. Funds return to the buyer in full.
func (s *Service) Refund(ctx context.Context, orderID uuid.UUID, actorID uuid.UUID, idempotencyKey string) error {
	ctx, span := s.tracer().Start(ctx, "escrow.refund")
	defer span.End()

	order, hold, err := s.loadOrderAndEscrow(ctx, orderID)
	if err != nil {
		return err
	}

	if actorID != order.SellerID() {
		return apperrors.ForbiddenError{Code: apperrors.CodeUnauthorizedTransition, Message: "only the seller may refund escrow"}
	}

	if !domain.CanTransitionEscrow(hold.Status, domain.EscrowRefunded) {
		return apperrors.ValidationError{
			Code:    apperrors.CodeInvalidStateTransition,
			Message: fmt.Sprintf("escrow cannot transition from %s to REFUNDED", hold.Status),
		}
	}

	buyerWallet, err := s.Wallets.FindByUserID(ctx, order.BuyerID())
	if err != nil {
		return err
	}

	if _, err := s.Ledger.RecordEscrowRefund(ctx, buyerWallet.ID, hold.ID, hold.AmountMinor, idempotencyKey); err != nil {
		return err
	}

	if err := s.releaseWalletSide(ctx, hold, buyerWallet.ID, hold.AmountMinor); err != nil {
		return err
	}

	now := time.Now().UTC()
	hold.Status = domain.EscrowRefunded
	hold.ResolvedAt = &now
	hold.UpdatedAt = now

	if err := s.Escrows.Update(ctx, hold); err != nil {
		return err
	}

	if err := s.transitionOrder(ctx, order, domain.OrderRefunded); err != nil {
		return err
	}

	s.publish(ctx, events.KindEscrowRefunded, order.ID, hold.ID)

	return nil
}

// releaseWalletSide mirrors a ledger release/refund on the wallet
// layer: the buyer's locked hold is fully consumed, and amount is
// credited to the recipient.
func (s *Service) releaseWalletSide(ctx context.Context, hold *domain.EscrowHold, recipientWalletID uuid.UUID, amount money.Minor) error {
	if recipientWalletID == hold.BuyerWalletID {
		if _, err := s.WalletSvc.Unlock(ctx, hold.BuyerWalletID, amount); err != nil {
			return err
		}

		return nil
	}

	return s.WalletSvc.TransferLocked(ctx, hold.BuyerWalletID, recipientWalletID, amount)
}

// Dispute moves ACTIVE → DISPUTED; either party may open a dispute,
// per spec §4.3.
func (s *Service) Dispute(ctx context.Context, orderID uuid.UUID, actorID uuid.UUID, reason string) (*domain.Dispute, error) {
	ctx, span := s.tracer().Start(ctx, "escrow.dispute")
	defer span.End()

	order, hold, err := s.loadOrderAndEscrow(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if actorID != order.BuyerID() && actorID != order.SellerID() {
		return nil, apperrors.ForbiddenError{Code: apperrors.CodeUnauthorizedTransition, Message: "only a party to the order may open a dispute"}
	}

	if !domain.CanTransitionEscrow(hold.Status, domain.EscrowDisputed) {
		return nil, apperrors.ValidationError{
			Code:    apperrors.CodeInvalidStateTransition,
			Message: fmt.Sprintf("escrow cannot transition from %s to DISPUTED", hold.Status),
		}
	}

	now := time.Now().UTC()
	dispute := &domain.Dispute{
		ID:        uuid.New(),
		EscrowID:  hold.ID,
		OpenedBy:  actorID,
		Reason:    reason,
		Status:    domain.DisputeOpen,
		CreatedAt: now,
	}

	if err := s.Disputes.Create(ctx, dispute); err != nil {
		return nil, err
	}

	hold.Status = domain.EscrowDisputed
	hold.UpdatedAt = now

	if err := s.Escrows.Update(ctx, hold); err != nil {
		return nil, err
	}

	if err := s.transitionOrder(ctx, order, domain.OrderDisputed); err != nil {
		return nil, err
	}

	s.publish(ctx, events.KindEscrowDisputed, order.ID, hold.ID)

	return dispute, nil
}

// ResolveDisputeInput names each side's share of a split resolution.
// A resolution favoring one party wholly sets that party's amount to
// the full hold and leaves the other at zero. PlatformFeeMinor is the
// arbitrator's share withheld from the hold, per spec §4.3's
// resolve_dispute(..., platform_fee, ...) signature; BuyerShareMinor +
// SellerShareMinor + PlatformFeeMinor must equal the full hold.
type ResolveDisputeInput struct {
	BuyerShareMinor  money.Minor
	SellerShareMinor money.Minor
	PlatformFeeMinor money.Minor
	Resolution       domain.DisputeResolution
	Notes            string
}

// ResolveDispute moves DISPUTED → ADJUSTED|RELEASED|REFUNDED and records
// resolverID as the dispute's resolver; it does not check resolverID's
// role.
func (s *Service) ResolveDispute(ctx context.Context, orderID, disputeID uuid.UUID, resolverID uuid.UUID, in ResolveDisputeInput, idempotencyKey string) error {
	ctx, span := s.tracer().Start(ctx, "escrow.resolve_dispute")
	defer span.End()

	order, hold, err := s.loadOrderAndEscrow(ctx, orderID)
	if err != nil {
		return err
	}

	dispute, err := s.Disputes.FindByID(ctx, disputeID)
	if err != nil {
		return err
	}

	if hold.Status != domain.EscrowDisputed {
		return apperrors.ValidationError{
			Code:    apperrors.CodeInvalidStateTransition,
			Message: "escrow is not under dispute",
		}
	}

	total, err := money.Add(in.BuyerShareMinor, in.SellerShareMinor)
	if err != nil {
		return apperrors.IntegrityError{Code: apperrors.CodeLedgerInvariantViolation, Message: err.Error()}
	}

	total, err = money.Add(total, in.PlatformFeeMinor)
	if err != nil {
		return apperrors.IntegrityError{Code: apperrors.CodeLedgerInvariantViolation, Message: err.Error()}
	}

	if total != hold.AmountMinor {
		return apperrors.ValidationError{
			Code:    apperrors.CodeInvalidAmount,
			Message: "buyer share, seller share, and platform fee must sum to the full held amount",
		}
	}

	buyerWallet, err := s.Wallets.FindByUserID(ctx, order.BuyerID())
	if err != nil {
		return err
	}

	sellerWallet, err := s.Wallets.FindByUserID(ctx, order.SellerID())
	if err != nil {
		return err
	}

	var splits []ledger.DisputeSplit
	if in.BuyerShareMinor > 0 {
		splits = append(splits, ledger.DisputeSplit{WalletID: buyerWallet.ID, Amount: in.BuyerShareMinor})
	}

	if in.SellerShareMinor > 0 {
		splits = append(splits, ledger.DisputeSplit{WalletID: sellerWallet.ID, Amount: in.SellerShareMinor})
	}

	if _, err := s.Ledger.RecordDisputeResolution(ctx, hold.ID, disputeID, hold.AmountMinor, splits, in.PlatformFeeMinor, idempotencyKey); err != nil {
		return err
	}

	if in.BuyerShareMinor > 0 {
		if err := s.releaseWalletSide(ctx, hold, buyerWallet.ID, in.BuyerShareMinor); err != nil {
			return err
		}
	}

	if in.SellerShareMinor > 0 {
		if err := s.releaseWalletSide(ctx, hold, sellerWallet.ID, in.SellerShareMinor); err != nil {
			return err
		}
	}

	// The fee never credits a wallet — it leaves the buyer's held
	// balance for the platform fees ledger account, same as Release's
	// fee differential.
	if in.PlatformFeeMinor > 0 {
		if _, err := s.WalletSvc.SettleWithdrawal(ctx, hold.BuyerWalletID, in.PlatformFeeMinor); err != nil {
			return err
		}
	}

	now := time.Now().UTC()

	finalEscrowStatus := domain.EscrowAdjusted
	finalOrderStatus := domain.OrderCompleted

	switch {
	case in.SellerShareMinor == 0:
		finalEscrowStatus = domain.EscrowRefunded
		finalOrderStatus = domain.OrderRefunded
	case in.BuyerShareMinor == 0:
		finalEscrowStatus = domain.EscrowReleased
		finalOrderStatus = domain.OrderCompleted
	}

	if !domain.CanTransitionEscrow(hold.Status, finalEscrowStatus) {
		return apperrors.ValidationError{
			Code:    apperrors.CodeInvalidStateTransition,
			Message: fmt.Sprintf("escrow cannot transition from %s to %s", hold.Status, finalEscrowStatus),
		}
	}

	hold.Status = finalEscrowStatus
	hold.ResolvedAt = &now
	hold.UpdatedAt = now

	if err := s.Escrows.Update(ctx, hold); err != nil {
		return err
	}

	resolution := in.Resolution
	dispute.Status = domain.DisputeClosed
	dispute.Resolution = &resolution
	dispute.ResolverID = &resolverID
	dispute.Notes = in.Notes
	dispute.ClosedAt = &now

	if err := s.Disputes.Update(ctx, dispute); err != nil {
		return err
	}

	order.CompletedAt = &now

	return s.transitionOrder(ctx, order, finalOrderStatus)
}
