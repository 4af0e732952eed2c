package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tutor-payment-engine/config"
	"tutor-payment-engine/internal/core/domain"
	"tutor-payment-engine/internal/core/ports"
	"tutor-payment-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const idempotencyTTL = 24 * time.Hour

// PaymentServiceImpl implements ports.PaymentService.
type PaymentServiceImpl struct {
	txRepo     ports.TransactionRepository
	escrowRepo ports.EscrowRepository
	idempRepo  ports.IdempotencyRepository
	idempCache ports.IdempotencyCache
	adapters   map[domain.Gateway]ports.GatewayAdapter
	transactor ports.DBTransactor
	escrowCfg  config.EscrowConfig
	log        zerolog.Logger
}

// NewPaymentService creates a new PaymentServiceImpl.
func NewPaymentService(
	txRepo ports.TransactionRepository,
	escrowRepo ports.EscrowRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	adapters []ports.GatewayAdapter,
	transactor ports.DBTransactor,
	escrowCfg config.EscrowConfig,
	log zerolog.Logger,
) *PaymentServiceImpl {
	byGateway := make(map[domain.Gateway]ports.GatewayAdapter, len(adapters))
	for _, a := range adapters {
		byGateway[a.Gateway()] = a
	}
	return &PaymentServiceImpl{
		txRepo:     txRepo,
		escrowRepo: escrowRepo,
		idempRepo:  idempRepo,
		idempCache: idempCache,
		adapters:   byGateway,
		transactor: transactor,
		escrowCfg:  escrowCfg,
		log:        log,
	}
}

// CreatePayment appends a pending transaction and asks the gateway for
// a pay URL. The transaction commits before the gateway call: if the
// call fails the row is marked failed, and if the user abandons the
// payment the sweeper expires it.
func (s *PaymentServiceImpl) CreatePayment(ctx context.Context, req ports.CreatePaymentRequest) (*ports.PaymentInitiation, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if !req.Type.IsGatewayPayable() {
		return nil, apperror.ErrInvalidTransactionType()
	}
	if req.Type.FeedsEscrow() && (req.ClassID == nil || req.TutorID == nil) {
		return nil, apperror.Validation("class_id and tutor_id are required for this transaction type")
	}
	// student_payment_remaining accrues to the tutor's payout balance,
	// so an anonymous row would be money nobody can ever be paid.
	if req.Type == domain.TypeStudentPaymentRemaining && req.TutorID == nil {
		return nil, apperror.Validation("tutor_id is required for student_payment_remaining")
	}

	adapter, ok := s.adapters[req.Gateway]
	if !ok {
		return nil, apperror.Validation(fmt.Sprintf("unsupported gateway: %s", req.Gateway))
	}

	reference := "TPE-" + uuid.NewString()
	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:               uuid.New(),
		Type:             req.Type,
		Amount:           req.Amount,
		UserID:           req.UserID,
		TutorID:          req.TutorID,
		RelatedClassID:   req.ClassID,
		PaymentMethod:    domain.PaymentMethodFor(req.Gateway),
		Status:           domain.StatusPending,
		GatewayReference: &reference,
		CreatedAt:        now,
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	payURL, err := adapter.CreatePayment(ctx, ports.PaymentIntent{
		Reference: reference,
		Amount:    req.Amount,
		OrderInfo: req.OrderInfo,
		ClientIP:  req.ClientIP,
	})
	if err != nil {
		s.failTransaction(ctx, txn.ID)
		return nil, err
	}

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("gateway", string(req.Gateway)).
		Str("reference", reference).
		Int64("amount", req.Amount).
		Msg("payment initiated")

	return &ports.PaymentInitiation{Transaction: txn, PayURL: payURL}, nil
}

// HandleNotification applies a verified gateway notification. The
// idempotency admission, the status commit, and the escrow carve-out
// all ride the same database transaction: either the delivery fully
// applies or it leaves no trace.
func (s *PaymentServiceImpl) HandleNotification(ctx context.Context, notif *domain.GatewayNotification) (*ports.NotificationResult, error) {
	key := domain.BuildAdmissionKey(notif.Gateway, notif.GatewayReference)

	// Fast path: Redis remembers recently processed deliveries.
	cached, err := s.idempCache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		txn, err := s.txRepo.GetByGatewayReference(ctx, notif.Gateway, notif.GatewayReference)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("load processed transaction: %w", err))
		}
		return &ports.NotificationResult{Transaction: txn, AlreadyProcessed: true}, nil
	}

	txn, err := s.txRepo.GetByGatewayReference(ctx, notif.Gateway, notif.GatewayReference)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.ErrNotFound("transaction")
	}
	if notif.Amount != txn.Amount {
		return nil, apperror.ErrAmountMismatch()
	}

	// pending_retry does not consume the idempotency key: the gateway
	// will deliver a terminal notification for the same reference later.
	if notif.Outcome == domain.OutcomePendingRetry {
		s.log.Info().
			Str("reference", notif.GatewayReference).
			Str("result_code", notif.ResultCode).
			Msg("notification pending retry, awaiting terminal delivery")
		return &ports.NotificationResult{Transaction: txn, PendingRetry: true}, nil
	}

	if txn.IsTerminal() {
		// Includes the late-success case: the sweeper already failed the
		// transaction and the gateway's success arrived afterwards. The
		// ledger does not reopen terminal rows; operators reconcile.
		if notif.Outcome == domain.OutcomeSuccess && txn.Status == domain.StatusFailed {
			s.log.Warn().
				Str("tx_id", txn.ID.String()).
				Str("reference", notif.GatewayReference).
				Msg("success notification for already-failed transaction, manual reconciliation needed")
		}
		return &ports.NotificationResult{Transaction: txn, AlreadyProcessed: true}, nil
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	admitted, err := s.idempRepo.Admit(ctx, dbTx, &domain.IdempotencyRecord{
		Gateway:          notif.Gateway,
		GatewayReference: notif.GatewayReference,
		TransactionID:    txn.ID,
		ProcessedAt:      now,
	})
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("idempotency admission: %w", err))
	}
	if !admitted {
		// A concurrent delivery won the key. Nothing to apply.
		return &ports.NotificationResult{Transaction: txn, AlreadyProcessed: true}, nil
	}

	status := domain.StatusCompleted
	if notif.Outcome == domain.OutcomeFailed {
		status = domain.StatusFailed
	}
	if err := s.txRepo.UpdateStatus(ctx, dbTx, txn.ID, status, now); err != nil {
		if errors.Is(err, ports.ErrTransactionFinal) {
			// A sweeper run or concurrent delivery finalized the row
			// between our read and this write. The terminal state wins;
			// re-read it so the ack reflects what the ledger holds.
			current, gerr := s.txRepo.GetByID(ctx, txn.ID)
			if gerr != nil || current == nil {
				current = txn
			}
			s.log.Warn().
				Str("tx_id", txn.ID.String()).
				Str("reference", notif.GatewayReference).
				Str("status", string(current.Status)).
				Msg("notification arrived after the transaction was finalized")
			return &ports.NotificationResult{Transaction: current, AlreadyProcessed: true}, nil
		}
		return nil, apperror.InternalError(fmt.Errorf("update status: %w", err))
	}
	txn.Status = status
	txn.CompletedAt = &now

	if status == domain.StatusCompleted && txn.Type.FeedsEscrow() {
		if err := s.carveEscrow(ctx, dbTx, txn, now); err != nil {
			return nil, err
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	// Post-commit: best-effort cache of the terminal outcome.
	if err := s.idempCache.Set(ctx, key, []byte(txn.ID.String()), idempotencyTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to cache idempotency in redis")
	}

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("reference", notif.GatewayReference).
		Str("status", string(status)).
		Int64("amount", txn.Amount).
		Msg("notification applied")

	return &ports.NotificationResult{Transaction: txn}, nil
}

// carveEscrow withholds the configured percentage of a completed
// qualifying payment from the tutor. The hold row and the escrow_hold
// ledger entry commit with the payment status change.
func (s *PaymentServiceImpl) carveEscrow(ctx context.Context, dbTx pgx.Tx, txn *domain.Transaction, now time.Time) error {
	carve := domain.EscrowCarveOut(txn.Amount, s.escrowCfg.Percent)
	if carve == 0 {
		return nil
	}

	hold, err := s.escrowRepo.GetByClassIDForUpdate(ctx, dbTx, *txn.RelatedClassID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock escrow hold: %w", err))
	}
	if hold != nil && !hold.CanAccrue() {
		// The class escrow already resolved; a further qualifying payment
		// on it is unusual but not illegal. It stays out of escrow.
		s.log.Warn().
			Str("class_id", hold.ClassID.String()).
			Str("state", string(hold.State)).
			Msg("escrow hold already resolved, payment not escrowed")
		return nil
	}

	holdTxn := &domain.Transaction{
		ID:                   uuid.New(),
		Type:                 domain.TypeEscrowHold,
		Amount:               carve,
		UserID:               *txn.TutorID,
		TutorID:              txn.TutorID,
		RelatedClassID:       txn.RelatedClassID,
		RelatedTransactionID: &txn.ID,
		PaymentMethod:        domain.MethodInternal,
		Status:               domain.StatusCompleted,
		CreatedAt:            now,
		CompletedAt:          &now,
	}
	if err := s.txRepo.Create(ctx, dbTx, holdTxn); err != nil {
		return apperror.InternalError(fmt.Errorf("create escrow hold transaction: %w", err))
	}

	if hold == nil {
		hold = &domain.EscrowHold{
			ClassID:           *txn.RelatedClassID,
			TutorID:           *txn.TutorID,
			HoldTransactionID: holdTxn.ID,
			HeldAmount:        carve,
			State:             domain.EscrowOpen,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := s.escrowRepo.Create(ctx, dbTx, hold); err != nil {
			return apperror.InternalError(fmt.Errorf("create escrow hold: %w", err))
		}
		return nil
	}

	hold.HeldAmount += carve
	hold.UpdatedAt = now
	if err := s.escrowRepo.Update(ctx, dbTx, hold); err != nil {
		return apperror.InternalError(fmt.Errorf("accrue escrow hold: %w", err))
	}
	return nil
}

// ProcessRefund commits a compensating refund for a completed payment.
func (s *PaymentServiceImpl) ProcessRefund(ctx context.Context, req ports.RefundRequest) (*domain.Transaction, error) {
	origTx, err := s.txRepo.GetByID(ctx, req.OriginalTransactionID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find original tx: %w", err))
	}
	if origTx == nil {
		return nil, apperror.ErrNotFound("original transaction")
	}
	if !origTx.IsRefundable() {
		return nil, apperror.ErrInvalidRefund()
	}

	refundExists, err := s.txRepo.CheckRefundExists(ctx, origTx.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check refund exists: %w", err))
	}
	if refundExists {
		return nil, apperror.ErrDuplicateRefund()
	}

	refundAmount := origTx.Amount
	if req.Amount != nil {
		if *req.Amount <= 0 {
			return nil, apperror.ErrInvalidAmount()
		}
		if *req.Amount > origTx.Amount {
			return nil, apperror.ErrRefundAmountExceedsOriginal()
		}
		refundAmount = *req.Amount
	}

	now := time.Now().UTC()
	refund := &domain.Transaction{
		ID:                   uuid.New(),
		Type:                 domain.TypeRefund,
		Amount:               refundAmount,
		UserID:               origTx.UserID,
		TutorID:              origTx.TutorID,
		RelatedClassID:       origTx.RelatedClassID,
		RelatedTransactionID: &origTx.ID,
		PaymentMethod:        domain.MethodInternal,
		Status:               domain.StatusCompleted,
		CreatedAt:            now,
		CompletedAt:          &now,
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.txRepo.Create(ctx, dbTx, refund); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create refund: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("refund_id", refund.ID.String()).
		Str("original_id", origTx.ID.String()).
		Int64("amount", refundAmount).
		Msg("refund processed")

	return refund, nil
}

// failTransaction best-effort marks an initiated transaction failed
// after the gateway rejected the create call.
func (s *PaymentServiceImpl) failTransaction(ctx context.Context, id uuid.UUID) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		s.log.Warn().Err(err).Str("tx_id", id.String()).Msg("failed to mark transaction failed")
		return
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.txRepo.UpdateStatus(ctx, dbTx, id, domain.StatusFailed, time.Now().UTC()); err != nil {
		if errors.Is(err, ports.ErrTransactionFinal) {
			// The IPN finalized the row before the failure mark landed.
			return
		}
		s.log.Warn().Err(err).Str("tx_id", id.String()).Msg("failed to mark transaction failed")
		return
	}
	if err := dbTx.Commit(ctx); err != nil {
		s.log.Warn().Err(err).Str("tx_id", id.String()).Msg("failed to mark transaction failed")
	}
}
