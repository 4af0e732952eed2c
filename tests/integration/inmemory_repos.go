package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tutor-payment-engine/internal/core/domain"
	"tutor-payment-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Transaction Repo ---

type inMemoryTransactionRepo struct {
	mu           sync.RWMutex
	transactions map[uuid.UUID]*domain.Transaction
	escrowRepo   *inMemoryEscrowRepo
}

func newInMemoryTransactionRepo(escrowRepo *inMemoryEscrowRepo) *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{
		transactions: make(map[uuid.UUID]*domain.Transaction),
		escrowRepo:   escrowRepo,
	}
}

func (r *inMemoryTransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.transactions[t.ID] = &cp
	return nil
}

func (r *inMemoryTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transactions[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *inMemoryTransactionRepo) GetByGatewayReference(ctx context.Context, gateway domain.Gateway, reference string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	method := domain.PaymentMethodFor(gateway)
	for _, t := range r.transactions {
		if t.PaymentMethod == method && t.GatewayReference != nil && *t.GatewayReference == reference {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryTransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok {
		return fmt.Errorf("transaction not found")
	}
	if t.Status != domain.StatusPending {
		return fmt.Errorf("transaction %s is already %s: %w", id, t.Status, ports.ErrTransactionFinal)
	}
	t.Status = status
	t.CompletedAt = &completedAt
	return nil
}

func (r *inMemoryTransactionRepo) CheckRefundExists(ctx context.Context, originalTxID uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.transactions {
		if t.Type == domain.TypeRefund && t.RelatedTransactionID != nil &&
			*t.RelatedTransactionID == originalTxID && t.Status != domain.StatusFailed {
			return true, nil
		}
	}
	return false, nil
}

func (r *inMemoryTransactionRepo) LockTutorPayout(ctx context.Context, tx pgx.Tx, tutorID uuid.UUID) error {
	// The write mutex below serializes in-memory runs; the advisory
	// lock has nothing to do here.
	return nil
}

func (r *inMemoryTransactionRepo) SumEligiblePayout(ctx context.Context, tx pgx.Tx, tutorID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var eligible int64
	for _, t := range r.transactions {
		if t.Status != domain.StatusCompleted || t.TutorID == nil || *t.TutorID != tutorID {
			continue
		}
		switch t.Type {
		case domain.TypeStudentPayment, domain.TypeStudentPaymentRemaining, domain.TypeEscrowRelease:
			eligible += t.Amount
		case domain.TypeEscrowHold, domain.TypeTutorPayout:
			eligible -= t.Amount
		}
	}
	return eligible, nil
}

func (r *inMemoryTransactionRepo) ListPayableTutors(ctx context.Context) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	balances := make(map[uuid.UUID]int64)
	for _, t := range r.transactions {
		if t.Status != domain.StatusCompleted || t.TutorID == nil {
			continue
		}
		switch t.Type {
		case domain.TypeStudentPayment, domain.TypeStudentPaymentRemaining, domain.TypeEscrowRelease:
			balances[*t.TutorID] += t.Amount
		case domain.TypeEscrowHold, domain.TypeTutorPayout:
			balances[*t.TutorID] -= t.Amount
		}
	}
	var tutors []uuid.UUID
	for id, balance := range balances {
		if balance > 0 {
			tutors = append(tutors, id)
		}
	}
	return tutors, nil
}

func (r *inMemoryTransactionRepo) ExpireStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired int64
	now := time.Now().UTC()
	for _, t := range r.transactions {
		if t.Status != domain.StatusPending {
			continue
		}
		if t.PaymentMethod != domain.MethodMoMo && t.PaymentMethod != domain.MethodVNPay {
			continue
		}
		if t.CreatedAt.Before(cutoff) {
			t.Status = domain.StatusFailed
			t.CompletedAt = &now
			expired++
		}
	}
	return expired, nil
}

func (r *inMemoryTransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Transaction
	for _, t := range r.transactions {
		if params.UserID != nil && t.UserID != *params.UserID {
			continue
		}
		if params.TutorID != nil && (t.TutorID == nil || *t.TutorID != *params.TutorID) {
			continue
		}
		if params.ClassID != nil && (t.RelatedClassID == nil || *t.RelatedClassID != *params.ClassID) {
			continue
		}
		if params.Status != nil && t.Status != *params.Status {
			continue
		}
		if params.Type != nil && t.Type != *params.Type {
			continue
		}
		if params.From != nil && t.CreatedAt.Unix() < *params.From {
			continue
		}
		if params.To != nil && t.CreatedAt.Unix() > *params.To {
			continue
		}
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	total := int64(len(result))

	start := (params.Page - 1) * params.PageSize
	if start >= len(result) {
		return []domain.Transaction{}, total, nil
	}
	end := start + params.PageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

func (r *inMemoryTransactionRepo) GetReport(ctx context.Context) (*ports.ReconciliationReport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	report := &ports.ReconciliationReport{}
	for _, t := range r.transactions {
		if t.Status == domain.StatusPending {
			report.PendingTransactions++
			if t.Type == domain.TypeTutorPayout {
				report.PendingPayouts++
			}
			continue
		}
		if t.Status != domain.StatusCompleted {
			continue
		}
		switch t.Type {
		case domain.TypeClassRegistrationFee, domain.TypeStudentPayment,
			domain.TypeStudentPaymentRemaining, domain.TypeTestFee, domain.TypeCancellationFee:
			report.TotalRevenue += t.Amount
		case domain.TypeRefund:
			report.TotalRevenue -= t.Amount
		case domain.TypeTutorPayout:
			report.TotalPayouts += t.Amount
		}
	}
	if r.escrowRepo != nil {
		report.EscrowBalance = r.escrowRepo.openBalance()
	}
	return report, nil
}

// --- In-Memory Escrow Repo ---

type inMemoryEscrowRepo struct {
	mu    sync.RWMutex
	holds map[uuid.UUID]*domain.EscrowHold
}

func newInMemoryEscrowRepo() *inMemoryEscrowRepo {
	return &inMemoryEscrowRepo{holds: make(map[uuid.UUID]*domain.EscrowHold)}
}

func (r *inMemoryEscrowRepo) Create(ctx context.Context, tx pgx.Tx, h *domain.EscrowHold) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *h
	r.holds[h.ClassID] = &cp
	return nil
}

func (r *inMemoryEscrowRepo) GetByClassID(ctx context.Context, classID uuid.UUID) (*domain.EscrowHold, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.holds[classID]
	if !ok {
		return nil, nil
	}
	cp := *h
	return &cp, nil
}

func (r *inMemoryEscrowRepo) GetByClassIDForUpdate(ctx context.Context, tx pgx.Tx, classID uuid.UUID) (*domain.EscrowHold, error) {
	return r.GetByClassID(ctx, classID)
}

func (r *inMemoryEscrowRepo) Update(ctx context.Context, tx pgx.Tx, h *domain.EscrowHold) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.holds[h.ClassID]; !ok {
		return fmt.Errorf("escrow hold not found")
	}
	cp := *h
	r.holds[h.ClassID] = &cp
	return nil
}

func (r *inMemoryEscrowRepo) openBalance() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var balance int64
	for _, h := range r.holds {
		if h.State == domain.EscrowOpen || h.State == domain.EscrowPartiallyReleased {
			balance += h.HeldAmount - h.ReleasedAmount
		}
	}
	return balance
}

// --- In-Memory Idempotency Repo ---

type inMemoryIdempotencyRepo struct {
	mu      sync.Mutex
	records map[string]*domain.IdempotencyRecord
}

func newInMemoryIdempotencyRepo() *inMemoryIdempotencyRepo {
	return &inMemoryIdempotencyRepo{records: make(map[string]*domain.IdempotencyRecord)}
}

func (r *inMemoryIdempotencyRepo) Admit(ctx context.Context, tx pgx.Tx, rec *domain.IdempotencyRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := domain.BuildAdmissionKey(rec.Gateway, rec.GatewayReference)
	if _, taken := r.records[key]; taken {
		return false, nil
	}
	cp := *rec
	r.records[key] = &cp
	return true, nil
}

func (r *inMemoryIdempotencyRepo) Get(ctx context.Context, gateway domain.Gateway, reference string) (*domain.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[domain.BuildAdmissionKey(gateway, reference)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// --- In-Memory Wallet Repo (projection over the transaction repo) ---

type inMemoryWalletRepo struct {
	txRepo *inMemoryTransactionRepo
}

func newInMemoryWalletRepo(txRepo *inMemoryTransactionRepo) *inMemoryWalletRepo {
	return &inMemoryWalletRepo{txRepo: txRepo}
}

func (r *inMemoryWalletRepo) GetBalance(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.txRepo.mu.RLock()
	defer r.txRepo.mu.RUnlock()
	var balance int64
	for _, t := range r.txRepo.transactions {
		if t.UserID != userID || t.Status != domain.StatusCompleted {
			continue
		}
		balance += t.SignedContribution()
	}
	return &domain.Wallet{
		UserID:     userID,
		Balance:    balance,
		ComputedAt: time.Now().UTC(),
	}, nil
}

// --- In-Memory Audit Repo ---

type inMemoryAuditRepo struct {
	mu      sync.Mutex
	entries []domain.IPNAudit
}

func newInMemoryAuditRepo() *inMemoryAuditRepo {
	return &inMemoryAuditRepo{}
}

func (r *inMemoryAuditRepo) Create(ctx context.Context, entry *domain.IPNAudit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

// --- In-Memory Transactor (no-op tx) ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
