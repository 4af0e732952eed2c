package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"tutor-payment-engine/internal/core/domain"
	"tutor-payment-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newTestTransaction(userID uuid.UUID) *domain.Transaction {
	now := time.Now().UTC().Truncate(time.Microsecond)
	classID := uuid.New()
	tutorID := uuid.New()
	return &domain.Transaction{
		ID:               uuid.New(),
		Type:             domain.TypeStudentPayment,
		Amount:           500000,
		UserID:           userID,
		TutorID:          &tutorID,
		RelatedClassID:   &classID,
		PaymentMethod:    domain.MethodMoMo,
		Status:           domain.StatusPending,
		GatewayReference: strPtr("MOMO123"),
		CreatedAt:        now,
	}
}

func txColumns() []string {
	return []string{"id", "transaction_type", "amount", "user_id", "tutor_id", "related_class_id",
		"related_transaction_id", "payment_method", "status", "gateway_reference", "created_at", "completed_at"}
}

func txRow(t *domain.Transaction) *pgxmock.Rows {
	return pgxmock.NewRows(txColumns()).AddRow(
		t.ID, t.Type, t.Amount, t.UserID, t.TutorID, t.RelatedClassID,
		t.RelatedTransactionID, t.PaymentMethod, t.Status, t.GatewayReference,
		t.CreatedAt, t.CompletedAt,
	)
}

func TestTransactionRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(
			txn.ID, txn.Type, txn.Amount, txn.UserID, txn.TutorID, txn.RelatedClassID,
			txn.RelatedTransactionID, txn.PaymentMethod, txn.Status, txn.GatewayReference,
			txn.CreatedAt, txn.CompletedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), dbTx, txn)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New())

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE id").
		WithArgs(txn.ID).
		WillReturnRows(txRow(txn))

	result, err := repo.GetByID(context.Background(), txn.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, txn.ID, result.ID)
	assert.Equal(t, txn.Amount, result.Amount)
	assert.Equal(t, txn.Type, result.Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByGatewayReference_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE payment_method").
		WithArgs(domain.MethodMoMo, "UNKNOWN-REF").
		WillReturnRows(pgxmock.NewRows(txColumns()))

	result, err := repo.GetByGatewayReference(context.Background(), domain.GatewayMoMo, "UNKNOWN-REF")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_UpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	id := uuid.New()
	completedAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE transactions SET status .+ AND status = 'pending'`).
		WithArgs(domain.StatusCompleted, completedAt, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.UpdateStatus(context.Background(), dbTx, id, domain.StatusCompleted, completedAt)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_UpdateStatus_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	id := uuid.New()
	completedAt := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE transactions SET status .+ AND status = 'pending'`).
		WithArgs(domain.StatusFailed, completedAt, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM transactions").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.UpdateStatus(context.Background(), dbTx, id, domain.StatusFailed, completedAt)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ports.ErrTransactionFinal))
}

func TestTransactionRepo_UpdateStatus_AlreadyTerminal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	id := uuid.New()
	completedAt := time.Now().UTC()

	// The predicate misses a failed row; the status read tells the
	// caller the row was already finalized.
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE transactions SET status .+ AND status = 'pending'`).
		WithArgs(domain.StatusCompleted, completedAt, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM transactions").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(domain.StatusFailed))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.UpdateStatus(context.Background(), dbTx, id, domain.StatusCompleted, completedAt)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrTransactionFinal))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_ListPayableTutors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	tutorA := uuid.New()
	tutorB := uuid.New()

	mock.ExpectQuery(`SELECT tutor_id FROM transactions`).
		WillReturnRows(pgxmock.NewRows([]string{"tutor_id"}).AddRow(tutorA).AddRow(tutorB))

	tutors, err := repo.ListPayableTutors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{tutorA, tutorB}, tutors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_SumEligiblePayout(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	tutorID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(tutorID).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(int64(420000)))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	eligible, err := repo.SumEligiblePayout(context.Background(), dbTx, tutorID)
	require.NoError(t, err)
	assert.Equal(t, int64(420000), eligible)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_ExpireStalePending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	cutoff := time.Now().Add(-30 * time.Minute)

	mock.ExpectExec("UPDATE transactions SET status = 'failed'").
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	expired, err := repo.ExpireStalePending(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), expired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_List_WithFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	userID := uuid.New()
	status := domain.StatusCompleted
	txn := newTestTransaction(userID)
	txn.Status = status

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM transactions").
		WithArgs(userID, status).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT .+ FROM transactions WHERE user_id").
		WithArgs(userID, status, 20, 0).
		WillReturnRows(txRow(txn))

	txns, total, err := repo.List(context.Background(), ports.TransactionListParams{
		UserID:   &userID,
		Status:   &status,
		Page:     1,
		PageSize: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, txns, 1)
	assert.Equal(t, txn.ID, txns[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetReport(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectQuery("SELECT").
		WillReturnRows(pgxmock.NewRows(
			[]string{"total_revenue", "total_payouts", "escrow_balance", "pending_transactions", "pending_payouts"},
		).AddRow(int64(1500000), int64(400000), int64(100000), int64(2), int64(1)))

	report, err := repo.GetReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1500000), report.TotalRevenue)
	assert.Equal(t, int64(400000), report.TotalPayouts)
	assert.Equal(t, int64(100000), report.EscrowBalance)
	assert.Equal(t, int64(2), report.PendingTransactions)
	assert.Equal(t, int64(1), report.PendingPayouts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
