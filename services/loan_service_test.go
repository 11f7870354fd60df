package services

import (
	"testing"
	"time"

	"lendingApp/config"
	"lendingApp/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoanService() *LoanService {
	cfg := &config.Config{}
	cfg.Loan.DaysOverdueForDefault = 90
	cfg.Loan.AllocationRetries = 3
	return NewLoanService(nil, nil, cfg)
}

func TestCanTransitionLoan(t *testing.T) {
	allowed := []struct {
		from models.LoanStatus
		to   models.LoanStatus
	}{
		{models.LoanStatusDraft, models.LoanStatusSubmitted},
		{models.LoanStatusDraft, models.LoanStatusCancelled},
		{models.LoanStatusSubmitted, models.LoanStatusUnderReview},
		{models.LoanStatusUnderReview, models.LoanStatusDocumentVerification},
		{models.LoanStatusDocumentVerification, models.LoanStatusCreditAssessment},
		{models.LoanStatusCreditAssessment, models.LoanStatusApproved},
		{models.LoanStatusApproved, models.LoanStatusDisbursed},
		{models.LoanStatusDisbursed, models.LoanStatusActive},
		{models.LoanStatusActive, models.LoanStatusCompleted},
		{models.LoanStatusActive, models.LoanStatusDefaulted},
		{models.LoanStatusDefaulted, models.LoanStatusWrittenOff},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransitionLoan(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	forbidden := []struct {
		from models.LoanStatus
		to   models.LoanStatus
	}{
		{models.LoanStatusDraft, models.LoanStatusDisbursed},
		{models.LoanStatusDraft, models.LoanStatusActive},
		{models.LoanStatusDisbursed, models.LoanStatusDraft},
		{models.LoanStatusActive, models.LoanStatusCancelled},
		{models.LoanStatusCompleted, models.LoanStatusActive},
		{models.LoanStatusRejected, models.LoanStatusApproved},
		{models.LoanStatusCancelled, models.LoanStatusSubmitted},
		{models.LoanStatusWrittenOff, models.LoanStatusActive},
	}
	for _, tc := range forbidden {
		assert.False(t, CanTransitionLoan(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTermsLocked(t *testing.T) {
	locked := []models.LoanStatus{
		models.LoanStatusDisbursed, models.LoanStatusActive, models.LoanStatusCompleted,
		models.LoanStatusDefaulted, models.LoanStatusWrittenOff,
	}
	for _, status := range locked {
		assert.True(t, TermsLocked(status), string(status))
	}

	unlocked := []models.LoanStatus{
		models.LoanStatusDraft, models.LoanStatusSubmitted, models.LoanStatusUnderReview,
		models.LoanStatusApproved, models.LoanStatusRejected, models.LoanStatusCancelled,
	}
	for _, status := range unlocked {
		assert.False(t, TermsLocked(status), string(status))
	}
}

func TestApplyLoanTransitionIllegal(t *testing.T) {
	s := testLoanService()
	loan := &models.Loan{Status: models.LoanStatusDraft}

	err := s.applyLoanTransition(loan, models.LoanStatusActive, LoanTransitionContext{}, time.Now())
	var transitionErr *IllegalTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, "loan", transitionErr.Entity)
	// Кредит остается в исходном статусе
	assert.Equal(t, models.LoanStatusDraft, loan.Status)
}

func TestApplyLoanTransitionApprove(t *testing.T) {
	s := testLoanService()
	loan := &models.Loan{Status: models.LoanStatusSubmitted, RequestedAmount: 5000000}
	now := time.Now()

	// Одобрение без условий отклоняется
	err := s.applyLoanTransition(loan, models.LoanStatusApproved, LoanTransitionContext{}, now)
	require.Error(t, err)

	err = s.applyLoanTransition(loan, models.LoanStatusApproved, LoanTransitionContext{
		Approve: &ApproveLoanDTO{ApprovedAmount: 5000000, InterestRate: 24, Tenure: 12},
	}, now)
	require.NoError(t, err)

	assert.Equal(t, models.LoanStatusApproved, loan.Status)
	assert.Equal(t, int64(5000000), loan.ApprovedAmount)
	assert.Equal(t, 24.0, loan.InterestRate)
	assert.Equal(t, 12, loan.Tenure)
	require.NotNil(t, loan.ApprovalDate)
	assert.Equal(t, models.LoanSubstatusPendingDisbursement, loan.Substatus)

	// График при одобрении не создается
	assert.Empty(t, loan.Schedule)
}

func TestApplyLoanTransitionDisburse(t *testing.T) {
	s := testLoanService()
	loan := &models.Loan{
		Status:         models.LoanStatusApproved,
		ApprovedAmount: 5000000,
		InterestRate:   24,
		Tenure:         12,
		Cadence:        models.CadenceMonthly,
	}
	disbursedAt := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	err := s.applyLoanTransition(loan, models.LoanStatusDisbursed, LoanTransitionContext{
		Disburse: &DisburseLoanDTO{Amount: 5000000, Date: disbursedAt},
	}, disbursedAt)
	require.NoError(t, err)

	assert.Equal(t, models.LoanStatusDisbursed, loan.Status)
	require.Len(t, loan.Schedule, 12)

	// График закрепляется за датой выдачи
	assert.Equal(t, disbursedAt.AddDate(0, 1, 0), loan.Schedule[0].DueDate)
	require.NotNil(t, loan.FirstInstallmentDate)
	assert.Equal(t, loan.Schedule[0].DueDate, *loan.FirstInstallmentDate)
	require.NotNil(t, loan.LastInstallmentDate)
	assert.Equal(t, loan.Schedule[11].DueDate, *loan.LastInstallmentDate)
	require.NotNil(t, loan.NextDueDate)

	assert.Equal(t, int64(472798), loan.InstallmentAmount)
	assert.Equal(t, int64(5673576), loan.TotalRepaymentAmount)

	// Агрегаты пересчитаны по свежему графику
	assert.Equal(t, int64(5000000), loan.Summary.RemainingPrincipal)
	assert.Equal(t, int64(5673576), loan.Summary.TotalRemaining)
	assert.Equal(t, int64(0), loan.Summary.TotalPaid)
}

func TestApplyLoanTransitionPrematureCompletion(t *testing.T) {
	s := testLoanService()
	loan := &models.Loan{Status: models.LoanStatusActive}
	loan.Summary.TotalRemaining = 100

	err := s.applyLoanTransition(loan, models.LoanStatusCompleted, LoanTransitionContext{}, time.Now())
	assert.ErrorIs(t, err, ErrPrematureCompletion)
	assert.Equal(t, models.LoanStatusActive, loan.Status)

	loan.Summary.TotalRemaining = 0
	err = s.applyLoanTransition(loan, models.LoanStatusCompleted, LoanTransitionContext{}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusCompleted, loan.Status)
	require.NotNil(t, loan.CompletionDate)
	assert.Nil(t, loan.NextDueDate)
}

func TestApplyLoanTransitionDefaultThreshold(t *testing.T) {
	s := testLoanService()
	loan := &models.Loan{Status: models.LoanStatusActive}
	loan.Summary.DaysOverdue = 30

	// Порог просрочки не достигнут
	err := s.applyLoanTransition(loan, models.LoanStatusDefaulted, LoanTransitionContext{}, time.Now())
	require.Error(t, err)
	assert.Equal(t, models.LoanStatusActive, loan.Status)

	loan.Summary.DaysOverdue = 91
	err = s.applyLoanTransition(loan, models.LoanStatusDefaulted, LoanTransitionContext{}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusDefaulted, loan.Status)
	require.NotNil(t, loan.DefaultDate)
}

// conflictingLoanStore имитирует конкурентную запись: первые conflicts
// попыток записи завершаются конфликтом версий
type conflictingLoanStore struct {
	loan      *models.Loan
	conflicts int
	loads     int
	writes    int
}

func (st *conflictingLoanStore) loadLoan(id uint) (*models.Loan, error) {
	st.loads++
	clone := *st.loan
	clone.Schedule = make([]models.Installment, len(st.loan.Schedule))
	copy(clone.Schedule, st.loan.Schedule)
	return &clone, nil
}

func (st *conflictingLoanStore) writeAllocation(loan *models.Loan, schedule []models.Installment, summary models.PaymentSummary, paymentID string, result *AllocationResult) error {
	st.writes++
	if st.writes <= st.conflicts {
		// Конкурент успел записать новую версию
		st.loan.Version++
		return ErrAllocationConflict
	}
	st.loan.Schedule = schedule
	st.loan.Summary = summary
	st.loan.Version++
	return nil
}

func disbursedTestLoan(t *testing.T) *models.Loan {
	t.Helper()
	generated, err := GenerateSchedule(ScheduleTerms{
		Principal:  5000000,
		AnnualRate: 24,
		Tenure:     12,
		Cadence:    models.CadenceMonthly,
		StartDate:  time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	loan := &models.Loan{
		Status:               models.LoanStatusDisbursed,
		ApprovedAmount:       5000000,
		TotalRepaymentAmount: generated.TotalRepaymentAmount,
		Schedule:             generated.Installments,
	}
	return loan
}

func TestApplyPaymentRetriesOnVersionConflict(t *testing.T) {
	s := testLoanService()
	store := &conflictingLoanStore{loan: disbursedTestLoan(t), conflicts: 1}
	s.store = store

	paidDate := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
	result, err := s.ApplyPayment(1, "PAYCONFLICT1", 472798, paidDate)
	require.NoError(t, err)

	// После конфликта цикл перечитывает график и повторяет запись
	assert.Equal(t, 2, store.loads)
	assert.Equal(t, 2, store.writes)

	assert.Equal(t, int64(472798), result.Applied)
	assert.Equal(t, int64(0), result.Remainder)

	// Записан результат распределения по свежему графику
	assert.Equal(t, models.InstallmentStatusPaid, store.loan.Schedule[0].Status)
	assert.Equal(t, int64(472798), store.loan.Summary.TotalPaid)
}

func TestApplyPaymentConflictExhaustion(t *testing.T) {
	s := testLoanService()
	store := &conflictingLoanStore{loan: disbursedTestLoan(t), conflicts: 10}
	s.store = store

	_, err := s.ApplyPayment(1, "PAYCONFLICT2", 472798, time.Now())
	assert.ErrorIs(t, err, ErrAllocationConflict)

	// Число попыток ограничено настройкой
	assert.Equal(t, 3, store.loads)
	assert.Equal(t, 3, store.writes)

	// График не изменился
	assert.Equal(t, models.InstallmentStatusPending, store.loan.Schedule[0].Status)
	assert.Equal(t, int64(0), store.loan.Summary.TotalPaid)
}

func TestApplyLoanTransitionReject(t *testing.T) {
	s := testLoanService()
	loan := &models.Loan{Status: models.LoanStatusUnderReview}

	err := s.applyLoanTransition(loan, models.LoanStatusRejected, LoanTransitionContext{Reason: "низкий кредитный рейтинг"}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.LoanStatusRejected, loan.Status)
	assert.Equal(t, "низкий кредитный рейтинг", loan.RejectionReason)
	require.NotNil(t, loan.RejectionDate)
}
