package services

import (
	"testing"
	"time"

	"lendingApp/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionPayment(t *testing.T) {
	allowed := []struct {
		from models.PaymentStatus
		to   models.PaymentStatus
	}{
		{models.PaymentStatusPending, models.PaymentStatusProcessing},
		{models.PaymentStatusPending, models.PaymentStatusCancelled},
		{models.PaymentStatusProcessing, models.PaymentStatusCompleted},
		{models.PaymentStatusProcessing, models.PaymentStatusFailed},
		{models.PaymentStatusFailed, models.PaymentStatusProcessing},
		{models.PaymentStatusFailed, models.PaymentStatusCancelled},
		{models.PaymentStatusCompleted, models.PaymentStatusRefunded},
		{models.PaymentStatusCompleted, models.PaymentStatusPartialRefund},
		{models.PaymentStatusPartialRefund, models.PaymentStatusRefunded},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransitionPayment(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	forbidden := []struct {
		from models.PaymentStatus
		to   models.PaymentStatus
	}{
		{models.PaymentStatusPending, models.PaymentStatusRefunded},
		{models.PaymentStatusCompleted, models.PaymentStatusProcessing},
		{models.PaymentStatusCompleted, models.PaymentStatusFailed},
		{models.PaymentStatusRefunded, models.PaymentStatusProcessing},
		{models.PaymentStatusCancelled, models.PaymentStatusProcessing},
		{models.PaymentStatusFailed, models.PaymentStatusCompleted},
	}
	for _, tc := range forbidden {
		assert.False(t, CanTransitionPayment(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestRetryBackoff(t *testing.T) {
	// Экспоненциальная задержка: 5, 10, 20, 40 минут
	assert.Equal(t, 5*time.Minute, RetryBackoff(1))
	assert.Equal(t, 10*time.Minute, RetryBackoff(2))
	assert.Equal(t, 20*time.Minute, RetryBackoff(3))
	assert.Equal(t, 40*time.Minute, RetryBackoff(4))
}

func TestFailPaymentSchedulesRetries(t *testing.T) {
	p := &models.Payment{
		Status:     models.PaymentStatusProcessing,
		MaxRetries: 3,
	}
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	// Первая неудача: повтор через 5 минут
	require.NoError(t, FailPayment(p, "", "BANK_TIMEOUT", "gateway timeout", "system", now))
	assert.Equal(t, models.PaymentStatusFailed, p.Status)
	assert.Equal(t, 1, p.RetryCount)
	require.NotNil(t, p.NextRetryAt)
	assert.Equal(t, now.Add(5*time.Minute), *p.NextRetryAt)
	assert.False(t, p.IsTerminal())

	// Повтор возвращает платеж в обработку
	require.NoError(t, ProcessPayment(p, "", "scheduler", now.Add(5*time.Minute)))

	// Вторая неудача: повтор через 10 минут
	second := now.Add(6 * time.Minute)
	require.NoError(t, FailPayment(p, "", "BANK_TIMEOUT", "gateway timeout", "system", second))
	assert.Equal(t, 2, p.RetryCount)
	require.NotNil(t, p.NextRetryAt)
	assert.Equal(t, second.Add(10*time.Minute), *p.NextRetryAt)

	// Третья неудача: повтор через 20 минут
	require.NoError(t, ProcessPayment(p, "", "scheduler", second))
	third := second.Add(11 * time.Minute)
	require.NoError(t, FailPayment(p, "", "BANK_TIMEOUT", "gateway timeout", "system", third))
	assert.Equal(t, 3, p.RetryCount)
	require.NotNil(t, p.NextRetryAt)
	assert.Equal(t, third.Add(20*time.Minute), *p.NextRetryAt)

	// Четвертая неудача исчерпывает лимит: повтор не планируется
	require.NoError(t, ProcessPayment(p, "", "scheduler", third))
	require.NoError(t, FailPayment(p, "", "BANK_TIMEOUT", "gateway timeout", "system", third.Add(time.Minute)))
	assert.Equal(t, 4, p.RetryCount)
	assert.Nil(t, p.NextRetryAt)
	assert.True(t, p.IsTerminal())

	// Журнал попыток только дополняется
	require.Len(t, p.RetryHistory, 4)
	for i, attempt := range p.RetryHistory {
		assert.Equal(t, i+1, attempt.AttemptNumber)
		assert.Equal(t, "BANK_TIMEOUT", attempt.ErrorCode)
	}
}

func TestCompletePaymentIdempotent(t *testing.T) {
	p := &models.Payment{
		Status:     models.PaymentStatusProcessing,
		MaxRetries: 3,
	}
	now := time.Now()

	require.NoError(t, CompletePayment(p, "system", now))
	assert.Equal(t, models.PaymentStatusCompleted, p.Status)
	assert.True(t, p.Allocated)
	require.NotNil(t, p.CompletedAt)
	require.NotNil(t, p.AllocatedAt)

	// Повторная доставка события о завершении отклоняется
	err := CompletePayment(p, "system", now)
	assert.ErrorIs(t, err, ErrDuplicateAllocation)
}

func TestCompletePaymentAllocatedGuard(t *testing.T) {
	// Защита срабатывает по флагу распределения, даже если статус
	// успели откатить
	p := &models.Payment{
		Status:    models.PaymentStatusProcessing,
		Allocated: true,
	}

	err := CompletePayment(p, "system", time.Now())
	assert.ErrorIs(t, err, ErrDuplicateAllocation)
}

func TestRefundPayment(t *testing.T) {
	completedAt := time.Now()
	p := &models.Payment{
		Status:      models.PaymentStatusCompleted,
		Amount:      472798,
		Allocated:   true,
		CompletedAt: &completedAt,
	}
	now := time.Now()

	// Частичный возврат
	require.NoError(t, RefundPayment(p, 100000, "двойное списание", "support", "RFD1", now))
	assert.Equal(t, models.PaymentStatusPartialRefund, p.Status)
	assert.Equal(t, int64(100000), p.RefundAmount)
	require.NotNil(t, p.RefundedAt)

	// Возврат не отменяет распределение
	assert.True(t, p.Allocated)

	// Полный возврат из частичного
	require.NoError(t, RefundPayment(p, 472798, "отмена операции", "support", "RFD2", now))
	assert.Equal(t, models.PaymentStatusRefunded, p.Status)
}

func TestRefundPaymentInvalidAmount(t *testing.T) {
	p := &models.Payment{Status: models.PaymentStatusCompleted, Amount: 100000}

	assert.Error(t, RefundPayment(p, 0, "", "support", "RFD1", time.Now()))
	assert.Error(t, RefundPayment(p, -5, "", "support", "RFD1", time.Now()))
	assert.Error(t, RefundPayment(p, 100001, "", "support", "RFD1", time.Now()))
	assert.Equal(t, models.PaymentStatusCompleted, p.Status)
}

func TestRefundPaymentRequiresCompleted(t *testing.T) {
	p := &models.Payment{Status: models.PaymentStatusProcessing, Amount: 100000}

	err := RefundPayment(p, 100000, "", "support", "RFD1", time.Now())
	var transitionErr *IllegalTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, "payment", transitionErr.Entity)
}

func TestCancelPayment(t *testing.T) {
	p := &models.Payment{
		Status:      models.PaymentStatusFailed,
		NextRetryAt: ptrTime(time.Now().Add(5 * time.Minute)),
	}

	require.NoError(t, CancelPayment(p, "отменен заемщиком", "support", time.Now()))
	assert.Equal(t, models.PaymentStatusCancelled, p.Status)
	// Отмена снимает запланированный повтор
	assert.Nil(t, p.NextRetryAt)
	assert.True(t, p.IsTerminal())

	// Завершенный платеж отменить нельзя
	done := &models.Payment{Status: models.PaymentStatusCompleted}
	assert.Error(t, CancelPayment(done, "", "support", time.Now()))
}

func TestPaymentStatusHistoryAppendOnly(t *testing.T) {
	p := &models.Payment{Status: models.PaymentStatusPending, MaxRetries: 3}
	now := time.Now()

	require.NoError(t, ProcessPayment(p, "", "system", now))
	require.NoError(t, FailPayment(p, "", "E1", "first", "system", now))
	require.NoError(t, ProcessPayment(p, "", "scheduler", now))
	require.NoError(t, CompletePayment(p, "system", now))

	require.Len(t, p.StatusHistory, 4)
	assert.Equal(t, models.PaymentStatusProcessing, p.StatusHistory[0].Status)
	assert.Equal(t, models.PaymentStatusFailed, p.StatusHistory[1].Status)
	assert.Equal(t, models.PaymentStatusProcessing, p.StatusHistory[2].Status)
	assert.Equal(t, models.PaymentStatusCompleted, p.StatusHistory[3].Status)
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
