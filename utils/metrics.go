package utils

import (
	"sync"
	"time"
)

// Metrics содержит метрики приложения
type Metrics struct {
	mu sync.RWMutex

	// Метрики запросов
	TotalRequests     int64
	FailedRequests    int64
	RequestLatency    time.Duration
	AverageLatency    time.Duration
	LastRequestTime   time.Time
	RequestsPerMinute float64

	// Текущее минутное окно для RequestsPerMinute
	windowStart      time.Time
	requestsInWindow int64

	// Метрики кредитов
	LoansCreated      int64
	LoanTransitions   int64
	LastLoanOperation time.Time

	// Метрики платежей
	PaymentsInitiated       int64
	PaymentsCompleted       int64
	PaymentsFailed          int64
	PaymentRetriesScheduled int64
	PaymentRetriesExecuted  int64
	AllocationConflicts     int64
	LastPaymentOperation    time.Time

	// Метрики ошибок
	ErrorCount     int64
	LastErrorTime  time.Time
	ErrorTypes     map[string]int64
	CriticalErrors int64
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// GetMetrics возвращает экземпляр метрик
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			ErrorTypes: make(map[string]int64),
		}
	})
	return metrics
}

// RecordRequest записывает метрики запроса
func (m *Metrics) RecordRequest(duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	m.TotalRequests++
	m.RequestLatency += duration
	m.AverageLatency = m.RequestLatency / time.Duration(m.TotalRequests)
	m.LastRequestTime = now

	if err != nil {
		m.FailedRequests++
		m.recordErrorLocked(err)
	}

	// Считаем запросы в текущем минутном окне
	if m.windowStart.IsZero() || now.Sub(m.windowStart) >= time.Minute {
		m.windowStart = now
		m.requestsInWindow = 0
	}
	m.requestsInWindow++
	m.RequestsPerMinute = float64(m.requestsInWindow)
}

// RecordLoanOperation записывает метрики операции с кредитом
func (m *Metrics) RecordLoanOperation(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastLoanOperation = time.Now()

	switch operation {
	case "create":
		m.LoansCreated++
	case "transition":
		m.LoanTransitions++
	}

	if err != nil {
		m.recordErrorLocked(err)
	}
}

// RecordPaymentOperation записывает метрики операции с платежом
func (m *Metrics) RecordPaymentOperation(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastPaymentOperation = time.Now()

	switch operation {
	case "initiate":
		m.PaymentsInitiated++
	case "complete":
		m.PaymentsCompleted++
	case "fail":
		m.PaymentsFailed++
	case "retry":
		m.PaymentRetriesExecuted++
	}

	if err != nil {
		m.recordErrorLocked(err)
	}
}

// RecordPaymentRetryScheduled записывает запланированный повтор платежа
func (m *Metrics) RecordPaymentRetryScheduled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PaymentRetriesScheduled++
}

// RecordAllocationConflict записывает конфликт конкурентного распределения
func (m *Metrics) RecordAllocationConflict() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AllocationConflicts++
}

// RecordError записывает метрики ошибки
func (m *Metrics) RecordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordErrorLocked(err)
}

// recordErrorLocked записывает ошибку; вызывается под мьютексом
func (m *Metrics) recordErrorLocked(err error) {
	m.ErrorCount++
	m.LastErrorTime = time.Now()

	errorType := "unknown"
	if err != nil {
		errorType = err.Error()
	}

	m.ErrorTypes[errorType]++
}

// RecordCriticalError записывает метрики критической ошибки
func (m *Metrics) RecordCriticalError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CriticalErrors++
	m.recordErrorLocked(err)
}

// GetMetricsSnapshot возвращает снимок текущих метрик
func (m *Metrics) GetMetricsSnapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"total_requests":            m.TotalRequests,
		"failed_requests":           m.FailedRequests,
		"average_latency":           m.AverageLatency,
		"requests_per_minute":       m.RequestsPerMinute,
		"loans_created":             m.LoansCreated,
		"loan_transitions":          m.LoanTransitions,
		"payments_initiated":        m.PaymentsInitiated,
		"payments_completed":        m.PaymentsCompleted,
		"payments_failed":           m.PaymentsFailed,
		"payment_retries_scheduled": m.PaymentRetriesScheduled,
		"payment_retries_executed":  m.PaymentRetriesExecuted,
		"allocation_conflicts":      m.AllocationConflicts,
		"error_count":               m.ErrorCount,
		"critical_errors":           m.CriticalErrors,
		"last_error_time":           m.LastErrorTime,
		"error_types":               m.ErrorTypes,
	}
}

// ResetMetrics сбрасывает все метрики
func (m *Metrics) ResetMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests = 0
	m.FailedRequests = 0
	m.RequestLatency = 0
	m.AverageLatency = 0
	m.RequestsPerMinute = 0
	m.windowStart = time.Time{}
	m.requestsInWindow = 0
	m.LoansCreated = 0
	m.LoanTransitions = 0
	m.PaymentsInitiated = 0
	m.PaymentsCompleted = 0
	m.PaymentsFailed = 0
	m.PaymentRetriesScheduled = 0
	m.PaymentRetriesExecuted = 0
	m.AllocationConflicts = 0
	m.ErrorCount = 0
	m.CriticalErrors = 0
	m.ErrorTypes = make(map[string]int64)
}
