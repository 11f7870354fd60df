package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsRequestsPerMinute(t *testing.T) {
	m := GetMetrics()
	m.ResetMetrics()
	defer m.ResetMetrics()

	m.RecordRequest(10*time.Millisecond, nil)
	m.RecordRequest(10*time.Millisecond, nil)
	m.RecordRequest(10*time.Millisecond, nil)

	snapshot := m.GetMetricsSnapshot()
	assert.Equal(t, int64(3), snapshot["total_requests"])

	// В пределах минутного окна частота равна числу запросов
	assert.Equal(t, float64(3), snapshot["requests_per_minute"])
}

func TestMetricsRecordRequestError(t *testing.T) {
	m := GetMetrics()
	m.ResetMetrics()
	defer m.ResetMetrics()

	m.RecordRequest(time.Millisecond, errors.New("ошибка обработки"))

	snapshot := m.GetMetricsSnapshot()
	assert.Equal(t, int64(1), snapshot["failed_requests"])
	assert.Equal(t, int64(1), snapshot["error_count"])
}

func TestMetricsPaymentOperations(t *testing.T) {
	m := GetMetrics()
	m.ResetMetrics()
	defer m.ResetMetrics()

	m.RecordPaymentOperation("initiate", nil)
	m.RecordPaymentOperation("complete", nil)
	m.RecordPaymentOperation("fail", nil)
	m.RecordPaymentRetryScheduled()
	m.RecordAllocationConflict()

	snapshot := m.GetMetricsSnapshot()
	assert.Equal(t, int64(1), snapshot["payments_initiated"])
	assert.Equal(t, int64(1), snapshot["payments_completed"])
	assert.Equal(t, int64(1), snapshot["payments_failed"])
	assert.Equal(t, int64(1), snapshot["payment_retries_scheduled"])
	assert.Equal(t, int64(1), snapshot["allocation_conflicts"])
}
