package services

import (
	"testing"
	"time"

	"lendingApp/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateScheduleAnnuity(t *testing.T) {
	// Кредит 5 000 000 под 24% годовых на 12 месяцев
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	generated, err := GenerateSchedule(ScheduleTerms{
		Principal:  5000000,
		AnnualRate: 24,
		Tenure:     12,
		Cadence:    models.CadenceMonthly,
		StartDate:  start,
	})
	require.NoError(t, err)
	require.Len(t, generated.Installments, 12)

	// Аннуитетный платеж: 5 000 000 * 0.02 * 1.02^12 / (1.02^12 - 1)
	assert.Equal(t, int64(472798), generated.InstallmentAmount)

	// Последний взнос поглощает остаток от округления
	last := generated.Installments[11]
	assert.Equal(t, int64(463527), last.PrincipalAmount)
	assert.Equal(t, int64(9271), last.InterestAmount)
	assert.Equal(t, int64(472798), last.TotalAmount)

	// Первый взнос: проценты на полный остаток
	first := generated.Installments[0]
	assert.Equal(t, int64(100000), first.InterestAmount)
	assert.Equal(t, int64(372798), first.PrincipalAmount)

	assert.Equal(t, int64(5673576), generated.TotalRepaymentAmount)
}

func TestGenerateSchedulePrincipalSumExact(t *testing.T) {
	// Сумма основных частей всех взносов в точности равна сумме кредита
	cases := []struct {
		principal int64
		rate      float64
		tenure    int
	}{
		{5000000, 24, 12},
		{1000000, 12, 6},
		{777777, 36.5, 24},
		{100, 24, 3},
	}

	for _, tc := range cases {
		generated, err := GenerateSchedule(ScheduleTerms{
			Principal:  tc.principal,
			AnnualRate: tc.rate,
			Tenure:     tc.tenure,
			Cadence:    models.CadenceMonthly,
			StartDate:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)

		var principalSum, totalSum int64
		for _, inst := range generated.Installments {
			principalSum += inst.PrincipalAmount
			totalSum += inst.TotalAmount
			assert.Equal(t, inst.PrincipalAmount+inst.InterestAmount, inst.TotalAmount)
		}
		assert.Equal(t, tc.principal, principalSum)
		assert.Equal(t, generated.TotalRepaymentAmount, totalSum)
	}
}

func TestGenerateScheduleZeroRate(t *testing.T) {
	// Беспроцентный кредит: равные доли, без процентов
	generated, err := GenerateSchedule(ScheduleTerms{
		Principal:  1000000,
		AnnualRate: 0,
		Tenure:     3,
		Cadence:    models.CadenceMonthly,
		StartDate:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(333333), generated.InstallmentAmount)
	assert.Equal(t, int64(333333), generated.Installments[0].PrincipalAmount)
	assert.Equal(t, int64(333333), generated.Installments[1].PrincipalAmount)
	// Последний взнос поглощает остаток
	assert.Equal(t, int64(333334), generated.Installments[2].PrincipalAmount)

	for _, inst := range generated.Installments {
		assert.Equal(t, int64(0), inst.InterestAmount)
	}
	assert.Equal(t, int64(1000000), generated.TotalRepaymentAmount)
}

func TestGenerateScheduleDueDates(t *testing.T) {
	start := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	generated, err := GenerateSchedule(ScheduleTerms{
		Principal:  1200000,
		AnnualRate: 12,
		Tenure:     3,
		Cadence:    models.CadenceMonthly,
		StartDate:  start,
	})
	require.NoError(t, err)

	// Первый срок — один период после даты-якоря
	assert.Equal(t, start.AddDate(0, 1, 0), generated.Installments[0].DueDate)

	// Номера взносов начинаются с единицы и идут подряд
	for i, inst := range generated.Installments {
		assert.Equal(t, i+1, inst.Number)
		assert.Equal(t, models.InstallmentStatusPending, inst.Status)
		assert.Equal(t, int64(0), inst.PaidAmount)
	}
}

func TestGenerateScheduleWeeklyCadence(t *testing.T) {
	start := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	generated, err := GenerateSchedule(ScheduleTerms{
		Principal:  500000,
		AnnualRate: 26,
		Tenure:     4,
		Cadence:    models.CadenceWeekly,
		StartDate:  start,
	})
	require.NoError(t, err)

	// Недельная ставка: 26 / 100 / 52 = 0.5% за период
	assert.Equal(t, start.AddDate(0, 0, 7), generated.Installments[0].DueDate)
	assert.Equal(t, start.AddDate(0, 0, 28), generated.Installments[3].DueDate)

	var principalSum int64
	for _, inst := range generated.Installments {
		principalSum += inst.PrincipalAmount
	}
	assert.Equal(t, int64(500000), principalSum)
}

func TestGenerateScheduleInvalidTerms(t *testing.T) {
	cases := []ScheduleTerms{
		{Principal: 0, AnnualRate: 24, Tenure: 12},
		{Principal: -100, AnnualRate: 24, Tenure: 12},
		{Principal: 5000000, AnnualRate: -1, Tenure: 12},
		{Principal: 5000000, AnnualRate: 24, Tenure: 0},
	}

	for _, tc := range cases {
		generated, err := GenerateSchedule(tc)
		assert.ErrorIs(t, err, ErrInvalidTerms)
		assert.Nil(t, generated)
	}
}
