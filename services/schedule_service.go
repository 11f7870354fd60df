package services

import (
	"math"
	"time"

	"lendingApp/models"
)

// ScheduleTerms представляет условия для генерации графика погашения
type ScheduleTerms struct {
	Principal  int64                     // сумма кредита в минимальных единицах валюты
	AnnualRate float64                   // годовая ставка, процент
	Tenure     int                       // число периодов
	Cadence    models.InstallmentCadence // периодичность платежей
	StartDate  time.Time                 // дата-якорь графика; первый срок = якорь + один период
}

// GeneratedSchedule представляет сгенерированный график погашения
type GeneratedSchedule struct {
	Installments         []models.Installment
	InstallmentAmount    int64
	TotalRepaymentAmount int64
}

// periodsPerYear возвращает число периодов в году для периодичности
func periodsPerYear(cadence models.InstallmentCadence) int {
	switch cadence {
	case models.CadenceDaily:
		return 365
	case models.CadenceWeekly:
		return 52
	case models.CadenceBiweekly:
		return 26
	default:
		return 12
	}
}

// advancePeriod сдвигает дату на один период вперед
func advancePeriod(date time.Time, cadence models.InstallmentCadence) time.Time {
	switch cadence {
	case models.CadenceDaily:
		return date.AddDate(0, 0, 1)
	case models.CadenceWeekly:
		return date.AddDate(0, 0, 7)
	case models.CadenceBiweekly:
		return date.AddDate(0, 0, 14)
	default:
		return date.AddDate(0, 1, 0)
	}
}

// roundHalfUp округляет до ближайшего целого, половина — вверх
func roundHalfUp(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}

// GenerateSchedule генерирует график равных (аннуитетных) платежей.
// Функция чистая: при ошибке график не создается вовсе.
//
// Размер платежа: P * r * (1+r)^n / ((1+r)^n - 1), где r — ставка за
// период. Остаток от округления поглощается последним взносом, поэтому
// сумма основных частей всех взносов в точности равна сумме кредита.
func GenerateSchedule(terms ScheduleTerms) (*GeneratedSchedule, error) {
	if terms.Principal <= 0 || terms.AnnualRate < 0 || terms.Tenure < 1 {
		return nil, ErrInvalidTerms
	}

	cadence := terms.Cadence
	if cadence == "" {
		cadence = models.CadenceMonthly
	}

	startDate := terms.StartDate
	if startDate.IsZero() {
		startDate = time.Now()
	}

	// Ставка за период
	periodRate := terms.AnnualRate / 100 / float64(periodsPerYear(cadence))

	// Размер платежа за период
	var installmentAmount int64
	if periodRate == 0 {
		// Беспроцентный кредит: равные доли
		installmentAmount = roundHalfUp(float64(terms.Principal) / float64(terms.Tenure))
	} else {
		factor := math.Pow(1+periodRate, float64(terms.Tenure))
		installmentAmount = roundHalfUp(float64(terms.Principal) * periodRate * factor / (factor - 1))
	}

	installments := make([]models.Installment, 0, terms.Tenure)
	remainingPrincipal := terms.Principal
	dueDate := startDate
	var totalRepayment int64

	for i := 1; i <= terms.Tenure; i++ {
		dueDate = advancePeriod(dueDate, cadence)

		interestAmount := roundHalfUp(float64(remainingPrincipal) * periodRate)

		var principalAmount, totalAmount int64
		if i == terms.Tenure {
			// Последний взнос поглощает остаток от округления
			principalAmount = remainingPrincipal
			totalAmount = principalAmount + interestAmount
		} else {
			principalAmount = installmentAmount - interestAmount
			totalAmount = installmentAmount
		}

		installments = append(installments, models.Installment{
			Number:          i,
			DueDate:         dueDate,
			PrincipalAmount: principalAmount,
			InterestAmount:  interestAmount,
			TotalAmount:     totalAmount,
			Status:          models.InstallmentStatusPending,
		})

		remainingPrincipal -= principalAmount
		totalRepayment += totalAmount
	}

	return &GeneratedSchedule{
		Installments:         installments,
		InstallmentAmount:    installmentAmount,
		TotalRepaymentAmount: totalRepayment,
	}, nil
}
