package services

import (
	"errors"
	"sort"
	"time"

	"lendingApp/models"
)

// InstallmentAllocation представляет сумму, зачтенную в один взнос
type InstallmentAllocation struct {
	InstallmentNumber int   `json:"installment_number"`
	Applied           int64 `json:"applied"`
}

// AllocationResult представляет результат распределения платежа по
// графику погашения
type AllocationResult struct {
	PaymentID   string                  `json:"payment_id"`
	Amount      int64                   `json:"amount"`
	Applied     int64                   `json:"applied"`
	Remainder   int64                   `json:"remainder"` // незачтенный остаток возвращается вызывающему коду
	Allocations []InstallmentAllocation `json:"allocations"`
	PaidDate    time.Time               `json:"paid_date"`
}

// AllocatePayment распределяет сумму платежа по взносам каскадом:
// сначала самый ранний непогашенный взнос, далее по возрастанию срока
// (при равных сроках — по номеру взноса). Функция чистая: исходный
// график не изменяется, возвращается обновленная копия.
//
// Распределение монотонно: зачтенная сумма взноса не уменьшается и не
// превышает его полной суммы, статус paid не откатывается.
func AllocatePayment(schedule []models.Installment, amount int64, paymentDate time.Time) ([]models.Installment, *AllocationResult, error) {
	if amount <= 0 {
		return nil, nil, errors.New("сумма платежа должна быть положительной")
	}

	// Копируем график, чтобы не трогать исходный
	updated := make([]models.Installment, len(schedule))
	copy(updated, schedule)

	// Порядок обхода: по сроку, затем по номеру взноса
	order := make([]int, len(updated))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := updated[order[a]], updated[order[b]]
		if !ia.DueDate.Equal(ib.DueDate) {
			return ia.DueDate.Before(ib.DueDate)
		}
		return ia.Number < ib.Number
	})

	result := &AllocationResult{
		Amount:   amount,
		PaidDate: paymentDate,
	}

	remaining := amount
	for _, idx := range order {
		if remaining <= 0 {
			break
		}

		inst := &updated[idx]
		if inst.Status == models.InstallmentStatusPaid {
			continue
		}

		due := inst.TotalAmount - inst.PaidAmount
		if due <= 0 {
			continue
		}

		applied := due
		if remaining < due {
			applied = remaining
		}

		inst.PaidAmount += applied
		if inst.PaidAmount >= inst.TotalAmount {
			inst.Status = models.InstallmentStatusPaid
			paid := paymentDate
			inst.PaidDate = &paid
		} else {
			inst.Status = models.InstallmentStatusPartiallyPaid
		}

		remaining -= applied
		result.Applied += applied
		result.Allocations = append(result.Allocations, InstallmentAllocation{
			InstallmentNumber: inst.Number,
			Applied:           applied,
		})
	}

	// Переплата не превращается в кредитный остаток — остаток
	// возвращается вызывающему коду
	result.Remainder = remaining

	return updated, result, nil
}

// RecomputeSummary пересчитывает агрегаты кредита по текущему графику.
// Вызывается после каждого распределения; агрегаты нигде не
// редактируются вручную — единственный источник истины это график.
func RecomputeSummary(approvedAmount, totalRepaymentAmount int64, schedule []models.Installment, today time.Time) models.PaymentSummary {
	var summary models.PaymentSummary

	var earliestOverdue *time.Time
	var nextPending *models.Installment

	for i := range schedule {
		inst := &schedule[i]

		if inst.Status == models.InstallmentStatusPaid {
			summary.TotalPaid += inst.PaidAmount
			summary.PrincipalPaid += inst.PrincipalAmount
			summary.InterestPaid += inst.InterestAmount
		}

		// Просрочка — производное свойство: срок строго раньше
		// сегодняшней даты, взнос не погашен полностью
		if inst.IsOverdueAt(today) {
			summary.OverdueAmount += inst.TotalAmount - inst.PaidAmount
			if earliestOverdue == nil || inst.DueDate.Before(*earliestOverdue) {
				due := inst.DueDate
				earliestOverdue = &due
			}
		}

		if inst.Status == models.InstallmentStatusPending {
			if nextPending == nil || inst.DueDate.Before(nextPending.DueDate) {
				nextPending = inst
			}
		}
	}

	summary.RemainingPrincipal = approvedAmount - summary.PrincipalPaid
	summary.TotalRemaining = totalRepaymentAmount - summary.TotalPaid

	if earliestOverdue != nil {
		summary.DaysOverdue = int(today.Sub(*earliestOverdue).Hours() / 24)
	}

	if nextPending != nil {
		due := nextPending.DueDate
		summary.NextPaymentDue = &due
		summary.NextPaymentAmount = nextPending.TotalAmount
	}

	return summary
}

// MarkOverdueInstallments проставляет метку overdue взносам, срок
// которых прошел. Метка хранится для удобства выборок; производное
// представление просрочки считается через IsOverdueAt и всегда
// согласуется с меткой.
func MarkOverdueInstallments(schedule []models.Installment, today time.Time) []models.Installment {
	updated := make([]models.Installment, len(schedule))
	copy(updated, schedule)

	for i := range updated {
		if updated[i].Status == models.InstallmentStatusPending && updated[i].DueDate.Before(today) {
			updated[i].Status = models.InstallmentStatusOverdue
		}
	}

	return updated
}
