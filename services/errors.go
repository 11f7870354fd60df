package services

import (
	"errors"
	"fmt"
)

// Ошибки ядра кредитного учета. Все ошибки детерминированы и
// возвращаются вызывающему коду; частично обновленное состояние
// кредита при этом не сохраняется.
var (
	// ErrInvalidTerms возвращается при некорректных условиях кредита
	ErrInvalidTerms = errors.New("некорректные условия кредита")

	// ErrImmutableTerms возвращается при попытке изменить условия
	// кредита после выдачи средств
	ErrImmutableTerms = errors.New("условия кредита нельзя изменить после выдачи")

	// ErrPrematureCompletion возвращается при попытке закрыть кредит
	// с непогашенным остатком
	ErrPrematureCompletion = errors.New("кредит нельзя закрыть с непогашенным остатком")

	// ErrAllocationConflict возвращается при конфликте конкурентной
	// записи; вызывающий код должен повторить распределение
	ErrAllocationConflict = errors.New("конфликт конкурентного распределения платежа")

	// ErrDuplicateAllocation возвращается, когда платеж уже был
	// распределен по графику погашения
	ErrDuplicateAllocation = errors.New("платеж уже распределен")
)

// IllegalTransitionError возвращается, когда запрошенный переход
// статуса не входит в разрешенный набор переходов
type IllegalTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("недопустимый переход статуса %s: %s -> %s", e.Entity, e.From, e.To)
}

// newIllegalLoanTransition создает ошибку перехода для кредита
func newIllegalLoanTransition(from, to string) error {
	return &IllegalTransitionError{Entity: "loan", From: from, To: to}
}

// newIllegalPaymentTransition создает ошибку перехода для платежа
func newIllegalPaymentTransition(from, to string) error {
	return &IllegalTransitionError{Entity: "payment", From: from, To: to}
}
