package models

import (
	"time"
)

// TransactionType представляет тип проводки журнала
type TransactionType string

const (
	TransactionTypeDisbursement TransactionType = "disbursement" // Выдача кредита
	TransactionTypeRepayment    TransactionType = "repayment"    // Погашение
	TransactionTypeRefund       TransactionType = "refund"       // Возврат платежа
)

// Transaction представляет проводку журнала по кредиту.
// Журнал только дополняется.
type Transaction struct {
	ID          uint            `gorm:"primaryKey;autoIncrement"`
	LoanID      uint            `gorm:"column:loan_id;not null;index"`
	AccountID   *uint           `gorm:"column:account_id;index"`
	PaymentID   string          `gorm:"column:payment_id;size:32;index"`
	Amount      int64           `gorm:"column:amount;not null"`
	Type        TransactionType `gorm:"column:type;not null;size:20"`
	Description string          `gorm:"column:description;size:255"`
	CreatedAt   time.Time       `gorm:"column:created_at;default:CURRENT_TIMESTAMP"`
}

func (Transaction) TableName() string {
	return "transactions"
}
