package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentStatus представляет статус платежа
type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "pending"        // Платеж создан
	PaymentStatusProcessing    PaymentStatus = "processing"     // Платеж в обработке
	PaymentStatusCompleted     PaymentStatus = "completed"      // Платеж завершен
	PaymentStatusFailed        PaymentStatus = "failed"         // Платеж не прошел
	PaymentStatusCancelled     PaymentStatus = "cancelled"      // Платеж отменен
	PaymentStatusRefunded      PaymentStatus = "refunded"       // Платеж полностью возвращен
	PaymentStatusPartialRefund PaymentStatus = "partial_refund" // Платеж частично возвращен
)

// Payment представляет платеж по кредиту. Платежи никогда не удаляются:
// неуспешные и отмененные платежи сохраняются для аудита.
type Payment struct {
	gorm.Model
	PaymentID     string `gorm:"column:payment_id;uniqueIndex;size:32;not null"`
	TransactionID string `gorm:"column:transaction_id;uniqueIndex;size:40;not null"`

	LoanID uint `gorm:"not null;index"`
	Loan   Loan `gorm:"foreignKey:LoanID"`
	UserID uint `gorm:"not null;index"`
	User   User `gorm:"foreignKey:UserID"`

	Amount   int64  `gorm:"not null"`
	Currency string `gorm:"size:3;not null;default:'IDR'"`
	Method   string `gorm:"size:30;not null;default:'bank_transfer'"`

	// Комиссии. Итоговая комиссия равна сумме составляющих.
	ProcessingFee  int64 `gorm:"not null;default:0"`
	TransactionFee int64 `gorm:"not null;default:0"`
	ServiceFee     int64 `gorm:"not null;default:0"`
	AdminFee       int64 `gorm:"not null;default:0"`
	TotalFees      int64 `gorm:"not null;default:0"`

	Status        PaymentStatus          `gorm:"type:varchar(20);not null;default:'pending';index"`
	StatusHistory []PaymentStatusHistory `gorm:"foreignKey:PaymentRecordID;constraint:OnDelete:CASCADE"`

	InitiatedAt time.Time `gorm:"not null"`
	ProcessedAt *time.Time
	CompletedAt *time.Time
	FailedAt    *time.Time
	RefundedAt  *time.Time

	// Защита от повторного распределения одного платежа
	Allocated   bool `gorm:"not null;default:false"`
	AllocatedAt *time.Time

	// Данные возврата. Возврат не отменяет ранее выполненное
	// распределение по взносам.
	RefundAmount        int64  `gorm:"not null;default:0"`
	RefundReason        string `gorm:"size:255"`
	RefundTransactionID string `gorm:"size:40"`

	ReceiptNumber string `gorm:"size:30"`

	// Данные автоматических повторов для неуспешных платежей
	RetryCount   int `gorm:"not null;default:0"`
	MaxRetries   int `gorm:"not null;default:3"`
	NextRetryAt  *time.Time
	RetryHistory []PaymentRetryAttempt `gorm:"foreignKey:PaymentRecordID;constraint:OnDelete:CASCADE"`
}

// TableName возвращает имя таблицы для модели Payment
func (Payment) TableName() string {
	return "payments"
}

// BeforeCreate хук для генерации идентификаторов платежа
func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.PaymentID == "" {
		ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
		p.PaymentID = strings.ToUpper("PAY" + ts + RandomBase36(6))
	}
	if p.TransactionID == "" {
		p.TransactionID = "TXN" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}
	if p.InitiatedAt.IsZero() {
		p.InitiatedAt = time.Now()
	}
	p.TotalFees = p.ProcessingFee + p.TransactionFee + p.ServiceFee + p.AdminFee
	return nil
}

// IsTerminal проверяет, является ли статус платежа конечным для
// механизма автоматических повторов
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case PaymentStatusRefunded, PaymentStatusCancelled, PaymentStatusPartialRefund:
		return true
	case PaymentStatusCompleted:
		return true
	case PaymentStatusFailed:
		return p.NextRetryAt == nil
	}
	return false
}

// PaymentStatusHistory представляет запись журнала смены статусов платежа.
// Журнал только дополняется, записи не изменяются и не удаляются.
type PaymentStatusHistory struct {
	ID              uint          `gorm:"primaryKey;autoIncrement"`
	PaymentRecordID uint          `gorm:"not null;index"`
	Status          PaymentStatus `gorm:"type:varchar(20);not null"`
	Timestamp       time.Time     `gorm:"not null"`
	Reason          string        `gorm:"size:255"`
	Actor           string        `gorm:"size:100"`
}

// TableName возвращает имя таблицы для модели PaymentStatusHistory
func (PaymentStatusHistory) TableName() string {
	return "payment_status_histories"
}

// PaymentRetryAttempt представляет запись журнала попыток платежа
type PaymentRetryAttempt struct {
	ID              uint      `gorm:"primaryKey;autoIncrement"`
	PaymentRecordID uint      `gorm:"not null;index"`
	AttemptNumber   int       `gorm:"not null"`
	Timestamp       time.Time `gorm:"not null"`
	Status          string    `gorm:"size:20"`
	ErrorCode       string    `gorm:"size:50"`
	ErrorMessage    string    `gorm:"size:255"`
}

// TableName возвращает имя таблицы для модели PaymentRetryAttempt
func (PaymentRetryAttempt) TableName() string {
	return "payment_retry_attempts"
}
