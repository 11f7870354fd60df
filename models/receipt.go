package models

import (
	"time"
)

// PaymentReceipt представляет выданную квитанцию по завершенному
// платежу. Тело хранится в XML вместе с HMAC-подписью.
type PaymentReceipt struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	ReceiptNumber string    `gorm:"uniqueIndex;size:30;not null"`
	PaymentID     string    `gorm:"size:32;not null;index"`
	LoanID        uint      `gorm:"not null;index"`
	Amount        int64     `gorm:"not null"`
	IssuedAt      time.Time `gorm:"not null"`
	Body          string    `gorm:"type:text;not null"`
	Signature     string    `gorm:"size:64;not null"`
}

// TableName возвращает имя таблицы для модели PaymentReceipt
func (PaymentReceipt) TableName() string {
	return "payment_receipts"
}
