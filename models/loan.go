package models

import (
	"math/rand"
	"strings"
	"time"

	"gorm.io/gorm"
)

// LoanStatus представляет статус кредита
type LoanStatus string

const (
	LoanStatusDraft                LoanStatus = "draft"
	LoanStatusSubmitted            LoanStatus = "submitted"
	LoanStatusUnderReview          LoanStatus = "under_review"
	LoanStatusDocumentVerification LoanStatus = "document_verification"
	LoanStatusCreditAssessment     LoanStatus = "credit_assessment"
	LoanStatusApproved             LoanStatus = "approved"
	LoanStatusRejected             LoanStatus = "rejected"
	LoanStatusDisbursed            LoanStatus = "disbursed"
	LoanStatusActive               LoanStatus = "active"
	LoanStatusCompleted            LoanStatus = "completed"
	LoanStatusDefaulted            LoanStatus = "defaulted"
	LoanStatusWrittenOff           LoanStatus = "written_off"
	LoanStatusCancelled            LoanStatus = "cancelled"
)

// LoanSubstatus представляет вспомогательный статус кредита.
// Не является источником истины, используется только как подсказка.
type LoanSubstatus string

const (
	LoanSubstatusPendingDocuments    LoanSubstatus = "pending_documents"
	LoanSubstatusPendingVerification LoanSubstatus = "pending_verification"
	LoanSubstatusPendingApproval     LoanSubstatus = "pending_approval"
	LoanSubstatusPendingDisbursement LoanSubstatus = "pending_disbursement"
	LoanSubstatusCurrent             LoanSubstatus = "current"
	LoanSubstatusOverdue             LoanSubstatus = "overdue"
	LoanSubstatusRestructured        LoanSubstatus = "restructured"
)

// InstallmentCadence представляет периодичность платежей
type InstallmentCadence string

const (
	CadenceDaily    InstallmentCadence = "daily"
	CadenceWeekly   InstallmentCadence = "weekly"
	CadenceBiweekly InstallmentCadence = "biweekly"
	CadenceMonthly  InstallmentCadence = "monthly"
)

// InstallmentStatus представляет статус взноса графика погашения
type InstallmentStatus string

const (
	InstallmentStatusPending       InstallmentStatus = "pending"
	InstallmentStatusPartiallyPaid InstallmentStatus = "partially_paid"
	InstallmentStatusPaid          InstallmentStatus = "paid"
	InstallmentStatusOverdue       InstallmentStatus = "overdue"
)

// Loan представляет кредит. Все денежные суммы хранятся в минимальных
// единицах валюты (целые числа, без дробной части).
type Loan struct {
	gorm.Model
	LoanNumber string `gorm:"uniqueIndex;size:20;not null"`
	BorrowerID uint   `gorm:"not null;index"`
	Borrower   User   `gorm:"foreignKey:BorrowerID"`

	// Условия кредита
	RequestedAmount      int64              `gorm:"not null"`
	ApprovedAmount       int64              `gorm:"not null;default:0"`
	DisbursedAmount      int64              `gorm:"not null;default:0"`
	Currency             string             `gorm:"size:3;not null;default:'IDR'"`
	Purpose              string             `gorm:"size:50"`
	InterestRate         float64            `gorm:"not null;default:0"` // годовая ставка, процент
	Tenure               int                `gorm:"not null;default:0"` // число периодов
	Cadence              InstallmentCadence `gorm:"type:varchar(10);not null;default:'monthly'"`
	InstallmentAmount    int64              `gorm:"not null;default:0"`
	TotalRepaymentAmount int64              `gorm:"not null;default:0"`

	Status    LoanStatus    `gorm:"type:varchar(30);not null;default:'draft';index"`
	Substatus LoanSubstatus `gorm:"type:varchar(30)"`

	// Ключевые даты жизненного цикла
	ApplicationDate      time.Time  `gorm:"not null"`
	ApprovalDate         *time.Time
	RejectionDate        *time.Time
	RejectionReason      string     `gorm:"size:255"`
	DisbursementDate     *time.Time
	FirstInstallmentDate *time.Time
	LastInstallmentDate  *time.Time
	CompletionDate       *time.Time
	DefaultDate          *time.Time
	NextDueDate          *time.Time

	// Счет для выдачи средств
	DisbursementAccountID *uint
	DisbursementAccount   *BankAccount `gorm:"foreignKey:DisbursementAccountID"`

	// График погашения, упорядоченный по номеру взноса
	Schedule []Installment `gorm:"foreignKey:LoanID;constraint:OnDelete:CASCADE"`

	// Агрегаты по платежам. Пересчитываются только агрегатором,
	// вручную не редактируются.
	Summary PaymentSummary `gorm:"embedded;embeddedPrefix:summary_"`

	// Версия записи для оптимистической блокировки
	Version int64 `gorm:"not null;default:0"`
}

// TableName возвращает имя таблицы для модели Loan
func (Loan) TableName() string {
	return "loans"
}

// BeforeCreate хук для генерации номера кредита
func (l *Loan) BeforeCreate(tx *gorm.DB) error {
	if l.LoanNumber == "" {
		now := time.Now()
		l.LoanNumber = "MK" + now.Format("200601") + RandomBase36(6)
	}
	if l.ApplicationDate.IsZero() {
		l.ApplicationDate = time.Now()
	}
	return nil
}

// Installment представляет один взнос графика погашения.
// Взнос существует только в составе кредита.
type Installment struct {
	ID     uint `gorm:"primaryKey;autoIncrement"`
	LoanID uint `gorm:"not null;index"`

	Number          int       `gorm:"not null"` // номер взноса, с единицы
	DueDate         time.Time `gorm:"not null"`
	PrincipalAmount int64     `gorm:"not null"`
	InterestAmount  int64     `gorm:"not null"`
	TotalAmount     int64     `gorm:"not null"`

	PaidAmount int64             `gorm:"not null;default:0"`
	Status     InstallmentStatus `gorm:"type:varchar(20);not null;default:'pending'"`
	PaidDate   *time.Time
}

// TableName возвращает имя таблицы для модели Installment
func (Installment) TableName() string {
	return "installments"
}

// Outstanding возвращает непогашенный остаток взноса
func (i *Installment) Outstanding() int64 {
	return i.TotalAmount - i.PaidAmount
}

// IsOverdueAt проверяет, просрочен ли взнос на указанную дату.
// Просрочка — производное свойство: срок прошел, а взнос не погашен
// полностью, независимо от сохраненной метки статуса.
func (i *Installment) IsOverdueAt(today time.Time) bool {
	return i.Status != InstallmentStatusPaid && i.DueDate.Before(today)
}

// PaymentSummary представляет агрегаты кредита по платежам
type PaymentSummary struct {
	TotalPaid          int64 `gorm:"not null;default:0"`
	PrincipalPaid      int64 `gorm:"not null;default:0"`
	InterestPaid       int64 `gorm:"not null;default:0"`
	RemainingPrincipal int64 `gorm:"not null;default:0"`
	TotalRemaining     int64 `gorm:"not null;default:0"`
	OverdueAmount      int64 `gorm:"not null;default:0"`
	DaysOverdue        int   `gorm:"not null;default:0"`
	NextPaymentDue     *time.Time
	NextPaymentAmount  int64 `gorm:"not null;default:0"`
}

const base36Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandomBase36 генерирует случайную строку в кодировке base36
func RandomBase36(length int) string {
	var b strings.Builder
	for i := 0; i < length; i++ {
		b.WriteByte(base36Alphabet[rand.Intn(len(base36Alphabet))])
	}
	return b.String()
}
