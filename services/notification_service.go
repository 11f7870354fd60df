package services

import (
	"log"
	"time"

	"lendingApp/models"
)

// LoanStatusChangedEvent представляет событие смены статуса кредита
type LoanStatusChangedEvent struct {
	LoanID     uint              `json:"loan_id"`
	LoanNumber string            `json:"loan_number"`
	BorrowerID uint              `json:"borrower_id"`
	OldStatus  models.LoanStatus `json:"old_status"`
	NewStatus  models.LoanStatus `json:"new_status"`
	Timestamp  time.Time         `json:"timestamp"`
}

// PaymentStatusChangedEvent представляет событие смены статуса платежа
type PaymentStatusChangedEvent struct {
	PaymentID string               `json:"payment_id"`
	LoanID    uint                 `json:"loan_id"`
	UserID    uint                 `json:"user_id"`
	OldStatus models.PaymentStatus `json:"old_status"`
	NewStatus models.PaymentStatus `json:"new_status"`
	Timestamp time.Time            `json:"timestamp"`
}

// Notifier публикует события смены статусов. Ошибка публикации не
// прерывает операцию — вызывающий код только логирует ее.
type Notifier interface {
	NotifyLoanStatusChanged(event LoanStatusChangedEvent) error
	NotifyPaymentStatusChanged(event PaymentStatusChangedEvent) error
}

// LogNotifier пишет события в журнал приложения
type LogNotifier struct{}

// NewLogNotifier создает новый экземпляр LogNotifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// NotifyLoanStatusChanged логирует событие смены статуса кредита
func (n *LogNotifier) NotifyLoanStatusChanged(event LoanStatusChangedEvent) error {
	log.Printf("Кредит %s: статус %s -> %s", event.LoanNumber, event.OldStatus, event.NewStatus)
	return nil
}

// NotifyPaymentStatusChanged логирует событие смены статуса платежа
func (n *LogNotifier) NotifyPaymentStatusChanged(event PaymentStatusChangedEvent) error {
	log.Printf("Платеж %s: статус %s -> %s", event.PaymentID, event.OldStatus, event.NewStatus)
	return nil
}

// EmailNotifier отправляет заемщику письма о ключевых событиях
// кредита. Промежуточные статусы рассмотрения заявки письмами не
// сопровождаются.
type EmailNotifier struct {
	email *EmailService
	users *UserService
}

// NewEmailNotifier создает новый экземпляр EmailNotifier
func NewEmailNotifier(email *EmailService, users *UserService) *EmailNotifier {
	return &EmailNotifier{email: email, users: users}
}

// NotifyLoanStatusChanged отправляет письмо о смене статуса кредита
func (n *EmailNotifier) NotifyLoanStatusChanged(event LoanStatusChangedEvent) error {
	user, err := n.users.GetByID(event.BorrowerID)
	if err != nil {
		return err
	}

	switch event.NewStatus {
	case models.LoanStatusDisbursed:
		return n.email.SendDisbursementNotification(user.Email, event.LoanNumber)
	case models.LoanStatusCompleted:
		return n.email.SendLoanPaidNotification(user.Email, event.LoanNumber)
	case models.LoanStatusRejected:
		return n.email.SendLoanRejectedNotification(user.Email, event.LoanNumber)
	}
	return nil
}

// NotifyPaymentStatusChanged отправляет письмо о неуспешном платеже.
// Уведомление о завершенном платеже отправляется вместе с квитанцией.
func (n *EmailNotifier) NotifyPaymentStatusChanged(event PaymentStatusChangedEvent) error {
	if event.NewStatus != models.PaymentStatusFailed {
		return nil
	}
	user, err := n.users.GetByID(event.UserID)
	if err != nil {
		return err
	}
	return n.email.SendPaymentFailedNotification(user.Email, event.PaymentID)
}
