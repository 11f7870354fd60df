package services

import (
	"fmt"
	"time"

	"lendingApp/config"

	"gopkg.in/gomail.v2"
)

// EmailService предоставляет методы для отправки email
type EmailService struct {
	dialer *gomail.Dialer
	from   string
	config *config.Config
}

// NewEmailService создает новый экземпляр EmailService
func NewEmailService(cfg *config.Config) *EmailService {
	dialer := gomail.NewDialer(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Username,
		cfg.SMTP.Password,
	)

	return &EmailService{
		dialer: dialer,
		from:   cfg.SMTP.From,
		config: cfg,
	}
}

// SendEmail отправляет email
func (s *EmailService) SendEmail(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("ошибка отправки email: %v", err)
	}

	return nil
}

// SendDisbursementNotification отправляет уведомление о выдаче кредита
func (s *EmailService) SendDisbursementNotification(to, loanNumber string) error {
	subject := "Кредит выдан"
	body := fmt.Sprintf(`
		<h2>Ваш кредит выдан</h2>
		<p>Кредит: %s</p>
		<p>Средства перечислены на ваш счет. График погашения доступен в личном кабинете.</p>
		<p>Дата: %s</p>
	`, loanNumber, time.Now().Format("02.01.2006 15:04:05"))

	return s.SendEmail(to, subject, body)
}

// SendPaymentCompletedNotification отправляет уведомление о зачтенном платеже
func (s *EmailService) SendPaymentCompletedNotification(to, paymentID string, amount int64) error {
	subject := "Платеж зачтен"
	body := fmt.Sprintf(`
		<h2>Платеж зачтен</h2>
		<p>Платеж: %s</p>
		<p>Сумма: %d</p>
		<p>Средства распределены по графику погашения.</p>
		<p>Дата: %s</p>
	`, paymentID, amount, time.Now().Format("02.01.2006 15:04:05"))

	return s.SendEmail(to, subject, body)
}

// SendPaymentFailedNotification отправляет уведомление о неуспешном платеже
func (s *EmailService) SendPaymentFailedNotification(to, paymentID string) error {
	subject := "Платеж не прошел"
	body := fmt.Sprintf(`
		<h2>Платеж не прошел</h2>
		<p>Платеж: %s</p>
		<p>Мы автоматически повторим попытку. Если проблема сохранится, свяжитесь с нами.</p>
		<p>Дата: %s</p>
	`, paymentID, time.Now().Format("02.01.2006 15:04:05"))

	return s.SendEmail(to, subject, body)
}

// SendLoanRejectedNotification отправляет уведомление об отказе
func (s *EmailService) SendLoanRejectedNotification(to, loanNumber string) error {
	subject := "Решение по заявке на кредит"
	body := fmt.Sprintf(`
		<h2>Решение по заявке</h2>
		<p>К сожалению, по заявке %s принято отрицательное решение.</p>
		<p>Вы можете подать новую заявку позднее.</p>
	`, loanNumber)

	return s.SendEmail(to, subject, body)
}

// SendLoanPaidNotification отправляет уведомление о погашении кредита
func (s *EmailService) SendLoanPaidNotification(email, loanNumber string) error {
	// Формируем тему письма
	subject := "Поздравляем! Ваш кредит успешно погашен"

	// Формируем тело письма
	body := fmt.Sprintf(`
		<h2>Поздравляем!</h2>
		<p>Ваш кредит %s был успешно погашен.</p>
		<p>Спасибо, что выбрали наш сервис!</p>
		<p>Если у вас возникнут вопросы, пожалуйста, свяжитесь с нами.</p>
		<p>С уважением,<br>Команда сервиса</p>
	`, loanNumber)

	// Создаем сообщение
	message := gomail.NewMessage()
	message.SetHeader("From", s.from)
	message.SetHeader("To", email)
	message.SetHeader("Subject", subject)
	message.SetBody("text/html", body)

	// Отправляем письмо
	if err := s.dialer.DialAndSend(message); err != nil {
		return fmt.Errorf("ошибка при отправке уведомления о погашении кредита: %v", err)
	}

	return nil
}
