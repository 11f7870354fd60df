package services

import (
	"log"
	"time"

	"lendingApp/models"

	"gorm.io/gorm"
)

// RetrySchedulerService предоставляет методы для фоновой обработки:
// автоматические повторы неуспешных платежей и проверка просрочки
type RetrySchedulerService struct {
	db             *gorm.DB
	loanService    *LoanService
	paymentService *PaymentService
	stop           chan struct{}
}

// NewRetrySchedulerService создает новый экземпляр RetrySchedulerService
func NewRetrySchedulerService(db *gorm.DB, loanService *LoanService, paymentService *PaymentService) *RetrySchedulerService {
	return &RetrySchedulerService{
		db:             db,
		loanService:    loanService,
		paymentService: paymentService,
		stop:           make(chan struct{}),
	}
}

// Start запускает планировщик фоновых задач
func (s *RetrySchedulerService) Start() {
	// Запускаем повторы неуспешных платежей каждую минуту
	retryTicker := time.NewTicker(1 * time.Minute)
	go func() {
		for {
			select {
			case <-retryTicker.C:
				if err := s.paymentService.RetryDuePayments(time.Now()); err != nil {
					log.Printf("Ошибка при повторе платежей: %v", err)
				}
			case <-s.stop:
				retryTicker.Stop()
				return
			}
		}
	}()

	// Запускаем проверку просрочки каждый час
	overdueTicker := time.NewTicker(1 * time.Hour)
	go func() {
		for {
			select {
			case <-overdueTicker.C:
				if err := s.processOverdueLoans(); err != nil {
					log.Printf("Ошибка при проверке просрочки: %v", err)
				}
			case <-s.stop:
				overdueTicker.Stop()
				return
			}
		}
	}()
}

// Stop останавливает планировщик
func (s *RetrySchedulerService) Stop() {
	close(s.stop)
}

// processOverdueLoans помечает просроченные взносы активных кредитов
// и пересчитывает их агрегаты
func (s *RetrySchedulerService) processOverdueLoans() error {
	today := time.Now()

	// Получаем кредиты с взносами, срок которых прошел
	var loanIDs []uint
	err := s.db.Model(&models.Installment{}).
		Distinct("loan_id").
		Where("status = ? AND due_date < ?", models.InstallmentStatusPending, today).
		Pluck("loan_id", &loanIDs).Error
	if err != nil {
		return err
	}

	for _, loanID := range loanIDs {
		if err := s.loanService.RefreshOverdue(loanID, today); err != nil {
			log.Printf("Ошибка при обновлении просрочки кредита %d: %v", loanID, err)
		}
	}

	return nil
}
