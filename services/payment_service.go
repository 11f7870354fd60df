package services

import (
	"errors"
	"log"
	"strings"
	"time"

	"lendingApp/config"
	"lendingApp/models"
	"lendingApp/utils"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// newRefundTransactionID генерирует идентификатор транзакции возврата
func newRefundTransactionID() string {
	return "RFD" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// paymentTransitions описывает разрешенные переходы статусов платежа.
// Статусы refunded и cancelled конечные; completed конечен для
// механизма повторов, но допускает возврат.
var paymentTransitions = map[models.PaymentStatus][]models.PaymentStatus{
	models.PaymentStatusPending:       {models.PaymentStatusProcessing, models.PaymentStatusCompleted, models.PaymentStatusFailed, models.PaymentStatusCancelled},
	models.PaymentStatusProcessing:    {models.PaymentStatusCompleted, models.PaymentStatusFailed, models.PaymentStatusCancelled},
	models.PaymentStatusCompleted:     {models.PaymentStatusRefunded, models.PaymentStatusPartialRefund},
	models.PaymentStatusFailed:        {models.PaymentStatusProcessing, models.PaymentStatusCancelled},
	models.PaymentStatusPartialRefund: {models.PaymentStatusRefunded},
}

// CanTransitionPayment проверяет, разрешен ли переход статуса платежа
func CanTransitionPayment(from, to models.PaymentStatus) bool {
	for _, allowed := range paymentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// RetryBackoff возвращает задержку перед автоматическим повтором:
// 5 * 2^(attempt-1) минут, то есть 5, 10, 20, 40 минут
func RetryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(5*(1<<(attempt-1))) * time.Minute
}

// appendPaymentHistory добавляет запись в журнал статусов платежа
func appendPaymentHistory(p *models.Payment, status models.PaymentStatus, reason, actor string, now time.Time) {
	p.StatusHistory = append(p.StatusHistory, models.PaymentStatusHistory{
		PaymentRecordID: p.ID,
		Status:          status,
		Timestamp:       now,
		Reason:          reason,
		Actor:           actor,
	})
}

// ProcessPayment переводит платеж в обработку. Чистое преобразование
// записи в памяти; сохранение выполняется отдельным шагом.
func ProcessPayment(p *models.Payment, reason, actor string, now time.Time) error {
	if !CanTransitionPayment(p.Status, models.PaymentStatusProcessing) {
		return newIllegalPaymentTransition(string(p.Status), string(models.PaymentStatusProcessing))
	}
	p.Status = models.PaymentStatusProcessing
	processedAt := now
	p.ProcessedAt = &processedAt
	if reason == "" {
		reason = "платеж передан в обработку"
	}
	appendPaymentHistory(p, p.Status, reason, actor, now)
	return nil
}

// CompletePayment завершает платеж. Повторная доставка события о
// завершении уже завершенного платежа отклоняется — средства
// распределяются по графику ровно один раз.
func CompletePayment(p *models.Payment, actor string, now time.Time) error {
	if p.Status == models.PaymentStatusCompleted || p.Allocated {
		return ErrDuplicateAllocation
	}
	if !CanTransitionPayment(p.Status, models.PaymentStatusCompleted) {
		return newIllegalPaymentTransition(string(p.Status), string(models.PaymentStatusCompleted))
	}
	p.Status = models.PaymentStatusCompleted
	completedAt := now
	p.CompletedAt = &completedAt
	p.Allocated = true
	p.AllocatedAt = &completedAt
	p.NextRetryAt = nil
	appendPaymentHistory(p, p.Status, "платеж успешно завершен", actor, now)
	return nil
}

// FailPayment помечает платеж неуспешным и планирует автоматический
// повтор с экспоненциальной задержкой. После исчерпания лимита
// повторов платеж остается в конечном статусе failed.
func FailPayment(p *models.Payment, reason, errorCode, errorMessage, actor string, now time.Time) error {
	if !CanTransitionPayment(p.Status, models.PaymentStatusFailed) {
		return newIllegalPaymentTransition(string(p.Status), string(models.PaymentStatusFailed))
	}

	p.Status = models.PaymentStatusFailed
	failedAt := now
	p.FailedAt = &failedAt

	p.RetryCount++
	p.RetryHistory = append(p.RetryHistory, models.PaymentRetryAttempt{
		PaymentRecordID: p.ID,
		AttemptNumber:   p.RetryCount,
		Timestamp:       now,
		Status:          string(models.PaymentStatusFailed),
		ErrorCode:       errorCode,
		ErrorMessage:    errorMessage,
	})

	if p.RetryCount <= p.MaxRetries {
		next := now.Add(RetryBackoff(p.RetryCount))
		p.NextRetryAt = &next
	} else {
		// Лимит повторов исчерпан, повтор не планируется
		p.NextRetryAt = nil
	}

	if reason == "" {
		reason = "платеж не прошел"
	}
	appendPaymentHistory(p, p.Status, reason, actor, now)
	return nil
}

// RefundPayment выполняет полный или частичный возврат завершенного
// платежа. Возврат записывает метаданные и не отменяет ранее
// выполненное распределение по взносам — компенсирующая корректировка
// выполняется отдельной операцией.
func RefundPayment(p *models.Payment, amount int64, reason, actor, refundTransactionID string, now time.Time) error {
	if amount <= 0 || amount > p.Amount {
		return errors.New("некорректная сумма возврата")
	}

	target := models.PaymentStatusPartialRefund
	if amount >= p.Amount {
		target = models.PaymentStatusRefunded
	}
	if !CanTransitionPayment(p.Status, target) {
		return newIllegalPaymentTransition(string(p.Status), string(target))
	}

	p.Status = target
	refundedAt := now
	p.RefundedAt = &refundedAt
	p.RefundAmount = amount
	p.RefundReason = reason
	p.RefundTransactionID = refundTransactionID
	appendPaymentHistory(p, p.Status, "возврат платежа: "+reason, actor, now)
	return nil
}

// CancelPayment отменяет платеж. Отмененный платеж сохраняется для
// аудита и выходит из пути автоматических повторов.
func CancelPayment(p *models.Payment, reason, actor string, now time.Time) error {
	if !CanTransitionPayment(p.Status, models.PaymentStatusCancelled) {
		return newIllegalPaymentTransition(string(p.Status), string(models.PaymentStatusCancelled))
	}
	p.Status = models.PaymentStatusCancelled
	p.NextRetryAt = nil
	if reason == "" {
		reason = "платеж отменен"
	}
	appendPaymentHistory(p, p.Status, reason, actor, now)
	return nil
}

// InitiatePaymentDTO представляет данные для создания платежа
type InitiatePaymentDTO struct {
	LoanID         uint   `json:"loan_id" validate:"required"`
	UserID         uint   `json:"-" validate:"required"`
	Amount         int64  `json:"amount" validate:"required,gt=0"`
	Currency       string `json:"currency" validate:"omitempty,len=3"`
	Method         string `json:"method" validate:"omitempty,oneof=bank_transfer credit_card debit_card mobile_wallet cash virtual_account qris"`
	ProcessingFee  int64  `json:"processing_fee" validate:"gte=0"`
	TransactionFee int64  `json:"transaction_fee" validate:"gte=0"`
	ServiceFee     int64  `json:"service_fee" validate:"gte=0"`
	AdminFee       int64  `json:"admin_fee" validate:"gte=0"`
}

// PaymentTransitionContext представляет контекст перехода статуса платежа
type PaymentTransitionContext struct {
	Reason       string `json:"reason"`
	Actor        string `json:"actor"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	RefundAmount int64  `json:"refund_amount"`
}

// PaymentService предоставляет методы для работы с платежами
type PaymentService struct {
	db          *gorm.DB
	validator   *validator.Validate
	loanService *LoanService
	notifier    Notifier
	receipts    *ReceiptService
	email       *EmailService
	cfg         *config.Config
}

// NewPaymentService создает новый экземпляр PaymentService
func NewPaymentService(db *gorm.DB, loanService *LoanService, notifier Notifier, receipts *ReceiptService, email *EmailService, cfg *config.Config) *PaymentService {
	return &PaymentService{
		db:          db,
		validator:   validator.New(),
		loanService: loanService,
		notifier:    notifier,
		receipts:    receipts,
		email:       email,
		cfg:         cfg,
	}
}

// Initiate создает новый платеж в статусе pending
func (s *PaymentService) Initiate(dto InitiatePaymentDTO) (*models.Payment, error) {
	if err := s.validator.Struct(dto); err != nil {
		validationErrors := err.(validator.ValidationErrors)
		var errorMessages []string
		for _, e := range validationErrors {
			switch e.Tag() {
			case "required":
				errorMessages = append(errorMessages, "поле "+e.Field()+" обязательно")
			case "gt", "gte":
				errorMessages = append(errorMessages, "поле "+e.Field()+" должно быть неотрицательным")
			default:
				errorMessages = append(errorMessages, "поле "+e.Field()+" некорректно")
			}
		}
		return nil, errors.New(strings.Join(errorMessages, "; "))
	}

	// Платеж принимается только по выданному кредиту
	var loan models.Loan
	if err := s.db.First(&loan, dto.LoanID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("кредит не найден")
		}
		return nil, errors.New("ошибка при поиске кредита")
	}
	if loan.Status != models.LoanStatusDisbursed && loan.Status != models.LoanStatusActive {
		return nil, errors.New("кредит не активен")
	}

	now := time.Now()
	payment := &models.Payment{
		LoanID:         dto.LoanID,
		UserID:         dto.UserID,
		Amount:         dto.Amount,
		Method:         "bank_transfer",
		ProcessingFee:  dto.ProcessingFee,
		TransactionFee: dto.TransactionFee,
		ServiceFee:     dto.ServiceFee,
		AdminFee:       dto.AdminFee,
		Status:         models.PaymentStatusPending,
		InitiatedAt:    now,
		MaxRetries:     s.cfg.Payment.MaxRetries,
	}
	if dto.Currency != "" {
		payment.Currency = dto.Currency
	}
	if dto.Method != "" {
		payment.Method = dto.Method
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(payment).Error; err != nil {
			return err
		}
		history := models.PaymentStatusHistory{
			PaymentRecordID: payment.ID,
			Status:          models.PaymentStatusPending,
			Timestamp:       now,
			Reason:          "платеж создан",
			Actor:           "system",
		}
		return tx.Create(&history).Error
	})
	if err != nil {
		utils.LogError("Ошибка при создании платежа: %v", err)
		return nil, errors.New("ошибка при создании платежа")
	}

	utils.GetMetrics().RecordPaymentOperation("initiate", nil)
	return payment, nil
}

// GetByPaymentID возвращает платеж по публичному идентификатору
func (s *PaymentService) GetByPaymentID(paymentID string) (*models.Payment, error) {
	var payment models.Payment
	if err := s.db.Where("payment_id = ?", paymentID).
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("payment_status_histories.timestamp ASC")
		}).
		Preload("RetryHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("payment_retry_attempts.attempt_number ASC")
		}).
		First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("платеж не найден")
		}
		return nil, errors.New("ошибка при получении платежа")
	}
	return &payment, nil
}

// Transition выполняет переход статуса платежа и сохраняет результат
func (s *PaymentService) Transition(paymentID string, target models.PaymentStatus, ctx PaymentTransitionContext) (*models.Payment, error) {
	payment, err := s.GetByPaymentID(paymentID)
	if err != nil {
		return nil, err
	}

	oldStatus := payment.Status
	now := time.Now()

	switch target {
	case models.PaymentStatusProcessing:
		err = ProcessPayment(payment, ctx.Reason, ctx.Actor, now)
	case models.PaymentStatusCompleted:
		err = s.complete(payment, ctx.Actor, now)
	case models.PaymentStatusFailed:
		err = FailPayment(payment, ctx.Reason, ctx.ErrorCode, ctx.ErrorMessage, ctx.Actor, now)
		if err == nil {
			utils.GetMetrics().RecordPaymentOperation("fail", nil)
			if payment.NextRetryAt != nil {
				utils.GetMetrics().RecordPaymentRetryScheduled()
			}
		}
	case models.PaymentStatusRefunded:
		err = RefundPayment(payment, payment.Amount, ctx.Reason, ctx.Actor, newRefundTransactionID(), now)
	case models.PaymentStatusPartialRefund:
		err = RefundPayment(payment, ctx.RefundAmount, ctx.Reason, ctx.Actor, newRefundTransactionID(), now)
	case models.PaymentStatusCancelled:
		err = CancelPayment(payment, ctx.Reason, ctx.Actor, now)
	default:
		err = newIllegalPaymentTransition(string(payment.Status), string(target))
	}

	if err != nil {
		utils.GetMetrics().RecordPaymentOperation("transition", err)
		return nil, err
	}

	// Завершение сохраняет себя самостоятельно (CAS-заявка)
	if target != models.PaymentStatusCompleted {
		if err := s.savePayment(payment); err != nil {
			return nil, err
		}
	}

	// Возврат фиксируется проводкой журнала; распределение по взносам
	// при этом не отменяется
	if target == models.PaymentStatusRefunded || target == models.PaymentStatusPartialRefund {
		journal := &models.Transaction{
			LoanID:      payment.LoanID,
			PaymentID:   payment.PaymentID,
			Amount:      -payment.RefundAmount,
			Type:        models.TransactionTypeRefund,
			Description: "Payment refund " + payment.PaymentID,
		}
		if err := s.db.Create(journal).Error; err != nil {
			utils.LogError("Ошибка при записи проводки возврата %s: %v", payment.PaymentID, err)
		}
	}

	s.emitPaymentEvent(payment, oldStatus, now)
	return payment, nil
}

// complete завершает платеж и распределяет средства по графику
// кредита. Заявка на завершение выполняется условной записью, поэтому
// конкурирующие дубликаты события получают ErrDuplicateAllocation.
func (s *PaymentService) complete(p *models.Payment, actor string, now time.Time) error {
	// Проверяем сохраненный статус перед распределением
	if err := CompletePayment(p, actor, now); err != nil {
		return err
	}

	// CAS-заявка: проходит только один обработчик события
	res := s.db.Model(&models.Payment{}).
		Where("id = ? AND allocated = ? AND status IN ?", p.ID, false,
			[]string{string(models.PaymentStatusPending), string(models.PaymentStatusProcessing)}).
		Updates(map[string]interface{}{
			"status":        p.Status,
			"completed_at":  p.CompletedAt,
			"allocated":     true,
			"allocated_at":  p.AllocatedAt,
			"next_retry_at": nil,
		})
	if res.Error != nil {
		utils.LogError("Ошибка при завершении платежа %s: %v", p.PaymentID, res.Error)
		return errors.New("ошибка при завершении платежа")
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateAllocation
	}

	if err := s.saveHistory(p); err != nil {
		return err
	}

	// Распределяем платеж по графику кредита
	result, err := s.loanService.ApplyPayment(p.LoanID, p.PaymentID, p.Amount, now)
	if err != nil {
		// Снимаем заявку, чтобы платеж можно было обработать повторно
		s.revertCompletion(p, err, now)
		return err
	}

	if result.Remainder > 0 {
		utils.LogInfo("Платеж %s: незачтенный остаток %d возвращен вызывающему коду", p.PaymentID, result.Remainder)
	}

	utils.GetMetrics().RecordPaymentOperation("complete", nil)
	s.issueReceipt(p)
	return nil
}

// revertCompletion откатывает заявку на завершение при ошибке
// распределения, чтобы не оставить кредит и платеж рассогласованными
func (s *PaymentService) revertCompletion(p *models.Payment, cause error, now time.Time) {
	utils.LogError("Ошибка при распределении платежа %s: %v", p.PaymentID, cause)
	err := s.db.Model(&models.Payment{}).
		Where("id = ?", p.ID).
		Updates(map[string]interface{}{
			"status":       models.PaymentStatusProcessing,
			"completed_at": nil,
			"allocated":    false,
			"allocated_at": nil,
		}).Error
	if err != nil {
		utils.LogError("Ошибка при откате завершения платежа %s: %v", p.PaymentID, err)
		return
	}
	p.Status = models.PaymentStatusProcessing
	p.CompletedAt = nil
	p.Allocated = false
	p.AllocatedAt = nil
	appendPaymentHistory(p, p.Status, "распределение не выполнено: "+cause.Error(), "system", now)
	_ = s.saveHistory(p)
}

// issueReceipt формирует квитанцию и отправляет уведомление заемщику
func (s *PaymentService) issueReceipt(p *models.Payment) {
	if s.receipts != nil {
		receiptNumber, err := s.receipts.IssueReceipt(p)
		if err != nil {
			log.Printf("Ошибка при формировании квитанции для платежа %s: %v", p.PaymentID, err)
		} else {
			p.ReceiptNumber = receiptNumber
			if err := s.db.Model(&models.Payment{}).Where("id = ?", p.ID).
				Update("receipt_number", receiptNumber).Error; err != nil {
				log.Printf("Ошибка при сохранении номера квитанции %s: %v", receiptNumber, err)
			}
		}
	}

	if s.email != nil {
		var user models.User
		if err := s.db.First(&user, p.UserID).Error; err == nil {
			if err := s.email.SendPaymentCompletedNotification(user.Email, p.PaymentID, p.Amount); err != nil {
				// Логируем ошибку, но не прерываем операцию
				log.Printf("Ошибка при отправке уведомления о платеже %s: %v", p.PaymentID, err)
			}
		}
	}
}

// RetryDuePayments возвращает неуспешные платежи, для которых настало
// время автоматического повтора, обратно в обработку
func (s *PaymentService) RetryDuePayments(now time.Time) error {
	var payments []models.Payment
	if err := s.db.Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?",
		models.PaymentStatusFailed, now).
		Find(&payments).Error; err != nil {
		return errors.New("ошибка при получении платежей для повтора")
	}

	for i := range payments {
		payment := &payments[i]
		if _, err := s.Transition(payment.PaymentID, models.PaymentStatusProcessing, PaymentTransitionContext{
			Reason: "автоматический повтор платежа",
			Actor:  "scheduler",
		}); err != nil {
			log.Printf("Ошибка при повторе платежа %s: %v", payment.PaymentID, err)
			continue
		}
		utils.GetMetrics().RecordPaymentOperation("retry", nil)
	}

	return nil
}

// savePayment сохраняет измененные поля платежа и новые записи журналов
func (s *PaymentService) savePayment(p *models.Payment) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Payment{}).
			Where("id = ?", p.ID).
			Updates(map[string]interface{}{
				"status":                p.Status,
				"processed_at":          p.ProcessedAt,
				"completed_at":          p.CompletedAt,
				"failed_at":             p.FailedAt,
				"refunded_at":           p.RefundedAt,
				"allocated":             p.Allocated,
				"allocated_at":          p.AllocatedAt,
				"refund_amount":         p.RefundAmount,
				"refund_reason":         p.RefundReason,
				"refund_transaction_id": p.RefundTransactionID,
				"retry_count":           p.RetryCount,
				"next_retry_at":         p.NextRetryAt,
				"updated_at":            time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}

		for i := range p.StatusHistory {
			if p.StatusHistory[i].ID == 0 {
				p.StatusHistory[i].PaymentRecordID = p.ID
				if err := tx.Create(&p.StatusHistory[i]).Error; err != nil {
					return err
				}
			}
		}
		for i := range p.RetryHistory {
			if p.RetryHistory[i].ID == 0 {
				p.RetryHistory[i].PaymentRecordID = p.ID
				if err := tx.Create(&p.RetryHistory[i]).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		utils.LogError("Ошибка при сохранении платежа %s: %v", p.PaymentID, err)
		return errors.New("ошибка при сохранении платежа")
	}
	return nil
}

// saveHistory сохраняет только новые записи журналов платежа
func (s *PaymentService) saveHistory(p *models.Payment) error {
	for i := range p.StatusHistory {
		if p.StatusHistory[i].ID == 0 {
			p.StatusHistory[i].PaymentRecordID = p.ID
			if err := s.db.Create(&p.StatusHistory[i]).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// emitPaymentEvent публикует событие смены статуса платежа
func (s *PaymentService) emitPaymentEvent(p *models.Payment, oldStatus models.PaymentStatus, at time.Time) {
	if s.notifier == nil || oldStatus == p.Status {
		return
	}
	event := PaymentStatusChangedEvent{
		PaymentID: p.PaymentID,
		LoanID:    p.LoanID,
		UserID:    p.UserID,
		OldStatus: oldStatus,
		NewStatus: p.Status,
		Timestamp: at,
	}
	if err := s.notifier.NotifyPaymentStatusChanged(event); err != nil {
		log.Printf("Ошибка при отправке уведомления о платеже %s: %v", p.PaymentID, err)
	}
}
