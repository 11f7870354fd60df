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
	"gorm.io/gorm"
)

// loanTransitions описывает разрешенные переходы статусов кредита
var loanTransitions = map[models.LoanStatus][]models.LoanStatus{
	models.LoanStatusDraft:                {models.LoanStatusSubmitted, models.LoanStatusApproved, models.LoanStatusRejected, models.LoanStatusCancelled},
	models.LoanStatusSubmitted:            {models.LoanStatusUnderReview, models.LoanStatusApproved, models.LoanStatusRejected, models.LoanStatusCancelled},
	models.LoanStatusUnderReview:          {models.LoanStatusDocumentVerification, models.LoanStatusCreditAssessment, models.LoanStatusApproved, models.LoanStatusRejected, models.LoanStatusCancelled},
	models.LoanStatusDocumentVerification: {models.LoanStatusCreditAssessment, models.LoanStatusApproved, models.LoanStatusRejected, models.LoanStatusCancelled},
	models.LoanStatusCreditAssessment:     {models.LoanStatusApproved, models.LoanStatusRejected, models.LoanStatusCancelled},
	models.LoanStatusApproved:             {models.LoanStatusDisbursed, models.LoanStatusRejected, models.LoanStatusCancelled},
	models.LoanStatusDisbursed:            {models.LoanStatusActive},
	models.LoanStatusActive:               {models.LoanStatusCompleted, models.LoanStatusDefaulted},
	models.LoanStatusDefaulted:            {models.LoanStatusWrittenOff},
}

// CanTransitionLoan проверяет, разрешен ли переход статуса кредита
func CanTransitionLoan(from, to models.LoanStatus) bool {
	for _, allowed := range loanTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TermsLocked проверяет, зафиксированы ли условия кредита. После выдачи
// средств поля условий (сумма, ставка, срок) становятся неизменяемыми,
// а график не перегенерируется — его изменяет только распределение.
func TermsLocked(status models.LoanStatus) bool {
	switch status {
	case models.LoanStatusDisbursed, models.LoanStatusActive, models.LoanStatusCompleted,
		models.LoanStatusDefaulted, models.LoanStatusWrittenOff:
		return true
	}
	return false
}

// CreateLoanDTO представляет данные для создания заявки на кредит
type CreateLoanDTO struct {
	UserID          uint   `json:"-" validate:"required"`
	RequestedAmount int64  `json:"requested_amount" validate:"required,gt=0"`
	Purpose         string `json:"purpose" validate:"omitempty,max=50"`
	Currency        string `json:"currency" validate:"omitempty,len=3"`
	Cadence         string `json:"cadence" validate:"omitempty,oneof=daily weekly biweekly monthly"`
	AccountID       *uint  `json:"account_id"`
}

// ApproveLoanDTO представляет условия одобрения кредита
type ApproveLoanDTO struct {
	ApprovedAmount int64   `json:"approved_amount" validate:"required,gt=0"`
	InterestRate   float64 `json:"interest_rate" validate:"gte=0,lte=100"`
	Tenure         int     `json:"tenure" validate:"required,gte=1,lte=60"`
}

// DisburseLoanDTO представляет данные о выдаче средств
type DisburseLoanDTO struct {
	Amount int64     `json:"amount" validate:"required,gt=0"`
	Date   time.Time `json:"date"`
}

// UpdateTermsDTO представляет изменение условий до выдачи
type UpdateTermsDTO struct {
	ApprovedAmount *int64   `json:"approved_amount" validate:"omitempty,gt=0"`
	InterestRate   *float64 `json:"interest_rate" validate:"omitempty,gte=0,lte=100"`
	Tenure         *int     `json:"tenure" validate:"omitempty,gte=1,lte=60"`
}

// LoanTransitionContext представляет контекст перехода статуса кредита
type LoanTransitionContext struct {
	Reason   string           `json:"reason"`
	Actor    string           `json:"actor"`
	Approve  *ApproveLoanDTO  `json:"approve,omitempty"`
	Disburse *DisburseLoanDTO `json:"disburse,omitempty"`
}

// allocationStore абстрагирует чтение кредита и условную запись
// результата распределения. Запись проходит только при неизменной
// версии записи, конфликт возвращается как ErrAllocationConflict.
type allocationStore interface {
	loadLoan(id uint) (*models.Loan, error)
	writeAllocation(loan *models.Loan, schedule []models.Installment, summary models.PaymentSummary, paymentID string, result *AllocationResult) error
}

// LoanService предоставляет методы для работы с кредитами
type LoanService struct {
	db        *gorm.DB
	validator *validator.Validate
	notifier  Notifier
	cfg       *config.Config
	store     allocationStore
}

// NewLoanService создает новый экземпляр LoanService
func NewLoanService(db *gorm.DB, notifier Notifier, cfg *config.Config) *LoanService {
	return &LoanService{
		db:        db,
		validator: validator.New(),
		notifier:  notifier,
		cfg:       cfg,
		store:     &gormLoanStore{db: db},
	}
}

// validateDTO валидирует DTO и собирает сообщения об ошибках
func (s *LoanService) validateDTO(dto interface{}) error {
	if err := s.validator.Struct(dto); err != nil {
		validationErrors := err.(validator.ValidationErrors)
		var errorMessages []string
		for _, e := range validationErrors {
			switch e.Tag() {
			case "required":
				errorMessages = append(errorMessages, "поле "+e.Field()+" обязательно")
			case "gt":
				errorMessages = append(errorMessages, "поле "+e.Field()+" должно быть больше 0")
			case "gte", "lte":
				errorMessages = append(errorMessages, "поле "+e.Field()+" вне допустимого диапазона")
			default:
				errorMessages = append(errorMessages, "поле "+e.Field()+" некорректно")
			}
		}
		return errors.New(strings.Join(errorMessages, "; "))
	}
	return nil
}

// Create создает новую заявку на кредит в статусе draft
func (s *LoanService) Create(dto CreateLoanDTO) (*models.Loan, error) {
	if err := s.validateDTO(dto); err != nil {
		return nil, err
	}

	loan := &models.Loan{
		BorrowerID:      dto.UserID,
		RequestedAmount: dto.RequestedAmount,
		Purpose:         dto.Purpose,
		Status:          models.LoanStatusDraft,
		Substatus:       models.LoanSubstatusPendingDocuments,
		ApplicationDate: time.Now(),
	}
	if dto.Currency != "" {
		loan.Currency = dto.Currency
	}
	if dto.Cadence != "" {
		loan.Cadence = models.InstallmentCadence(dto.Cadence)
	} else {
		loan.Cadence = models.CadenceMonthly
	}
	loan.DisbursementAccountID = dto.AccountID

	if err := s.db.Create(loan).Error; err != nil {
		utils.LogError("Ошибка при создании заявки на кредит: %v", err)
		return nil, errors.New("ошибка при создании заявки на кредит")
	}

	utils.GetMetrics().RecordLoanOperation("create", nil)
	return loan, nil
}

// GetByID возвращает кредит с графиком погашения
func (s *LoanService) GetByID(id uint) (*models.Loan, error) {
	var loan models.Loan
	if err := s.db.Preload("Borrower").
		Preload("Schedule", func(db *gorm.DB) *gorm.DB {
			return db.Order("installments.number ASC")
		}).
		First(&loan, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("кредит не найден")
		}
		return nil, errors.New("ошибка при получении кредита")
	}
	return &loan, nil
}

// GetByUserID возвращает все кредиты заемщика
func (s *LoanService) GetByUserID(userID uint) ([]models.Loan, error) {
	var loans []models.Loan
	if err := s.db.Where("borrower_id = ?", userID).
		Preload("Schedule", func(db *gorm.DB) *gorm.DB {
			return db.Order("installments.number ASC")
		}).
		Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}

// applyLoanTransition применяет переход статуса к записи кредита в
// памяти. Чистое преобразование старого состояния в новое; сохранение
// выполняется отдельным шагом.
func (s *LoanService) applyLoanTransition(loan *models.Loan, target models.LoanStatus, ctx LoanTransitionContext, now time.Time) error {
	if !CanTransitionLoan(loan.Status, target) {
		return newIllegalLoanTransition(string(loan.Status), string(target))
	}

	switch target {
	case models.LoanStatusApproved:
		if ctx.Approve == nil {
			return errors.New("для одобрения требуются условия кредита")
		}
		if err := s.validateDTO(*ctx.Approve); err != nil {
			return err
		}
		loan.ApprovedAmount = ctx.Approve.ApprovedAmount
		loan.InterestRate = ctx.Approve.InterestRate
		loan.Tenure = ctx.Approve.Tenure
		approvedAt := now
		loan.ApprovalDate = &approvedAt
		loan.Substatus = models.LoanSubstatusPendingDisbursement

	case models.LoanStatusDisbursed:
		if ctx.Disburse == nil {
			return errors.New("для выдачи требуются сумма и дата")
		}
		if err := s.validateDTO(*ctx.Disburse); err != nil {
			return err
		}
		if err := s.disburse(loan, *ctx.Disburse, now); err != nil {
			return err
		}

	case models.LoanStatusActive:
		// Административный переход: выдача подтверждена,
		// график не затрагивается
		loan.Substatus = models.LoanSubstatusCurrent

	case models.LoanStatusCompleted:
		if loan.Summary.TotalRemaining > 0 {
			return ErrPrematureCompletion
		}
		completedAt := now
		loan.CompletionDate = &completedAt
		loan.NextDueDate = nil
		loan.Substatus = ""

	case models.LoanStatusDefaulted:
		if loan.Summary.DaysOverdue <= s.cfg.Loan.DaysOverdueForDefault {
			return errors.New("порог просрочки для дефолта не достигнут")
		}
		defaultedAt := now
		loan.DefaultDate = &defaultedAt

	case models.LoanStatusRejected:
		rejectedAt := now
		loan.RejectionDate = &rejectedAt
		loan.RejectionReason = ctx.Reason

	case models.LoanStatusCancelled, models.LoanStatusSubmitted, models.LoanStatusUnderReview,
		models.LoanStatusDocumentVerification, models.LoanStatusCreditAssessment,
		models.LoanStatusWrittenOff:
		// Переходы без побочных эффектов для графика
	}

	loan.Status = target
	return nil
}

// disburse выполняет побочные эффекты выдачи: генерирует график
// погашения с якорем в дате выдачи и заполняет даты взносов
func (s *LoanService) disburse(loan *models.Loan, dto DisburseLoanDTO, now time.Time) error {
	date := dto.Date
	if date.IsZero() {
		date = now
	}

	generated, err := GenerateSchedule(ScheduleTerms{
		Principal:  loan.ApprovedAmount,
		AnnualRate: loan.InterestRate,
		Tenure:     loan.Tenure,
		Cadence:    loan.Cadence,
		StartDate:  date,
	})
	if err != nil {
		return err
	}

	for i := range generated.Installments {
		generated.Installments[i].LoanID = loan.ID
	}

	loan.Schedule = generated.Installments
	loan.InstallmentAmount = generated.InstallmentAmount
	loan.TotalRepaymentAmount = generated.TotalRepaymentAmount
	loan.DisbursedAmount = dto.Amount
	disbursedAt := date
	loan.DisbursementDate = &disbursedAt

	first := generated.Installments[0].DueDate
	last := generated.Installments[len(generated.Installments)-1].DueDate
	loan.FirstInstallmentDate = &first
	loan.LastInstallmentDate = &last
	loan.NextDueDate = &first

	loan.Summary = RecomputeSummary(loan.ApprovedAmount, loan.TotalRepaymentAmount, loan.Schedule, now)
	loan.Substatus = models.LoanSubstatusCurrent
	return nil
}

// Transition выполняет переход статуса кредита и сохраняет результат
func (s *LoanService) Transition(loanID uint, target models.LoanStatus, ctx LoanTransitionContext) (*models.Loan, error) {
	loan, err := s.GetByID(loanID)
	if err != nil {
		return nil, err
	}

	oldStatus := loan.Status
	now := time.Now()

	if err := s.applyLoanTransition(loan, target, ctx, now); err != nil {
		utils.GetMetrics().RecordLoanOperation("transition", err)
		return nil, err
	}

	if err := s.saveLoanTransition(loan, oldStatus); err != nil {
		return nil, err
	}

	utils.GetMetrics().RecordLoanOperation("transition", nil)
	s.emitLoanEvent(loan, oldStatus, now)

	return loan, nil
}

// saveLoanTransition сохраняет переход атомарно: статус, график и
// агрегаты пишутся в одной транзакции с проверкой версии записи
func (s *LoanService) saveLoanTransition(loan *models.Loan, oldStatus models.LoanStatus) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Loan{}).
			Where("id = ? AND version = ?", loan.ID, loan.Version).
			Updates(loanColumns(loan, loan.Version+1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAllocationConflict
		}

		// Новый график создается только при выдаче
		if oldStatus == models.LoanStatusApproved && loan.Status == models.LoanStatusDisbursed {
			for i := range loan.Schedule {
				if err := tx.Create(&loan.Schedule[i]).Error; err != nil {
					return err
				}
			}
			journal := &models.Transaction{
				LoanID:      loan.ID,
				AccountID:   loan.DisbursementAccountID,
				Amount:      loan.DisbursedAmount,
				Type:        models.TransactionTypeDisbursement,
				Description: "Loan disbursement " + loan.LoanNumber,
			}
			if err := tx.Create(journal).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAllocationConflict) {
			return ErrAllocationConflict
		}
		utils.LogError("Ошибка при сохранении перехода кредита %d: %v", loan.ID, err)
		return errors.New("ошибка при сохранении кредита")
	}
	loan.Version++
	return nil
}

// loanColumns собирает обновляемые колонки кредита
func loanColumns(loan *models.Loan, version int64) map[string]interface{} {
	return map[string]interface{}{
		"status":                      loan.Status,
		"substatus":                   loan.Substatus,
		"approved_amount":             loan.ApprovedAmount,
		"disbursed_amount":            loan.DisbursedAmount,
		"interest_rate":               loan.InterestRate,
		"tenure":                      loan.Tenure,
		"cadence":                     loan.Cadence,
		"installment_amount":          loan.InstallmentAmount,
		"total_repayment_amount":      loan.TotalRepaymentAmount,
		"approval_date":               loan.ApprovalDate,
		"rejection_date":              loan.RejectionDate,
		"rejection_reason":            loan.RejectionReason,
		"disbursement_date":           loan.DisbursementDate,
		"first_installment_date":      loan.FirstInstallmentDate,
		"last_installment_date":       loan.LastInstallmentDate,
		"completion_date":             loan.CompletionDate,
		"default_date":                loan.DefaultDate,
		"next_due_date":               loan.NextDueDate,
		"summary_total_paid":          loan.Summary.TotalPaid,
		"summary_principal_paid":      loan.Summary.PrincipalPaid,
		"summary_interest_paid":       loan.Summary.InterestPaid,
		"summary_remaining_principal": loan.Summary.RemainingPrincipal,
		"summary_total_remaining":     loan.Summary.TotalRemaining,
		"summary_overdue_amount":      loan.Summary.OverdueAmount,
		"summary_days_overdue":        loan.Summary.DaysOverdue,
		"summary_next_payment_due":    loan.Summary.NextPaymentDue,
		"summary_next_payment_amount": loan.Summary.NextPaymentAmount,
		"version":                     version,
		"updated_at":                  time.Now(),
	}
}

// UpdateTerms изменяет условия кредита до выдачи средств
func (s *LoanService) UpdateTerms(loanID uint, dto UpdateTermsDTO) (*models.Loan, error) {
	if err := s.validateDTO(dto); err != nil {
		return nil, err
	}

	loan, err := s.GetByID(loanID)
	if err != nil {
		return nil, err
	}

	// После выдачи условия неизменяемы
	if TermsLocked(loan.Status) {
		return nil, ErrImmutableTerms
	}

	if dto.ApprovedAmount != nil {
		loan.ApprovedAmount = *dto.ApprovedAmount
	}
	if dto.InterestRate != nil {
		loan.InterestRate = *dto.InterestRate
	}
	if dto.Tenure != nil {
		loan.Tenure = *dto.Tenure
	}

	if err := s.saveLoanTransition(loan, loan.Status); err != nil {
		return nil, err
	}
	return loan, nil
}

// ApplyPayment распределяет завершенный платеж по графику кредита.
// Цикл чтение-распределение-запись повторяется при конфликте версий,
// чтобы конкурентные распределения по одному кредиту выполнялись
// строго последовательно.
func (s *LoanService) ApplyPayment(loanID uint, paymentID string, amount int64, date time.Time) (*AllocationResult, error) {
	retries := s.cfg.Loan.AllocationRetries
	if retries < 1 {
		retries = 1
	}

	for attempt := 0; attempt < retries; attempt++ {
		loan, err := s.store.loadLoan(loanID)
		if err != nil {
			return nil, err
		}

		if loan.Status != models.LoanStatusDisbursed && loan.Status != models.LoanStatusActive {
			return nil, errors.New("кредит не активен")
		}

		updatedSchedule, result, err := AllocatePayment(loan.Schedule, amount, date)
		if err != nil {
			return nil, err
		}
		result.PaymentID = paymentID

		summary := RecomputeSummary(loan.ApprovedAmount, loan.TotalRepaymentAmount, updatedSchedule, time.Now())

		err = s.store.writeAllocation(loan, updatedSchedule, summary, paymentID, result)
		if errors.Is(err, ErrAllocationConflict) {
			utils.GetMetrics().RecordAllocationConflict()
			continue
		}
		if err != nil {
			return nil, err
		}

		// Если все взносы погашены, закрываем кредит
		if summary.TotalRemaining <= 0 && loan.Status == models.LoanStatusActive {
			if _, err := s.Transition(loanID, models.LoanStatusCompleted, LoanTransitionContext{Actor: "system", Reason: "все взносы погашены"}); err != nil {
				log.Printf("Ошибка при закрытии кредита %d: %v", loanID, err)
			}
		}

		return result, nil
	}

	return nil, ErrAllocationConflict
}

// gormLoanStore реализует allocationStore поверх базы данных
type gormLoanStore struct {
	db *gorm.DB
}

// loadLoan возвращает кредит с графиком для цикла распределения
func (st *gormLoanStore) loadLoan(id uint) (*models.Loan, error) {
	var loan models.Loan
	if err := st.db.Preload("Schedule", func(db *gorm.DB) *gorm.DB {
		return db.Order("installments.number ASC")
	}).First(&loan, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("кредит не найден")
		}
		return nil, errors.New("ошибка при получении кредита")
	}
	return &loan, nil
}

// writeAllocation записывает результат распределения атомарно:
// агрегаты и взносы либо сохраняются вместе, либо не сохраняются вовсе
func (st *gormLoanStore) writeAllocation(loan *models.Loan, schedule []models.Installment, summary models.PaymentSummary, paymentID string, result *AllocationResult) error {
	return st.db.Transaction(func(tx *gorm.DB) error {
		columns := map[string]interface{}{
			"summary_total_paid":          summary.TotalPaid,
			"summary_principal_paid":      summary.PrincipalPaid,
			"summary_interest_paid":       summary.InterestPaid,
			"summary_remaining_principal": summary.RemainingPrincipal,
			"summary_total_remaining":     summary.TotalRemaining,
			"summary_overdue_amount":      summary.OverdueAmount,
			"summary_days_overdue":        summary.DaysOverdue,
			"summary_next_payment_due":    summary.NextPaymentDue,
			"summary_next_payment_amount": summary.NextPaymentAmount,
			"next_due_date":               summary.NextPaymentDue,
			"version":                     loan.Version + 1,
			"updated_at":                  time.Now(),
		}

		// Условная запись: проходит только если версия не изменилась
		res := tx.Model(&models.Loan{}).
			Where("id = ? AND version = ?", loan.ID, loan.Version).
			Updates(columns)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAllocationConflict
		}

		for i := range schedule {
			inst := &schedule[i]
			if err := tx.Model(&models.Installment{}).
				Where("id = ?", inst.ID).
				Updates(map[string]interface{}{
					"paid_amount": inst.PaidAmount,
					"status":      inst.Status,
					"paid_date":   inst.PaidDate,
				}).Error; err != nil {
				return err
			}
		}

		journal := &models.Transaction{
			LoanID:      loan.ID,
			PaymentID:   paymentID,
			Amount:      result.Applied,
			Type:        models.TransactionTypeRepayment,
			Description: "Loan repayment " + loan.LoanNumber,
		}
		return tx.Create(journal).Error
	})
}

// RefreshOverdue помечает просроченные взносы кредита и пересчитывает
// агрегаты. Используется фоновой проверкой просрочки.
func (s *LoanService) RefreshOverdue(loanID uint, today time.Time) error {
	loan, err := s.GetByID(loanID)
	if err != nil {
		return err
	}

	updated := MarkOverdueInstallments(loan.Schedule, today)
	summary := RecomputeSummary(loan.ApprovedAmount, loan.TotalRepaymentAmount, updated, today)

	if summary.OverdueAmount > 0 {
		loan.Substatus = models.LoanSubstatusOverdue
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Loan{}).
			Where("id = ? AND version = ?", loan.ID, loan.Version).
			Updates(map[string]interface{}{
				"substatus":                   loan.Substatus,
				"summary_overdue_amount":      summary.OverdueAmount,
				"summary_days_overdue":        summary.DaysOverdue,
				"summary_next_payment_due":    summary.NextPaymentDue,
				"summary_next_payment_amount": summary.NextPaymentAmount,
				"version":                     loan.Version + 1,
				"updated_at":                  time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAllocationConflict
		}

		for i := range updated {
			if updated[i].Status != loan.Schedule[i].Status {
				if err := tx.Model(&models.Installment{}).
					Where("id = ?", updated[i].ID).
					Update("status", updated[i].Status).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// emitLoanEvent публикует событие смены статуса кредита
func (s *LoanService) emitLoanEvent(loan *models.Loan, oldStatus models.LoanStatus, at time.Time) {
	if s.notifier == nil || oldStatus == loan.Status {
		return
	}
	event := LoanStatusChangedEvent{
		LoanID:     loan.ID,
		LoanNumber: loan.LoanNumber,
		BorrowerID: loan.BorrowerID,
		OldStatus:  oldStatus,
		NewStatus:  loan.Status,
		Timestamp:  at,
	}
	if err := s.notifier.NotifyLoanStatusChanged(event); err != nil {
		// Логируем ошибку, но не прерываем операцию
		log.Printf("Ошибка при отправке уведомления о кредите %s: %v", loan.LoanNumber, err)
	}
}
