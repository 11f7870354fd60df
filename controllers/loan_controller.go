package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"lendingApp/models"
	"lendingApp/services"

	"github.com/gorilla/mux"
)

// LoanController обрабатывает запросы, связанные с кредитами
type LoanController struct {
	loanService *services.LoanService
}

// NewLoanController создает новый экземпляр LoanController
func NewLoanController(loanService *services.LoanService) *LoanController {
	return &LoanController{
		loanService: loanService,
	}
}

// transitionRequest представляет тело запроса на переход статуса
type transitionRequest struct {
	Status   string                    `json:"status"`
	Reason   string                    `json:"reason"`
	Approve  *services.ApproveLoanDTO  `json:"approve,omitempty"`
	Disburse *services.DisburseLoanDTO `json:"disburse,omitempty"`
}

// CreateLoan обрабатывает запрос на создание заявки на кредит
func (c *LoanController) CreateLoan(w http.ResponseWriter, r *http.Request) {
	// Получаем ID заемщика из контекста
	userID, ok := r.Context().Value("user_id").(uint)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// Создаем DTO для запроса
	var dto services.CreateLoanDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Устанавливаем ID заемщика
	dto.UserID = userID

	// Создаем заявку
	loan, err := c.loanService.Create(dto)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Отправляем ответ
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(loan)
}

// GetLoans обрабатывает запрос на получение списка кредитов заемщика
func (c *LoanController) GetLoans(w http.ResponseWriter, r *http.Request) {
	// Получаем ID заемщика из контекста
	userID, ok := r.Context().Value("user_id").(uint)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// Получаем список кредитов
	loans, err := c.loanService.GetByUserID(userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Отправляем ответ
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(loans)
}

// GetLoan обрабатывает запрос на получение кредита с графиком погашения
func (c *LoanController) GetLoan(w http.ResponseWriter, r *http.Request) {
	loan, ok := c.loadOwnedLoan(w, r)
	if !ok {
		return
	}

	// Отправляем ответ
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(loan)
}

// GetLoanSummary обрабатывает запрос на получение агрегатов кредита
func (c *LoanController) GetLoanSummary(w http.ResponseWriter, r *http.Request) {
	loan, ok := c.loadOwnedLoan(w, r)
	if !ok {
		return
	}

	// Отправляем ответ
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(loan.Summary)
}

// TransitionLoan обрабатывает запрос на переход статуса кредита
func (c *LoanController) TransitionLoan(w http.ResponseWriter, r *http.Request) {
	loan, ok := c.loadOwnedLoan(w, r)
	if !ok {
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	_, email, err := getRequestUser(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	updated, err := c.loanService.Transition(loan.ID, models.LoanStatus(req.Status), services.LoanTransitionContext{
		Reason:   req.Reason,
		Actor:    email,
		Approve:  req.Approve,
		Disburse: req.Disburse,
	})
	if err != nil {
		writeLoanError(w, err)
		return
	}

	// Отправляем ответ
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(updated)
}

// UpdateLoanTerms обрабатывает запрос на изменение условий кредита
func (c *LoanController) UpdateLoanTerms(w http.ResponseWriter, r *http.Request) {
	loan, ok := c.loadOwnedLoan(w, r)
	if !ok {
		return
	}

	var dto services.UpdateTermsDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := c.loanService.UpdateTerms(loan.ID, dto)
	if err != nil {
		writeLoanError(w, err)
		return
	}

	// Отправляем ответ
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(updated)
}

// loadOwnedLoan загружает кредит из URL и проверяет владельца
func (c *LoanController) loadOwnedLoan(w http.ResponseWriter, r *http.Request) (*models.Loan, bool) {
	// Получаем ID заемщика из контекста
	userID, ok := r.Context().Value("user_id").(uint)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	// Получаем ID кредита из URL
	vars := mux.Vars(r)
	loanID, err := strconv.ParseUint(vars["id"], 10, 32)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return nil, false
	}

	// Получаем кредит
	loan, err := c.loanService.GetByID(uint(loanID))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, false
	}

	// Проверяем, что кредит принадлежит заемщику
	if loan.BorrowerID != userID {
		http.Error(w, "Access denied", http.StatusForbidden)
		return nil, false
	}

	return loan, true
}

// writeLoanError подбирает HTTP-статус для ошибки кредитного учета
func writeLoanError(w http.ResponseWriter, err error) {
	var transitionErr *services.IllegalTransitionError
	switch {
	case errors.As(err, &transitionErr),
		errors.Is(err, services.ErrImmutableTerms),
		errors.Is(err, services.ErrPrematureCompletion):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrInvalidTerms):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrAllocationConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// getRequestUser получает ID и email заемщика из контекста запроса
func getRequestUser(r *http.Request) (uint, string, error) {
	userID, ok := r.Context().Value("user_id").(uint)
	if !ok {
		return 0, "", errors.New("user_id not found in context")
	}
	email, _ := r.Context().Value("email").(string)
	return userID, email, nil
}
