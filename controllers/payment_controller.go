package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"lendingApp/models"
	"lendingApp/services"

	"github.com/gorilla/mux"
)

// PaymentController обрабатывает запросы, связанные с платежами
type PaymentController struct {
	paymentService *services.PaymentService
	receiptService *services.ReceiptService
}

// NewPaymentController создает новый экземпляр PaymentController
func NewPaymentController(paymentService *services.PaymentService, receiptService *services.ReceiptService) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		receiptService: receiptService,
	}
}

// paymentTransitionRequest представляет тело запроса на переход статуса
type paymentTransitionRequest struct {
	Status       string `json:"status"`
	Reason       string `json:"reason"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	RefundAmount int64  `json:"refund_amount"`
}

// InitiatePayment обрабатывает запрос на создание платежа
func (c *PaymentController) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	// Получаем ID заемщика из контекста
	userID, ok := r.Context().Value("user_id").(uint)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// Создаем DTO для запроса
	var dto services.InitiatePaymentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Устанавливаем ID заемщика
	dto.UserID = userID

	// Создаем платеж
	payment, err := c.paymentService.Initiate(dto)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Отправляем ответ
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(payment)
}

// GetPayment обрабатывает запрос на получение платежа с историей статусов
func (c *PaymentController) GetPayment(w http.ResponseWriter, r *http.Request) {
	payment, ok := c.loadOwnedPayment(w, r)
	if !ok {
		return
	}

	// Отправляем ответ
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(payment)
}

// TransitionPayment обрабатывает запрос на переход статуса платежа
func (c *PaymentController) TransitionPayment(w http.ResponseWriter, r *http.Request) {
	payment, ok := c.loadOwnedPayment(w, r)
	if !ok {
		return
	}

	var req paymentTransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	email, _ := r.Context().Value("email").(string)

	updated, err := c.paymentService.Transition(payment.PaymentID, models.PaymentStatus(req.Status), services.PaymentTransitionContext{
		Reason:       req.Reason,
		Actor:        email,
		ErrorCode:    req.ErrorCode,
		ErrorMessage: req.ErrorMessage,
		RefundAmount: req.RefundAmount,
	})
	if err != nil {
		writePaymentError(w, err)
		return
	}

	// Отправляем ответ
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(updated)
}

// GetReceipt обрабатывает запрос на получение квитанции платежа
func (c *PaymentController) GetReceipt(w http.ResponseWriter, r *http.Request) {
	payment, ok := c.loadOwnedPayment(w, r)
	if !ok {
		return
	}

	if payment.ReceiptNumber == "" {
		http.Error(w, "Receipt not issued", http.StatusNotFound)
		return
	}

	valid, err := c.receiptService.VerifyReceipt(payment.ReceiptNumber)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	// Отправляем ответ
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"receipt_number":  payment.ReceiptNumber,
		"signature_valid": valid,
	})
}

// ExportReceipt обрабатывает запрос на выгрузку квитанции,
// зашифрованной для внешней системы
func (c *PaymentController) ExportReceipt(w http.ResponseWriter, r *http.Request) {
	payment, ok := c.loadOwnedPayment(w, r)
	if !ok {
		return
	}

	if payment.ReceiptNumber == "" {
		http.Error(w, "Receipt not issued", http.StatusNotFound)
		return
	}

	armored, err := c.receiptService.ExportEncrypted(payment.ReceiptNumber)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Отправляем ответ
	w.Header().Set("Content-Type", "application/pgp-encrypted")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(armored))
}

// loadOwnedPayment загружает платеж из URL и проверяет владельца
func (c *PaymentController) loadOwnedPayment(w http.ResponseWriter, r *http.Request) (*models.Payment, bool) {
	// Получаем ID заемщика из контекста
	userID, ok := r.Context().Value("user_id").(uint)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	// Получаем идентификатор платежа из URL
	vars := mux.Vars(r)
	paymentID := vars["paymentId"]
	if paymentID == "" {
		http.Error(w, "Invalid payment ID", http.StatusBadRequest)
		return nil, false
	}

	// Получаем платеж
	payment, err := c.paymentService.GetByPaymentID(paymentID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, false
	}

	// Проверяем, что платеж принадлежит заемщику
	if payment.UserID != userID {
		http.Error(w, "Access denied", http.StatusForbidden)
		return nil, false
	}

	return payment, true
}

// writePaymentError подбирает HTTP-статус для ошибки платежного учета
func writePaymentError(w http.ResponseWriter, err error) {
	var transitionErr *services.IllegalTransitionError
	switch {
	case errors.As(err, &transitionErr),
		errors.Is(err, services.ErrDuplicateAllocation),
		errors.Is(err, services.ErrAllocationConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
