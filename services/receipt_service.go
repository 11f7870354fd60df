package services

import (
	"fmt"
	"strconv"
	"time"

	"lendingApp/config"
	"lendingApp/models"
	"lendingApp/utils"

	"github.com/beevik/etree"
	"gorm.io/gorm"
)

// ReceiptService формирует XML-квитанции для завершенных платежей
type ReceiptService struct {
	db     *gorm.DB
	config *config.Config
}

// NewReceiptService создает новый экземпляр ReceiptService
func NewReceiptService(db *gorm.DB, cfg *config.Config) *ReceiptService {
	return &ReceiptService{db: db, config: cfg}
}

// newReceiptNumber генерирует номер квитанции
func newReceiptNumber(at time.Time) string {
	return "RCP" + at.Format("20060102") + models.RandomBase36(8)
}

// IssueReceipt формирует подписанную квитанцию для завершенного
// платежа и возвращает ее номер. Тело квитанции сохраняется для
// передачи во внешние системы.
func (s *ReceiptService) IssueReceipt(payment *models.Payment) (string, error) {
	if payment.Status != models.PaymentStatusCompleted {
		return "", fmt.Errorf("квитанция выдается только для завершенного платежа, статус: %s", payment.Status)
	}

	issuedAt := time.Now()
	receiptNumber := newReceiptNumber(issuedAt)

	body, err := s.buildReceiptXML(payment, receiptNumber, issuedAt)
	if err != nil {
		return "", fmt.Errorf("ошибка при формировании квитанции: %v", err)
	}

	receipt := &models.PaymentReceipt{
		ReceiptNumber: receiptNumber,
		PaymentID:     payment.PaymentID,
		LoanID:        payment.LoanID,
		Amount:        payment.Amount,
		IssuedAt:      issuedAt,
		Body:          body,
		Signature:     utils.GenerateHMAC(body, []byte(s.config.ReceiptHMACKey)),
	}

	if err := s.db.Create(receipt).Error; err != nil {
		return "", fmt.Errorf("ошибка при сохранении квитанции: %v", err)
	}

	return receiptNumber, nil
}

// buildReceiptXML собирает XML-представление квитанции
func (s *ReceiptService) buildReceiptXML(payment *models.Payment, receiptNumber string, issuedAt time.Time) (string, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	receipt := doc.CreateElement("Receipt")
	receipt.CreateAttr("number", receiptNumber)
	receipt.CreateAttr("issued", issuedAt.Format(time.RFC3339))

	paymentEl := receipt.CreateElement("Payment")
	paymentEl.CreateElement("PaymentID").SetText(payment.PaymentID)
	paymentEl.CreateElement("TransactionID").SetText(payment.TransactionID)
	paymentEl.CreateElement("LoanID").SetText(strconv.FormatUint(uint64(payment.LoanID), 10))
	paymentEl.CreateElement("Amount").SetText(strconv.FormatInt(payment.Amount, 10))
	paymentEl.CreateElement("Currency").SetText(payment.Currency)
	paymentEl.CreateElement("Method").SetText(payment.Method)

	fees := receipt.CreateElement("Fees")
	fees.CreateElement("Processing").SetText(strconv.FormatInt(payment.ProcessingFee, 10))
	fees.CreateElement("Transaction").SetText(strconv.FormatInt(payment.TransactionFee, 10))
	fees.CreateElement("Service").SetText(strconv.FormatInt(payment.ServiceFee, 10))
	fees.CreateElement("Admin").SetText(strconv.FormatInt(payment.AdminFee, 10))
	fees.CreateElement("Total").SetText(strconv.FormatInt(payment.TotalFees, 10))

	if payment.CompletedAt != nil {
		receipt.CreateElement("CompletedAt").SetText(payment.CompletedAt.Format(time.RFC3339))
	}

	doc.Indent(2)
	return doc.WriteToString()
}

// VerifyReceipt проверяет HMAC-подпись сохраненной квитанции
func (s *ReceiptService) VerifyReceipt(receiptNumber string) (bool, error) {
	var receipt models.PaymentReceipt
	if err := s.db.Where("receipt_number = ?", receiptNumber).First(&receipt).Error; err != nil {
		return false, fmt.Errorf("квитанция не найдена: %v", err)
	}
	return utils.ValidateHMAC(receipt.Body, receipt.Signature, []byte(s.config.ReceiptHMACKey)), nil
}

// ExportEncrypted возвращает квитанцию, зашифрованную PGP-ключом
// внешней системы
func (s *ReceiptService) ExportEncrypted(receiptNumber string) (string, error) {
	var receipt models.PaymentReceipt
	if err := s.db.Where("receipt_number = ?", receiptNumber).First(&receipt).Error; err != nil {
		return "", fmt.Errorf("квитанция не найдена: %v", err)
	}
	return utils.PGPEncrypt(receipt.Body, s.config.ReceiptPublicKey)
}
