package services

import (
	"testing"
	"time"

	"lendingApp/config"
	"lendingApp/models"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReceiptXML(t *testing.T) {
	cfg := &config.Config{ReceiptHMACKey: "test-key"}
	s := NewReceiptService(nil, cfg)

	completedAt := time.Date(2026, 2, 20, 10, 30, 0, 0, time.UTC)
	payment := &models.Payment{
		PaymentID:     "PAYTEST123",
		TransactionID: "TXNTEST456",
		LoanID:        7,
		Amount:        472798,
		Currency:      "IDR",
		Method:        "bank_transfer",
		ProcessingFee: 1000,
		AdminFee:      500,
		TotalFees:     1500,
		Status:        models.PaymentStatusCompleted,
		CompletedAt:   &completedAt,
	}

	body, err := s.buildReceiptXML(payment, "RCP20260220TESTNUM1", completedAt)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(body))

	root := doc.SelectElement("Receipt")
	require.NotNil(t, root)
	assert.Equal(t, "RCP20260220TESTNUM1", root.SelectAttrValue("number", ""))

	paymentEl := root.SelectElement("Payment")
	require.NotNil(t, paymentEl)
	assert.Equal(t, "PAYTEST123", paymentEl.SelectElement("PaymentID").Text())
	assert.Equal(t, "472798", paymentEl.SelectElement("Amount").Text())
	assert.Equal(t, "IDR", paymentEl.SelectElement("Currency").Text())

	fees := root.SelectElement("Fees")
	require.NotNil(t, fees)
	assert.Equal(t, "1500", fees.SelectElement("Total").Text())
}

func TestIssueReceiptRequiresCompleted(t *testing.T) {
	cfg := &config.Config{ReceiptHMACKey: "test-key"}
	s := NewReceiptService(nil, cfg)

	payment := &models.Payment{Status: models.PaymentStatusProcessing}
	_, err := s.IssueReceipt(payment)
	assert.Error(t, err)
}

func TestNewReceiptNumberFormat(t *testing.T) {
	at := time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC)
	number := newReceiptNumber(at)

	assert.Len(t, number, len("RCP20260220")+8)
	assert.Equal(t, "RCP20260220", number[:11])
}
