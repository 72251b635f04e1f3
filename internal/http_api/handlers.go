package http_api

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/Hamzat-Yaudarov/spn-vpn-bot-sub000/internal/payments"
)

// CryptoPayUpdate represents the JSON body pushed by the crypto-invoice
// provider on invoice status changes.
type CryptoPayUpdate struct {
	UpdateType string `json:"update_type" binding:"required"`
	Payload    struct {
		InvoiceID int64  `json:"invoice_id" binding:"required"`
		Status    string `json:"status"`
	} `json:"payload" binding:"required"`
}

// MerchantCallback represents the signed JSON body the merchant gateway
// posts on order completion.
type MerchantCallback struct {
	OrderID string `json:"order_id" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
	Status  string `json:"status" binding:"required"`
	Sign    string `json:"sign" binding:"required"`
}

// cryptoPayWebhook is a handler for the /webhook/cryptopay endpoint.
// It acknowledges immediately; the reconciliation runs async. A retry
// of the same update is a no-op downstream.
func (s *HTTPServer) cryptoPayWebhook(c *gin.Context) {
	var update CryptoPayUpdate

	if err := c.ShouldBindJSON(&update); err != nil {
		s.logger.Debug("Invalid crypto webhook body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if update.UpdateType != "invoice_paid" || update.Payload.Status != "paid" {
		// Non-terminal updates are acknowledged and dropped.
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	s.reconcileAsync(payments.ProviderCryptoPay, fmt.Sprintf("%d", update.Payload.InvoiceID))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// merchantWebhook is a handler for the /webhook/merchant endpoint.
// A bad signature is a permanent validation failure and is rejected
// without retry; a valid paid callback is acknowledged and reconciled
// async.
func (s *HTTPServer) merchantWebhook(c *gin.Context) {
	var cb MerchantCallback

	if err := c.ShouldBindJSON(&cb); err != nil {
		s.logger.Debug("Invalid merchant callback body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if !s.merchant.VerifySign(cb.OrderID, cb.Amount, cb.Sign) {
		s.logger.Warn("Merchant callback signature mismatch ", "order ", cb.OrderID)
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
		return
	}

	if cb.Status != "success" && cb.Status != "paid" {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	s.reconcileAsync(payments.ProviderMerchant, cb.OrderID)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// status is a handler for the /api/v1/status endpoint.
func (s *HTTPServer) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// reconcileAsync hands a paid invoice to the engine off the request
// goroutine. The HTTP response acknowledges receipt, not completion;
// lock contention inside is a deferral and the provider retry or the
// poller will catch the invoice later.
func (s *HTTPServer) reconcileAsync(provider, invoiceID string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Webhook reconciliation panicked ",
					"provider ", provider, " invoice ", invoiceID,
					" panic ", r, " stack ", string(debug.Stack()))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
		defer cancel()

		if err := s.reconciler.HandlePaid(ctx, provider, invoiceID); err != nil {
			s.logger.Error("Webhook reconciliation failed ", "provider ", provider, " invoice ", invoiceID, " error ", err)
		}
	}()
}
