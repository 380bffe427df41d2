// internal/webhook/status.go
package webhook

import (
	"net/http"

	"sypbackend/internal/data"
	"sypbackend/internal/logger"
	"sypbackend/internal/middleware"
	"sypbackend/internal/payment"
)

// OrderStatusHandler reports whether a checkout session has reconciled.
// A paid session with no ledger rows means the webhook delivery was lost,
// so the handler runs the reconciliation itself before answering.
func OrderStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "GET required", "")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "missing_parameter", "session_id is required", "")
		return
	}

	rows, err := data.GetOrderRowsBySession(sessionID)
	if err != nil {
		logger.LogError("Order status lookup failed for %s: %v", sessionID, err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "internal_error", "Lookup failed", "")
		return
	}
	if len(rows) > 0 {
		writePaidStatus(w, r, rows)
		return
	}

	session, err := payment.GetCheckoutSessionWithRetry(r.Context(), sessionID, 2)
	if err != nil {
		if stripeErr, ok := err.(*payment.StripeError); ok && stripeErr.HTTPStatus == http.StatusNotFound {
			middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Unknown session", "")
			return
		}
		logger.LogError("Order status session fetch failed for %s: %v", sessionID, err)
		middleware.WriteAPIError(w, r, http.StatusBadGateway, "stripe_error", "Payment provider unavailable", "")
		return
	}

	if session.PaymentStatus != "paid" {
		middleware.WriteAPISuccess(w, r, map[string]interface{}{"status": "pending"})
		return
	}

	// Paid but unrecorded: the completed event never landed. Claim the
	// session here so a late redelivery becomes the duplicate.
	claimed, err := data.ClaimSession(sessionID, "recovery")
	if err != nil {
		logger.LogError("Recovery claim failed for %s: %v", sessionID, err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "internal_error", "Recovery failed", "")
		return
	}
	if claimed {
		logger.LogWarn("Recovering unrecorded paid session %s", sessionID)
		if err := defaultReconciler.ProcessSession(r.Context(), session); err != nil {
			logger.LogError("Recovery reconciliation failed for %s: %v", sessionID, err)
			if relErr := data.ReleaseSession(sessionID); relErr != nil {
				logger.LogError("Failed to release recovery claim for %s: %v", sessionID, relErr)
			}
			middleware.WriteAPIError(w, r, http.StatusInternalServerError, "internal_error", "Recovery failed", "")
			return
		}
	}

	rows, err = data.GetOrderRowsBySession(sessionID)
	if err != nil || len(rows) == 0 {
		middleware.WriteAPISuccess(w, r, map[string]interface{}{"status": "processing"})
		return
	}
	writePaidStatus(w, r, rows)
}

func writePaidStatus(w http.ResponseWriter, r *http.Request, rows []data.OrderRow) {
	middleware.WriteAPISuccess(w, r, map[string]interface{}{
		"status":       "paid",
		"order_number": rows[0].OrderNumber,
		"receipt_url":  rows[0].ReceiptURL,
		"rows":         rows,
	})
}

// GetSessionHandler proxies a sanitized view of a checkout session for the
// success page, which has no provider credentials of its own.
func GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "GET required", "")
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "missing_parameter", "session_id is required", "")
		return
	}

	session, err := payment.GetCheckoutSessionWithRetry(r.Context(), sessionID, 2)
	if err != nil {
		if stripeErr, ok := err.(*payment.StripeError); ok && stripeErr.HTTPStatus == http.StatusNotFound {
			middleware.WriteAPIError(w, r, http.StatusNotFound, "not_found", "Unknown session", "")
			return
		}
		logger.LogError("Session proxy fetch failed for %s: %v", sessionID, err)
		middleware.WriteAPIError(w, r, http.StatusBadGateway, "stripe_error", "Payment provider unavailable", "")
		return
	}

	var lineItems []map[string]interface{}
	if session.LineItems != nil {
		for _, li := range session.LineItems.Data {
			lineItems = append(lineItems, map[string]interface{}{
				"description":  li.Description,
				"amount_total": li.AmountTotal,
				"quantity":     li.Quantity,
			})
		}
	}

	middleware.WriteAPISuccess(w, r, map[string]interface{}{
		"id":             session.ID,
		"payment_status": session.PaymentStatus,
		"amount_total":   session.AmountTotal,
		"currency":       session.Currency,
		"customer_email": session.ParentEmail(),
		"metadata":       session.Metadata,
		"line_items":     lineItems,
		"receipt_url":    session.ReceiptURL(),
	})
}
