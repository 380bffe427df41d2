// internal/webhook/webhook.go
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sypbackend/internal/catalog"
	"sypbackend/internal/config"
	"sypbackend/internal/data"
	"sypbackend/internal/email"
	"sypbackend/internal/logger"
	"sypbackend/internal/middleware"
	"sypbackend/internal/order"
	"sypbackend/internal/payment"
)

// completedEventType is the only event this service reconciles. Everything
// else is acknowledged and dropped.
const completedEventType = "checkout.session.completed"

const maxWebhookBody = 1 << 20

// event is the envelope of a provider webhook delivery.
type event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Reconciler turns a paid checkout session into ledger rows and a receipt.
type Reconciler struct {
	Catalog  *catalog.Service
	Renderer email.Renderer
}

var defaultReconciler = &Reconciler{}

// SetReconciler injects the reconciler used by the HTTP handlers.
func SetReconciler(r *Reconciler) {
	defaultReconciler = r
}

// StripeWebhookHandler is the delivery endpoint. Order of operations is
// fixed: verify the raw bytes, filter by type, claim the session id, then
// reconcile. A failed claim means an earlier delivery already ran.
func StripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "POST required", "")
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_payload", "Failed to read request body", "")
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	if err := VerifySignature(raw, sig, config.StripeWebhookSecret(), time.Now()); err != nil {
		logger.LogWarn("Webhook signature rejected from %s: %v", logger.GetClientIP(r), err)
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_signature", "Invalid signature", "")
		return
	}

	var evt event
	if err := json.Unmarshal(raw, &evt); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_payload", "Invalid event payload", "")
		return
	}

	if evt.Type != completedEventType {
		logger.LogInfo("Webhook event %s (%s) skipped", evt.ID, evt.Type)
		middleware.WriteAPISuccess(w, r, map[string]interface{}{"skipped": true})
		return
	}

	var session payment.Session
	if err := json.Unmarshal(evt.Data.Object, &session); err != nil || session.ID == "" {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_payload", "Event carries no session", "")
		return
	}

	claimed, err := data.ClaimSession(session.ID, evt.ID)
	if err != nil {
		logger.LogError("Session claim failed for %s: %v", session.ID, err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "internal_error", "Claim failed", "")
		return
	}
	if !claimed {
		logger.LogInfo("Webhook event %s duplicates session %s, skipping side effects", evt.ID, session.ID)
		middleware.WriteAPISuccess(w, r, map[string]interface{}{"duplicate": true})
		return
	}

	if err := defaultReconciler.ProcessSession(r.Context(), &session); err != nil {
		// Nothing was written; release the claim so a redelivery can retry.
		logger.LogError("Reconciliation failed for session %s: %v", session.ID, err)
		if relErr := data.ReleaseSession(session.ID); relErr != nil {
			logger.LogError("Failed to release claim for %s: %v", session.ID, relErr)
		}
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "internal_error", "Reconciliation failed", "")
		return
	}

	middleware.WriteAPISuccess(w, r, map[string]interface{}{"ok": true})
}

// ProcessSession runs the reconciliation pipeline for a paid session. An
// error return means nothing was recorded yet. Once the first side effect
// runs, failures in one sink are logged and do not stop the others.
func (rec *Reconciler) ProcessSession(ctx context.Context, session *payment.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("missing session")
	}

	// Best-effort enrichment: the event payload carries no line items or
	// receipt URL, so re-fetch with expansion. The thin payload still
	// reconciles when the fetch fails.
	expanded, err := payment.GetCheckoutSessionWithRetry(ctx, session.ID, 2)
	if err != nil {
		logger.LogWarn("Session expand fetch failed for %s, using event payload: %v", session.ID, err)
		expanded = session
	}

	md := expanded.Metadata
	if len(md) == 0 {
		md = session.Metadata
	}

	students := order.DecodeMetadata(md)
	rec.apportionAmounts(students, expanded)

	createdAt := time.Unix(session.Created, 0)
	if session.Created == 0 {
		createdAt = time.Now()
	}
	orderNumber := makeOrderNumber(session.ID, createdAt)
	parentEmail := expanded.ParentEmail()

	amountTotal := expanded.AmountTotal
	if amountTotal == 0 {
		amountTotal = session.AmountTotal
	}
	currency := expanded.Currency
	if currency == "" {
		currency = "usd"
	}

	rows := buildOrderRows(orderNumber, parentEmail, students, md, expanded, amountTotal, currency, createdAt)

	if err := data.InsertOrderRows(rows); err != nil {
		logger.LogError("Ledger append failed for order %s: %v", orderNumber, err)
	}
	if err := forwardRowsToSheets(ctx, rows); err != nil {
		logger.LogError("Sheets append failed for order %s: %v", orderNumber, err)
	}

	rec.sendReceipt(ctx, expanded, orderNumber, parentEmail, students, amountTotal, currency, createdAt)

	if err := email.SendAdminOrderNotification(ctx, orderNumber, parentEmail, len(students), amountTotal, createdAt); err != nil {
		logger.LogWarn("Admin notification failed for order %s: %v", orderNumber, err)
	}

	logger.LogInfo("Reconciled order %s: session=%s students=%d total_cents=%d",
		orderNumber, session.ID, len(students), amountTotal)
	return nil
}

// apportionAmounts fills each student's share of the order total. Amounts
// come from the student's own codes priced against the catalog; sessions
// whose metadata predates per-student codes fall back to matching expanded
// line item descriptions by student name prefix.
func (rec *Reconciler) apportionAmounts(students []order.DecodedStudent, session *payment.Session) {
	if len(students) == 0 || rec.Catalog == nil {
		return
	}

	allPriced := true
	for i := range students {
		if students[i].Package == "" && len(students[i].Addons) == 0 {
			students[i].AmountCents = 0
			continue
		}
		total, err := rec.Catalog.SelectionTotal(students[i].Package, students[i].Addons)
		if err != nil {
			allPriced = false
			break
		}
		students[i].AmountCents = total
	}
	if allPriced {
		return
	}

	for i := range students {
		students[i].AmountCents = 0
	}
	if session.LineItems == nil {
		return
	}
	for _, li := range session.LineItems.Data {
		namePrefix, _, _ := strings.Cut(li.Description, " — ")
		namePrefix = strings.TrimSpace(namePrefix)
		amount := li.AmountTotal
		if amount == 0 {
			amount = li.AmountSubtotal
		}
		for i := range students {
			if students[i].Name == namePrefix {
				students[i].AmountCents += amount
				break
			}
		}
	}
}

func buildOrderRows(orderNumber, parentEmail string, students []order.DecodedStudent,
	md map[string]string, session *payment.Session, amountTotal int64, currency string,
	createdAt time.Time) []data.OrderRow {

	receiptURL := session.ReceiptURL()

	if len(students) == 0 {
		// No reconstructable students: keep the money trail anyway.
		line := md["package"]
		if md["addons"] != "" {
			line = strings.Trim(line+", "+md["addons"], ", ")
		}
		return []data.OrderRow{{
			OrderNumber:      orderNumber,
			SessionID:        session.ID,
			ParentEmail:      parentEmail,
			StudentIndex:     1,
			Background:       md["background"],
			Package:          md["package"],
			Addons:           md["addons"],
			PackageAndAddons: line,
			AmountCents:      amountTotal,
			Currency:         currency,
			ReceiptURL:       receiptURL,
			CreatedAt:        createdAt,
		}}
	}

	rows := make([]data.OrderRow, 0, len(students))
	for _, s := range students {
		rows = append(rows, data.OrderRow{
			OrderNumber:      orderNumber,
			SessionID:        session.ID,
			ParentEmail:      parentEmail,
			StudentIndex:     s.Index,
			StudentDisplay:   s.Name,
			First:            s.First,
			Last:             s.Last,
			Grade:            s.Grade,
			Teacher:          s.Teacher,
			Background:       s.Background,
			Package:          s.Package,
			Addons:           strings.Join(s.Addons, ","),
			PackageAndAddons: s.PackageLine,
			AmountCents:      s.AmountCents,
			Currency:         currency,
			ReceiptURL:       receiptURL,
			CreatedAt:        createdAt,
		})
	}
	return rows
}

func (rec *Reconciler) sendReceipt(ctx context.Context, session *payment.Session,
	orderNumber, parentEmail string, students []order.DecodedStudent,
	amountTotal int64, currency string, createdAt time.Time) {

	emailConfig := email.LoadEmailConfig()

	to := parentEmail
	if to == "" {
		to = emailConfig.DebugRecipient
	}
	if to == "" || (!emailConfig.HasProvider() && !emailConfig.MockMode) {
		logger.LogWarn("No recipient or provider for order %s, skipping receipt", orderNumber)
		return
	}

	cardBrand, cardLast4 := session.CardSummary()
	receipt := email.ReceiptData{
		BrandName:    config.BrandName,
		LogoURL:      config.BrandLogoURL,
		OrderNumber:  orderNumber,
		CreatedAt:    createdAt,
		TotalCents:   amountTotal,
		Currency:     currency,
		ParentEmail:  to,
		ReceiptURL:   session.ReceiptURL(),
		ViewOrderURL: config.SiteBaseURL + "/success.html?session_id=" + session.ID,
		CardBrand:    cardBrand,
		CardLast4:    cardLast4,
	}
	for _, s := range students {
		receipt.Students = append(receipt.Students, email.ReceiptStudent{
			Name:        s.Name,
			PackageLine: s.PackageLine,
			AmountCents: s.AmountCents,
			HasAmount:   s.AmountCents > 0,
		})
	}

	renderer := rec.Renderer
	if renderer == nil {
		renderer = email.ModernReceiptRenderer{}
	}
	subject, html, text, err := renderer.Render(receipt)
	if err != nil {
		logger.LogError("Receipt render failed for order %s: %v", orderNumber, err)
		return
	}

	if err := email.Send(ctx, emailConfig, email.Message{To: to, Subject: subject, HTML: html, Text: text}); err != nil {
		logger.LogError("Receipt send failed for order %s: %v", orderNumber, err)
		return
	}
	logger.LogInfo("Receipt sent for order %s to %s", orderNumber, to)
}

// makeOrderNumber derives the human-facing order number from the session:
// SYP-YYYYMMDD- plus the last six usable characters of the session id.
func makeOrderNumber(sessionID string, createdAt time.Time) string {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, strings.ToUpper(sessionID))

	suffix := cleaned
	if len(cleaned) > 6 {
		suffix = cleaned[len(cleaned)-6:]
	}
	return fmt.Sprintf("SYP-%s-%s", createdAt.Format("20060102"), suffix)
}
