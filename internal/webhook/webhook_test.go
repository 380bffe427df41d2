package webhook

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sypbackend/internal/catalog"
	"sypbackend/internal/config"
	"sypbackend/internal/data"
)

const testWebhookSecret = "whsec_unit_test"

func setupWebhookTest(t *testing.T) {
	t.Helper()

	t.Setenv("STRIPE_SECRET_KEY", "sk_test_unit")
	t.Setenv("STRIPE_WEBHOOK_SECRET", testWebhookSecret)
	t.Setenv("EMAIL_MOCK_MODE", "true")
	t.Setenv("SHEETS_WEBAPP_URL", "")
	t.Setenv("SITE_BASE_URL", "https://example.test")
	require.NoError(t, config.LoadStripeConfig())
	config.LoadSiteConfig()

	dbPath := filepath.Join(t.TempDir(), "webhook_test.db")
	require.NoError(t, data.InitDB(dbPath))
	require.NoError(t, data.CreateTables())
	t.Cleanup(func() { data.CloseDB() })

	SetReconciler(&Reconciler{Catalog: catalog.NewService()})
}

// newMockStripe serves canned session JSON for expand fetches and points
// the client at itself.
func newMockStripe(t *testing.T, sessions map[string]string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := path.Base(r.URL.Path)
		body, ok := sessions[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"type":"invalid_request_error","message":"No such checkout.session"}}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	config.SetStripeAPIBase(srv.URL)
}

func expandedSessionJSON(id string, created int64, metadata map[string]string, lineItems string) string {
	md, _ := json.Marshal(metadata)
	return fmt.Sprintf(`{
		"id": %q,
		"created": %d,
		"amount_total": 5600,
		"currency": "usd",
		"payment_status": "paid",
		"customer_details": {"email": "parent@example.com", "name": "Pat Example"},
		"metadata": %s,
		"line_items": {"data": [%s]},
		"payment_intent": {
			"id": "pi_test_1",
			"charges": {"data": [{
				"receipt_url": "https://pay.stripe.com/receipts/r_123",
				"payment_method_details": {"card": {"brand": "visa", "last4": "4242"}}
			}]}
		}
	}`, id, created, md, lineItems)
}

func twoStudentMetadata() map[string]string {
	return map[string]string{
		"students_count": "2",
		"parent_name":    "Pat Example",
		"parent_email":   "parent@example.com",
		"s1_first":       "Ada",
		"s1_last":        "L.",
		"s1_grade":       "3",
		"s1_teacher":     "Ms. Reyes",
		"s1_bg":          "F1",
		"s1_pkg":         "A",
		"s2_first":       "Bo",
		"s2_last":        "K.",
		"s2_grade":       "5",
		"s2_teacher":     "Mr. Holt",
		"s2_bg":          "F2",
		"s2_pkg":         "E",
		"s2_addons":      "F,G",
	}
}

func completedEventJSON(eventID, sessionID string, created int64, metadata map[string]string) string {
	md, _ := json.Marshal(metadata)
	return fmt.Sprintf(`{
		"id": %q,
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": %q,
			"created": %d,
			"amount_total": 5600,
			"currency": "usd",
			"payment_status": "paid",
			"customer_details": {"email": "parent@example.com"},
			"metadata": %s
		}}
	}`, eventID, sessionID, created, md)
}

func deliverEvent(t *testing.T, eventJSON string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/stripe-webhook", strings.NewReader(eventJSON))
	req.Header.Set("Stripe-Signature", ComputeSignature([]byte(eventJSON), testWebhookSecret, time.Now()))
	rr := httptest.NewRecorder()
	StripeWebhookHandler(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var envelope struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
	require.True(t, envelope.Success)
	return envelope.Data
}

func TestWebhookReconcilesPaidSession(t *testing.T) {
	setupWebhookTest(t)

	sessionID := "cs_test_a1B2c3XYZ789"
	created := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC).Unix()
	md := twoStudentMetadata()
	newMockStripe(t, map[string]string{
		sessionID: expandedSessionJSON(sessionID, created, md, ""),
	})

	rr := deliverEvent(t, completedEventJSON("evt_test_1", sessionID, created, md))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rows, err := data.GetOrderRowsBySession(sessionID)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "SYP-20260827-XYZ789", rows[0].OrderNumber)
	assert.Equal(t, "Ada L.", rows[0].StudentDisplay)
	assert.Equal(t, "A", rows[0].Package)
	assert.Equal(t, int64(3200), rows[0].AmountCents)
	assert.Equal(t, "https://pay.stripe.com/receipts/r_123", rows[0].ReceiptURL)

	assert.Equal(t, "Bo K.", rows[1].StudentDisplay)
	assert.Equal(t, "E", rows[1].Package)
	assert.Equal(t, "F,G", rows[1].Addons)
	assert.Equal(t, int64(2400), rows[1].AmountCents)
	assert.Equal(t, "parent@example.com", rows[1].ParentEmail)
}

func TestWebhookDuplicateDeliveryRunsOnce(t *testing.T) {
	setupWebhookTest(t)

	sessionID := "cs_test_dupe001"
	created := time.Now().Unix()
	md := twoStudentMetadata()
	newMockStripe(t, map[string]string{
		sessionID: expandedSessionJSON(sessionID, created, md, ""),
	})

	first := deliverEvent(t, completedEventJSON("evt_dupe_1", sessionID, created, md))
	require.Equal(t, http.StatusOK, first.Code)

	second := deliverEvent(t, completedEventJSON("evt_dupe_2", sessionID, created, md))
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, true, decodeEnvelope(t, second)["duplicate"])

	rows, err := data.GetOrderRowsBySession(sessionID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	setupWebhookTest(t)

	body := completedEventJSON("evt_bad_sig", "cs_test_badsig", time.Now().Unix(), twoStudentMetadata())
	req := httptest.NewRequest(http.MethodPost, "/api/stripe-webhook", strings.NewReader(body))
	req.Header.Set("Stripe-Signature", ComputeSignature([]byte(body+"x"), testWebhookSecret, time.Now()))
	rr := httptest.NewRecorder()
	StripeWebhookHandler(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid_signature")

	processed, err := data.IsSessionProcessed("cs_test_badsig")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestWebhookSkipsOtherEventTypes(t *testing.T) {
	setupWebhookTest(t)

	body := `{"id":"evt_other","type":"payment_intent.created","data":{"object":{"id":"pi_x"}}}`
	rr := deliverEvent(t, body)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decodeEnvelope(t, rr)["skipped"])
}

func TestWebhookSurvivesSheetsFailure(t *testing.T) {
	setupWebhookTest(t)

	sheets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer sheets.Close()
	config.SheetsWebAppURL = sheets.URL
	t.Cleanup(func() { config.SheetsWebAppURL = "" })

	sessionID := "cs_test_sheetfail"
	created := time.Now().Unix()
	md := twoStudentMetadata()
	newMockStripe(t, map[string]string{
		sessionID: expandedSessionJSON(sessionID, created, md, ""),
	})

	rr := deliverEvent(t, completedEventJSON("evt_sheets_1", sessionID, created, md))
	require.Equal(t, http.StatusOK, rr.Code)

	rows, err := data.GetOrderRowsBySession(sessionID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestWebhookReconcilesWithoutExpandFetch(t *testing.T) {
	setupWebhookTest(t)

	// No mock session registered: the expand fetch 404s and the event
	// payload carries the reconciliation alone.
	sessionID := "cs_test_thin01"
	created := time.Now().Unix()
	md := twoStudentMetadata()
	newMockStripe(t, map[string]string{})

	rr := deliverEvent(t, completedEventJSON("evt_thin_1", sessionID, created, md))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rows, err := data.GetOrderRowsBySession(sessionID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(3200), rows[0].AmountCents)
	assert.Empty(t, rows[0].ReceiptURL)
}

func TestApportionmentFallsBackToLineItems(t *testing.T) {
	setupWebhookTest(t)

	sessionID := "cs_test_legacy1"
	created := time.Now().Unix()
	md := twoStudentMetadata()
	md["s2_pkg"] = "Q9" // retired code, absent from the catalog

	lineItems := `{"description": "Ada L. — Package A", "amount_total": 3200, "quantity": 1},
		{"description": "Bo K. — Package Q9", "amount_total": 999, "quantity": 1}`
	newMockStripe(t, map[string]string{
		sessionID: expandedSessionJSON(sessionID, created, md, lineItems),
	})

	rr := deliverEvent(t, completedEventJSON("evt_legacy_1", sessionID, created, md))
	require.Equal(t, http.StatusOK, rr.Code)

	rows, err := data.GetOrderRowsBySession(sessionID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(3200), rows[0].AmountCents)
	assert.Equal(t, int64(999), rows[1].AmountCents)
}

func TestOrderStatusRecoversUnrecordedSession(t *testing.T) {
	setupWebhookTest(t)

	sessionID := "cs_test_recover1"
	created := time.Now().Unix()
	md := twoStudentMetadata()
	newMockStripe(t, map[string]string{
		sessionID: expandedSessionJSON(sessionID, created, md, ""),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/order-status?session_id="+sessionID, nil)
	rr := httptest.NewRecorder()
	OrderStatusHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeEnvelope(t, rr)
	assert.Equal(t, "paid", body["status"])
	assert.NotEmpty(t, body["order_number"])

	rows, err := data.GetOrderRowsBySession(sessionID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestOrderStatusPendingSession(t *testing.T) {
	setupWebhookTest(t)

	sessionID := "cs_test_pending1"
	pending := fmt.Sprintf(`{"id": %q, "payment_status": "unpaid", "amount_total": 5600, "currency": "usd", "metadata": {}}`, sessionID)
	newMockStripe(t, map[string]string{sessionID: pending})

	req := httptest.NewRequest(http.MethodGet, "/api/order-status?session_id="+sessionID, nil)
	rr := httptest.NewRecorder()
	OrderStatusHandler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "pending", decodeEnvelope(t, rr)["status"])

	processed, err := data.IsSessionProcessed(sessionID)
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestOrderStatusUnknownSession(t *testing.T) {
	setupWebhookTest(t)
	newMockStripe(t, map[string]string{})

	req := httptest.NewRequest(http.MethodGet, "/api/order-status?session_id=cs_test_missing", nil)
	rr := httptest.NewRecorder()
	OrderStatusHandler(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMakeOrderNumber(t *testing.T) {
	at := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "SYP-20260827-XYZ789", makeOrderNumber("cs_test_a1B2c3XYZ789", at))
	assert.Equal(t, "SYP-20260827-AB12", makeOrderNumber("a-b_1!2", at))
}
