// mock_stripe.go - Mock Stripe API with failure simulation
package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockStripeService provides a mock Stripe API for testing
type MockStripeService struct {
	Server   *httptest.Server
	Sessions map[string]*MockSession
	mu       sync.RWMutex

	// Configuration for failure simulation
	ShouldFailCreate     bool
	TransientFailures    int // 5xx this many create calls before succeeding
	SimulateNetworkDelay time.Duration

	// Counters for tracking
	CreateAttempts int
	FetchAttempts  int

	nextID int
}

type MockSession struct {
	ID            string
	URL           string
	Created       int64
	AmountTotal   int64
	Currency      string
	PaymentStatus string
	CustomerEmail string
	Metadata      map[string]string
	LineItems     []MockLineItem
	ReceiptURL    string
}

type MockLineItem struct {
	Description string
	UnitAmount  int64
	Quantity    int64
}

// NewMockStripeService creates a new mock Stripe service
func NewMockStripeService() *MockStripeService {
	mock := &MockStripeService{
		Sessions: make(map[string]*MockSession),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/checkout/sessions", mock.handleCreateSession)
	mux.HandleFunc("/v1/checkout/sessions/", mock.handleGetSession)

	mock.Server = httptest.NewServer(mux)
	return mock
}

// Close shuts down the mock server
func (m *MockStripeService) Close() {
	m.Server.Close()
}

// GetAPIBase returns the mock server's base URL
func (m *MockStripeService) GetAPIBase() string {
	return m.Server.URL
}

// MarkPaid flips a session to paid and attaches a receipt, simulating the
// hosted checkout completing
func (m *MockStripeService) MarkPaid(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.Sessions[sessionID]; ok {
		session.PaymentStatus = "paid"
		session.ReceiptURL = "https://pay.stripe.test/receipts/" + sessionID
	}
}

// GetSession returns a stored mock session
func (m *MockStripeService) GetSession(sessionID string) *MockSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Sessions[sessionID]
}

// CompletedEventPayload builds a checkout.session.completed event body for
// the given session, as Stripe would deliver it
func (m *MockStripeService) CompletedEventPayload(eventID, sessionID string) []byte {
	m.mu.RLock()
	session := m.Sessions[sessionID]
	m.mu.RUnlock()

	object := map[string]interface{}{
		"id":             sessionID,
		"payment_status": "paid",
	}
	if session != nil {
		object["created"] = session.Created
		object["amount_total"] = session.AmountTotal
		object["currency"] = session.Currency
		object["customer_email"] = session.CustomerEmail
		object["metadata"] = session.Metadata
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"id":   eventID,
		"type": "checkout.session.completed",
		"data": map[string]interface{}{"object": object},
	})
	return payload
}

func (m *MockStripeService) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateAttempts++

	if m.SimulateNetworkDelay > 0 {
		time.Sleep(m.SimulateNetworkDelay)
	}

	if m.ShouldFailCreate {
		writeStripeError(w, http.StatusBadRequest, "invalid_request_error", "mock: session creation rejected")
		return
	}
	if m.TransientFailures > 0 {
		m.TransientFailures--
		writeStripeError(w, http.StatusServiceUnavailable, "api_error", "mock: temporarily unavailable")
		return
	}

	if err := r.ParseForm(); err != nil {
		writeStripeError(w, http.StatusBadRequest, "invalid_request_error", "mock: bad form body")
		return
	}

	m.nextID++
	sessionID := fmt.Sprintf("cs_test_mock%06d", m.nextID)

	session := &MockSession{
		ID:            sessionID,
		URL:           m.Server.URL + "/pay/" + sessionID,
		Created:       time.Now().Unix(),
		Currency:      "usd",
		PaymentStatus: "unpaid",
		CustomerEmail: r.PostFormValue("customer_email"),
		Metadata:      make(map[string]string),
	}

	for key, values := range r.PostForm {
		if strings.HasPrefix(key, "metadata[") && strings.HasSuffix(key, "]") {
			mdKey := key[len("metadata[") : len(key)-1]
			session.Metadata[mdKey] = values[0]
		}
	}

	for i := 0; ; i++ {
		base := fmt.Sprintf("line_items[%d]", i)
		name := r.PostFormValue(base + "[price_data][product_data][name]")
		if name == "" {
			break
		}
		amount, _ := strconv.ParseInt(r.PostFormValue(base+"[price_data][unit_amount]"), 10, 64)
		quantity, _ := strconv.ParseInt(r.PostFormValue(base+"[quantity]"), 10, 64)
		if quantity == 0 {
			quantity = 1
		}
		session.LineItems = append(session.LineItems, MockLineItem{
			Description: name,
			UnitAmount:  amount,
			Quantity:    quantity,
		})
		session.AmountTotal += amount * quantity
	}

	m.Sessions[sessionID] = session

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":      session.ID,
		"url":     session.URL,
		"created": session.Created,
	})
}

func (m *MockStripeService) handleGetSession(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	m.FetchAttempts++

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	sessionID := parts[len(parts)-1]

	session, ok := m.Sessions[sessionID]
	if !ok {
		writeStripeError(w, http.StatusNotFound, "invalid_request_error",
			"No such checkout.session: '"+sessionID+"'")
		return
	}

	lineItems := make([]map[string]interface{}, 0, len(session.LineItems))
	for _, li := range session.LineItems {
		lineItems = append(lineItems, map[string]interface{}{
			"description":     li.Description,
			"amount_subtotal": li.UnitAmount * li.Quantity,
			"amount_total":    li.UnitAmount * li.Quantity,
			"quantity":        li.Quantity,
		})
	}

	body := map[string]interface{}{
		"id":             session.ID,
		"url":            session.URL,
		"created":        session.Created,
		"amount_total":   session.AmountTotal,
		"currency":       session.Currency,
		"payment_status": session.PaymentStatus,
		"customer_email": session.CustomerEmail,
		"metadata":       session.Metadata,
		"line_items":     map[string]interface{}{"data": lineItems},
	}
	if session.PaymentStatus == "paid" {
		body["payment_intent"] = map[string]interface{}{
			"id": "pi_mock_" + session.ID,
			"charges": map[string]interface{}{
				"data": []map[string]interface{}{{
					"receipt_url": session.ReceiptURL,
					"payment_method_details": map[string]interface{}{
						"card": map[string]interface{}{"brand": "visa", "last4": "4242"},
					},
				}},
			},
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func writeStripeError(w http.ResponseWriter, status int, errType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"type": errType, "message": message},
	})
}
