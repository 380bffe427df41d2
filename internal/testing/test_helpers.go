// test_helpers.go - Test suite setup shared by the integration tests
package testing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sypbackend/internal/catalog"
	"sypbackend/internal/config"
	"sypbackend/internal/data"
	"sypbackend/internal/gallery"
	"sypbackend/internal/middleware"
	"sypbackend/internal/payment"
	"sypbackend/internal/security"
	"sypbackend/internal/webhook"
)

const (
	TestWebhookSecret = "whsec_integration_test"
	TestAdminSecret   = "integration-admin-secret"
)

// TestSuite wires the full API surface against a mock Stripe backend and a
// throwaway database
type TestSuite struct {
	Server  *httptest.Server
	Client  *http.Client
	Stripe  *MockStripeService
	Catalog *catalog.Service
	DataDir string
}

// NewTestSuite creates a fully wired suite. Environment, database, catalog
// and the mock Stripe service are torn down with the test.
func NewTestSuite(t *testing.T) *TestSuite {
	t.Helper()

	testDir := filepath.Join(os.TempDir(), fmt.Sprintf("syptest_%d_%d",
		time.Now().UnixNano(), os.Getpid()))
	if err := os.MkdirAll(testDir, 0755); err != nil {
		t.Fatalf("Failed to create test directory: %v", err)
	}

	t.Setenv("STRIPE_SECRET_KEY", "sk_test_integration")
	t.Setenv("STRIPE_WEBHOOK_SECRET", TestWebhookSecret)
	t.Setenv("SESSION_SECRET", "integration-session-secret")
	t.Setenv("META_ADMIN_SECRET", TestAdminSecret)
	t.Setenv("SITE_BASE_URL", "https://example.test")
	t.Setenv("SHEETS_WEBAPP_URL", "")
	t.Setenv("EMAIL_MOCK_MODE", "true")

	if err := config.LoadStripeConfig(); err != nil {
		t.Fatalf("Failed to load Stripe config: %v", err)
	}
	config.LoadCORSConfig()
	config.LoadSiteConfig()
	if err := config.LoadSecretsConfig(); err != nil {
		t.Fatalf("Failed to load secrets config: %v", err)
	}

	dbPath := filepath.Join(testDir, "test.db")
	if err := data.InitDB(dbPath); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	if err := data.CreateTables(); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	catalogService := catalog.NewService()
	payment.SetCatalogService(catalogService)
	webhook.SetReconciler(&webhook.Reconciler{Catalog: catalogService})

	mockStripe := NewMockStripeService()
	config.SetStripeAPIBase(mockStripe.GetAPIBase())

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("Failed to create cookie jar: %v", err)
	}

	suite := &TestSuite{
		Stripe:  mockStripe,
		Catalog: catalogService,
		DataDir: testDir,
		Client:  &http.Client{Timeout: 30 * time.Second, Jar: jar},
	}
	suite.Server = httptest.NewServer(suite.routes())

	t.Cleanup(func() {
		suite.Server.Close()
		mockStripe.Close()
		data.CloseDB()
		os.RemoveAll(testDir)
	})

	return suite
}

// routes mirrors the production route table
func (ts *TestSuite) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/create-checkout-session", payment.CreateCheckoutSessionHandler)
	apiMux.HandleFunc("/stripe-webhook", webhook.StripeWebhookHandler)
	apiMux.HandleFunc("/order-status", webhook.OrderStatusHandler)
	apiMux.HandleFunc("/get-session", webhook.GetSessionHandler)
	apiMux.HandleFunc("/verify-code", gallery.VerifyCodeHandler)
	apiMux.HandleFunc("/gallery", gallery.GalleryHandler)
	apiMux.HandleFunc("/admin/student-meta", gallery.AdminSetStudentMetaHandler)

	apiHandler := middleware.APIMiddleware(http.StripPrefix("/api", apiMux).ServeHTTP)
	mux.Handle("/api/", security.AddCORSHeaders(apiHandler))

	return mux
}

// APIResponse is the decoded response envelope. Success responses carry
// Data; error responses carry Code and Message at the top level.
type APIResponse struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details string                 `json:"details"`
}

// PostJSON sends a JSON body and decodes the envelope
func (ts *TestSuite) PostJSON(t *testing.T, path string, body interface{}) (int, *APIResponse) {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal request body: %v", err)
	}

	resp, err := ts.Client.Post(ts.Server.URL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	return resp.StatusCode, decodeAPIResponse(t, resp.Body)
}

// GetJSON issues a GET and decodes the envelope
func (ts *TestSuite) GetJSON(t *testing.T, path string) (int, *APIResponse) {
	t.Helper()

	resp, err := ts.Client.Get(ts.Server.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	return resp.StatusCode, decodeAPIResponse(t, resp.Body)
}

// DeliverWebhook signs and posts an event payload like Stripe would
func (ts *TestSuite) DeliverWebhook(t *testing.T, payload []byte) (int, *APIResponse) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, ts.Server.URL+"/api/stripe-webhook", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Failed to build webhook request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", webhook.ComputeSignature(payload, TestWebhookSecret, time.Now()))

	resp, err := ts.Client.Do(req)
	if err != nil {
		t.Fatalf("Webhook delivery failed: %v", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode, decodeAPIResponse(t, resp.Body)
}

func decodeAPIResponse(t *testing.T, body io.Reader) *APIResponse {
	t.Helper()

	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}

	var decoded APIResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Failed to decode response %q: %v", string(raw), err)
	}
	return &decoded
}
