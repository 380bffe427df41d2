// api_test.go - Endpoint-level behavior: methods, validation, CORS, gallery
package testing

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestHealthz(t *testing.T) {
	suite := NewTestSuite(t)

	resp, err := suite.Client.Get(suite.Server.URL + "/healthz")
	if err != nil {
		t.Fatalf("Health check failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "OK" {
		t.Errorf("Expected OK, got %q", string(body))
	}
}

func TestCORSPreflightAndHeaders(t *testing.T) {
	suite := NewTestSuite(t)

	req, _ := http.NewRequest(http.MethodOptions, suite.Server.URL+"/api/create-checkout-session", nil)
	resp, err := suite.Client.Do(req)
	if err != nil {
		t.Fatalf("Preflight failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("Expected 200 preflight, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Error("Missing Access-Control-Allow-Origin header")
	}
	if !strings.Contains(resp.Header.Get("Access-Control-Allow-Headers"), "X-Admin-Secret") {
		t.Error("X-Admin-Secret not in allowed headers")
	}
}

func TestRequestIDHeader(t *testing.T) {
	suite := NewTestSuite(t)

	status, _ := suite.GetJSON(t, "/api/order-status")
	if status != 400 {
		t.Errorf("Expected 400 without session_id, got %d", status)
	}

	resp, err := suite.Client.Get(suite.Server.URL + "/api/order-status")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("Missing X-Request-ID header")
	}
}

func TestCheckoutValidationFailures(t *testing.T) {
	suite := NewTestSuite(t)

	cases := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing parent", map[string]interface{}{
			"students": []map[string]interface{}{{"first": "Ada", "package": "A"}},
		}},
		{"no students", map[string]interface{}{
			"parent": map[string]string{"name": "P", "phone": "5555550100", "email": "p@example.com"},
		}},
		{"unknown package code", func() map[string]interface{} {
			req := SingleStudentCheckoutRequest()
			req["students"].([]map[string]interface{})[0]["package"] = "Z9"
			return req
		}()},
		{"addons without package", func() map[string]interface{} {
			req := SingleStudentCheckoutRequest()
			student := req["students"].([]map[string]interface{})[0]
			student["package"] = ""
			student["addons"] = []string{"F"}
			return req
		}()},
		{"bad parent email", func() map[string]interface{} {
			req := SingleStudentCheckoutRequest()
			req["parent"].(map[string]string)["email"] = "not-an-email"
			return req
		}()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, resp := suite.PostJSON(t, "/api/create-checkout-session", tc.body)
			if status != 400 {
				t.Errorf("Expected 400, got %d", status)
			}
			if resp.Code != "invalid_order" {
				t.Errorf("Expected invalid_order, got %q", resp.Code)
			}
		})
	}

	if suite.Stripe.CreateAttempts != 0 {
		t.Errorf("Invalid orders reached Stripe (%d attempts)", suite.Stripe.CreateAttempts)
	}
}

func TestCheckoutRejectsNonJSON(t *testing.T) {
	suite := NewTestSuite(t)

	resp, err := suite.Client.Post(suite.Server.URL+"/api/create-checkout-session",
		"text/plain", strings.NewReader("not json"))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 400 {
		t.Errorf("Expected 400 for non-JSON body, got %d", resp.StatusCode)
	}
}

func TestGalleryEndToEnd(t *testing.T) {
	suite := NewTestSuite(t)

	// Operator seeds the student record
	meta := map[string]interface{}{
		"code":          "abc234",
		"student_label": "Ada L.",
		"event_label":   "Fall Picture Day 2026",
		"grade":         "3",
		"preview_keys":  []string{"fall2026/ABC234/pose1.jpg"},
	}
	payload, _ := json.Marshal(meta)
	req, _ := http.NewRequest(http.MethodPost, suite.Server.URL+"/api/admin/student-meta", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-admin-secret", TestAdminSecret)
	resp, err := suite.Client.Do(req)
	if err != nil {
		t.Fatalf("Admin upsert failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 204 {
		t.Fatalf("Expected 204 from admin upsert, got %d", resp.StatusCode)
	}

	// Without the secret the same call is rejected
	req, _ = http.NewRequest(http.MethodPost, suite.Server.URL+"/api/admin/student-meta", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err = suite.Client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 401 {
		t.Errorf("Expected 401 without admin secret, got %d", resp.StatusCode)
	}

	// Parent enters the code; the cookie is carried by hand because the
	// session cookie is Secure and the test server speaks plain HTTP
	verifyResp, err := suite.Client.Post(suite.Server.URL+"/api/verify-code",
		"application/json", strings.NewReader(`{"code":"ABC234"}`))
	if err != nil {
		t.Fatalf("Verify code failed: %v", err)
	}
	verifyResp.Body.Close()
	if verifyResp.StatusCode != 200 {
		t.Fatalf("Expected 200 verifying code, got %d", verifyResp.StatusCode)
	}

	var sessionCookie *http.Cookie
	for _, c := range verifyResp.Cookies() {
		if c.Name == "sesh" {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("No sesh cookie issued")
	}

	// Gated read with the session cookie
	req, _ = http.NewRequest(http.MethodGet, suite.Server.URL+"/api/gallery", nil)
	req.AddCookie(sessionCookie)
	resp, err = suite.Client.Do(req)
	if err != nil {
		t.Fatalf("Gallery fetch failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("Expected 200 from gallery, got %d", resp.StatusCode)
	}

	envelope := decodeAPIResponse(t, resp.Body)
	if envelope.Data["studentLabel"] != "Ada L." {
		t.Errorf("Expected student label, got %v", envelope.Data["studentLabel"])
	}
	images, _ := envelope.Data["images"].([]interface{})
	if len(images) != 1 {
		t.Fatalf("Expected 1 preview image, got %d", len(images))
	}

	// And without a cookie the gallery stays shut
	resp, err = suite.Client.Get(suite.Server.URL + "/api/gallery")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 401 {
		t.Errorf("Expected 401 without session, got %d", resp.StatusCode)
	}
}
