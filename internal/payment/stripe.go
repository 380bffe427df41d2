// internal/payment/stripe.go
package payment

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sypbackend/internal/config"
	"sypbackend/internal/logger"
	"sypbackend/internal/order"
)

var httpClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConnsPerHost: 5,
	},
}

// StripeError represents an error payload from the Stripe API.
type StripeError struct {
	HTTPStatus int    `json:"-"`
	Type       string `json:"type"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Param      string `json:"param,omitempty"`
}

func (e *StripeError) Error() string {
	return fmt.Sprintf("stripe error (HTTP %d, %s): %s", e.HTTPStatus, e.Type, e.Message)
}

// Session is the subset of a Stripe checkout session this service reads.
type Session struct {
	ID              string            `json:"id"`
	URL             string            `json:"url"`
	Created         int64             `json:"created"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	PaymentStatus   string            `json:"payment_status"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerDetails *CustomerDetails  `json:"customer_details"`
	Metadata        map[string]string `json:"metadata"`
	LineItems       *LineItemList     `json:"line_items"`
	PaymentIntent   *PaymentIntentRef `json:"payment_intent"`
}

type CustomerDetails struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type LineItemList struct {
	Data []SessionLineItem `json:"data"`
}

// SessionLineItem is one expanded line item on a completed session.
type SessionLineItem struct {
	Description    string `json:"description"`
	AmountSubtotal int64  `json:"amount_subtotal"`
	AmountTotal    int64  `json:"amount_total"`
	Quantity       int64  `json:"quantity"`
}

// PaymentIntentRef holds either a bare intent id (unexpanded) or the full
// expanded object, depending on how the session was fetched.
type PaymentIntentRef struct {
	ID     string
	Intent *PaymentIntent
}

func (r *PaymentIntentRef) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &r.ID)
	}
	var intent PaymentIntent
	if err := json.Unmarshal(b, &intent); err != nil {
		return err
	}
	r.Intent = &intent
	r.ID = intent.ID
	return nil
}

func (r *PaymentIntentRef) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	if r.Intent != nil {
		return json.Marshal(r.Intent)
	}
	return json.Marshal(r.ID)
}

type PaymentIntent struct {
	ID      string     `json:"id"`
	Charges ChargeList `json:"charges"`
}

type ChargeList struct {
	Data []Charge `json:"data"`
}

type Charge struct {
	ReceiptURL           string                `json:"receipt_url"`
	PaymentMethodDetails *PaymentMethodDetails `json:"payment_method_details"`
}

type PaymentMethodDetails struct {
	Card *CardDetails `json:"card"`
}

type CardDetails struct {
	Brand string `json:"brand"`
	Last4 string `json:"last4"`
}

// ReceiptURL digs the hosted receipt link out of an expanded session.
func (s *Session) ReceiptURL() string {
	if s.PaymentIntent == nil || s.PaymentIntent.Intent == nil {
		return ""
	}
	charges := s.PaymentIntent.Intent.Charges.Data
	if len(charges) == 0 {
		return ""
	}
	return charges[0].ReceiptURL
}

// CardSummary returns the paying card's brand and last4 when expanded.
func (s *Session) CardSummary() (brand, last4 string) {
	if s.PaymentIntent == nil || s.PaymentIntent.Intent == nil {
		return "", ""
	}
	charges := s.PaymentIntent.Intent.Charges.Data
	if len(charges) == 0 || charges[0].PaymentMethodDetails == nil || charges[0].PaymentMethodDetails.Card == nil {
		return "", ""
	}
	card := charges[0].PaymentMethodDetails.Card
	return card.Brand, card.Last4
}

// ParentEmail picks the best recipient: Checkout-collected details first,
// then the prefill, then the flattened metadata.
func (s *Session) ParentEmail() string {
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		return s.CustomerDetails.Email
	}
	if s.CustomerEmail != "" {
		return s.CustomerEmail
	}
	return s.Metadata["parent_email"]
}

// CheckoutParams is everything needed to open a hosted checkout session.
type CheckoutParams struct {
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
	Metadata      map[string]string
	Lines         []order.LineItem
}

// CreateCheckoutSession posts a form-encoded session create call. Amounts
// on the line items come from the catalog; nothing client-supplied is sent.
func CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("phone_number_collection[enabled]", "true")
	if params.CustomerEmail != "" {
		form.Set("customer_email", params.CustomerEmail)
	}

	// Mirror metadata onto the payment intent so charge records carry it too
	for key, value := range params.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
		form.Set(fmt.Sprintf("payment_intent_data[metadata][%s]", key), value)
	}

	for i, line := range params.Lines {
		base := fmt.Sprintf("line_items[%d]", i)
		form.Set(base+"[quantity]", "1")
		form.Set(base+"[price_data][currency]", "usd")
		form.Set(base+"[price_data][unit_amount]", strconv.FormatInt(line.AmountCents, 10))
		form.Set(base+"[price_data][product_data][name]", line.Description)
	}

	endpoint := fmt.Sprintf("%s/v1/checkout/sessions", config.StripeAPIBase())
	body, err := doStripeRequest(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("parsing checkout session response: %w", err)
	}
	if session.ID == "" || session.URL == "" {
		return nil, fmt.Errorf("checkout session response missing id or url")
	}
	return &session, nil
}

// GetCheckoutSession fetches a session with line items and payment intent
// expanded, for reconciliation and receipts.
func GetCheckoutSession(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("missing session id")
	}

	endpoint := fmt.Sprintf(
		"%s/v1/checkout/sessions/%s?expand[]=line_items&expand[]=payment_intent",
		config.StripeAPIBase(), url.PathEscape(sessionID))

	body, err := doStripeRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("parsing checkout session: %w", err)
	}
	return &session, nil
}

func doStripeRequest(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("creating Stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+config.StripeSecretKey())
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing Stripe request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading Stripe response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.LogError("Stripe API error (HTTP %d): %s", resp.StatusCode, string(respBody))
		var wrapper struct {
			Error StripeError `json:"error"`
		}
		if err := json.Unmarshal(respBody, &wrapper); err == nil && wrapper.Error.Message != "" {
			wrapper.Error.HTTPStatus = resp.StatusCode
			return nil, &wrapper.Error
		}
		return nil, &StripeError{
			HTTPStatus: resp.StatusCode,
			Type:       "api_error",
			Message:    strings.TrimSpace(string(respBody)),
		}
	}

	return respBody, nil
}

// createCheckoutSessionWithRetry retries transient failures with backoff.
// Stripe 4xx errors are terminal and returned immediately.
func createCheckoutSessionWithRetry(ctx context.Context, params CheckoutParams, maxRetries int) (*Session, error) {
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		session, err := CreateCheckoutSession(ctx, params)
		if err == nil {
			return session, nil
		}

		if stripeErr, ok := err.(*StripeError); ok && stripeErr.HTTPStatus < 500 {
			return nil, err
		}

		lastErr = err
		logger.LogWarn("Checkout session creation attempt %d failed: %v", attempt, err)

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}

	return nil, fmt.Errorf("failed to create checkout session after %d attempts: %w", maxRetries, lastErr)
}

// GetCheckoutSessionWithRetry is the fetch used during reconciliation.
func GetCheckoutSessionWithRetry(ctx context.Context, sessionID string, maxRetries int) (*Session, error) {
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		session, err := GetCheckoutSession(ctx, sessionID)
		if err == nil {
			return session, nil
		}

		if stripeErr, ok := err.(*StripeError); ok && stripeErr.HTTPStatus < 500 {
			return nil, err
		}

		lastErr = err
		logger.LogWarn("Checkout session fetch attempt %d failed: %v", attempt, err)

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}

	return nil, fmt.Errorf("failed to fetch checkout session after %d attempts: %w", maxRetries, lastErr)
}
