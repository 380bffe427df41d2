// internal/payment/checkout.go
package payment

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"sypbackend/internal/catalog"
	"sypbackend/internal/config"
	"sypbackend/internal/logger"
	"sypbackend/internal/middleware"
	"sypbackend/internal/order"
)

// Global catalog service for checkout handlers
var catalogService *catalog.Service

// SetCatalogService injects the catalog service
func SetCatalogService(service *catalog.Service) {
	catalogService = service
}

// ClientLineItem mirrors the line items the order pages build for display.
// Amounts in here are never trusted; they only let us detect a stale or
// tampered page before the parent reaches the payment form.
type ClientLineItem struct {
	Quantity  int64 `json:"quantity"`
	PriceData struct {
		Currency    string `json:"currency"`
		UnitAmount  int64  `json:"unit_amount"`
		ProductData struct {
			Name string `json:"name"`
		} `json:"product_data"`
	} `json:"price_data"`
}

// CheckoutRequest accepts both order page shapes: the multi-student form
// posts parent+students; the old single-student page posts flat fields,
// either top-level on the body or wrapped in a metadata map, plus
// prebuilt line items.
type CheckoutRequest struct {
	Parent   *order.Parent       `json:"parent,omitempty"`
	Students []order.StudentLine `json:"students,omitempty"`

	Email     string            `json:"email,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	LineItems []ClientLineItem  `json:"line_items,omitempty"`

	// Flat single-student fields, read straight off the body.
	Package      string    `json:"package,omitempty"`
	Addons       addonList `json:"addons,omitempty"`
	StudentFirst string    `json:"student_first,omitempty"`
	StudentLast  string    `json:"student_last,omitempty"`
	Teacher      string    `json:"teacher,omitempty"`
	Grade        string    `json:"grade,omitempty"`
	Background   string    `json:"background,omitempty"`
	ParentName   string    `json:"parent_name,omitempty"`
	ParentPhone  string    `json:"parent_phone,omitempty"`
	ParentEmail  string    `json:"parent_email,omitempty"`
}

// addonList tolerates both encodings the old order page produced: a JSON
// array of codes and a single comma-joined string.
type addonList []string

func (a *addonList) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*a = nil
		return nil
	}
	if b[0] == '[' {
		var codes []string
		if err := json.Unmarshal(b, &codes); err != nil {
			return err
		}
		*a = codes
		return nil
	}
	var joined string
	if err := json.Unmarshal(b, &joined); err != nil {
		return err
	}
	var codes []string
	for _, part := range strings.Split(joined, ",") {
		if part = strings.TrimSpace(part); part != "" {
			codes = append(codes, part)
		}
	}
	*a = codes
	return nil
}

// CreateCheckoutSessionHandler validates the order, recomputes every amount
// from the catalog and opens a hosted checkout session.
func CreateCheckoutSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "POST required", "")
		return
	}

	var req CheckoutRequest
	if !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_order", "content-type must be application/json", "")
		return
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_order", "Invalid JSON body", err.Error())
		return
	}

	ord, err := orderFromRequest(&req)
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_order", err.Error(), "")
		return
	}

	// The multi-student form collects full parent contact; the legacy
	// single-student shape never did, so it validates selections only.
	if len(req.Students) > 0 {
		err = ord.Validate(catalogService)
	} else {
		err = ord.ValidateSelections(catalogService)
	}
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_order", err.Error(), "")
		return
	}

	summary, err := ord.ComputeSummary(catalogService)
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_order", err.Error(), "")
		return
	}

	// Tamper check: a client-proposed total that disagrees with the catalog
	// means a stale price table or a modified page.
	if len(req.LineItems) > 0 {
		var clientTotal int64
		for _, li := range req.LineItems {
			qty := li.Quantity
			if qty == 0 {
				qty = 1
			}
			clientTotal += li.PriceData.UnitAmount * qty
		}
		if clientTotal != summary.TotalCents {
			logger.LogWarn("Checkout total mismatch from %s: client=%d, computed=%d",
				logger.GetClientIP(r), clientTotal, summary.TotalCents)
			middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_order",
				"Order total does not match current prices. Please reload the order page.",
				fmt.Sprintf("client total %d, expected %d", clientTotal, summary.TotalCents))
			return
		}
	}

	metadata, err := order.EncodeMetadata(ord)
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_order", err.Error(), "")
		return
	}

	customerEmail := strings.TrimSpace(req.Email)
	if customerEmail == "" {
		customerEmail = strings.TrimSpace(ord.Parent.Email)
	}

	params := CheckoutParams{
		SuccessURL:    config.SiteBaseURL + "/success.html?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     config.SiteBaseURL + "/cancel.html",
		CustomerEmail: customerEmail,
		Metadata:      metadata,
		Lines:         summary.Lines,
	}

	session, err := createCheckoutSessionWithRetry(r.Context(), params, 3)
	if err != nil {
		if stripeErr, ok := err.(*StripeError); ok {
			middleware.WriteAPIError(w, r, stripeErr.HTTPStatus, "stripe_error", "Stripe error", stripeErr.Message)
			return
		}
		logger.LogError("Checkout session creation failed: %v", err)
		middleware.WriteAPIError(w, r, http.StatusBadGateway, "stripe_error", "Payment provider unavailable", "")
		return
	}

	logger.LogInfo("Checkout session created: id=%s students=%d total_cents=%d",
		session.ID, len(ord.Students), summary.TotalCents)

	middleware.WriteAPISuccess(w, r, map[string]interface{}{
		"url":         session.URL,
		"session_id":  session.ID,
		"total_cents": summary.TotalCents,
	})
}

// orderFromRequest normalizes the two accepted request shapes into an order.
func orderFromRequest(req *CheckoutRequest) (*order.Order, error) {
	if len(req.Students) > 0 {
		if req.Parent == nil {
			return nil, fmt.Errorf("missing parent contact block")
		}
		return &order.Order{Parent: *req.Parent, Students: req.Students}, nil
	}

	// Legacy flat shape: fields arrive either in a metadata map or as
	// top-level keys on the body itself. Explicit metadata wins.
	md := make(map[string]string, len(req.Metadata)+8)
	for k, v := range req.Metadata {
		md[k] = v
	}
	fill := func(key, val string) {
		if md[key] == "" && strings.TrimSpace(val) != "" {
			md[key] = val
		}
	}
	fill("package", req.Package)
	if md["addons"] == "" && len(req.Addons) > 0 {
		md["addons"] = strings.Join(req.Addons, ",")
	}
	fill("student_first", req.StudentFirst)
	fill("student_last", req.StudentLast)
	fill("teacher", req.Teacher)
	fill("grade", req.Grade)
	fill("background", req.Background)
	fill("parent_name", req.ParentName)
	fill("parent_phone", req.ParentPhone)
	fill("parent_email", req.ParentEmail)
	fill("parent_email", req.Email)

	students := order.DecodeMetadata(md)
	if len(students) == 0 {
		return nil, fmt.Errorf("order has no students")
	}

	ord := &order.Order{
		Parent: order.Parent{
			Name:  md["parent_name"],
			Phone: md["parent_phone"],
			Email: md["parent_email"],
		},
	}
	for _, s := range students {
		ord.Students = append(ord.Students, order.StudentLine{
			First:      s.First,
			Last:       s.Last,
			Teacher:    s.Teacher,
			Grade:      s.Grade,
			Background: s.Background,
			Package:    s.Package,
			Addons:     s.Addons,
		})
	}
	return ord, nil
}
