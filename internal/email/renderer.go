// internal/email/renderer.go
package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"
)

// ReceiptStudent is one student row on a receipt.
type ReceiptStudent struct {
	Name        string
	PackageLine string
	AmountCents int64
	HasAmount   bool
}

// ReceiptData is the fixed input shape for receipt rendering. The webhook
// reconciler fills it; renderers may use any subset of it.
type ReceiptData struct {
	BrandName    string
	LogoURL      string
	OrderNumber  string
	CreatedAt    time.Time
	TotalCents   int64
	Currency     string
	ParentEmail  string
	ReceiptURL   string
	ViewOrderURL string
	Students     []ReceiptStudent
	CardBrand    string
	CardLast4    string
}

// Renderer turns receipt data into a sendable subject and bodies.
type Renderer interface {
	Render(data ReceiptData) (subject, html, text string, err error)
}

func formatMoney(cents int64, currency string) string {
	symbol := "$"
	if !strings.EqualFold(currency, "usd") && currency != "" {
		symbol = strings.ToUpper(currency) + " "
	}
	return fmt.Sprintf("%s%.2f", symbol, float64(cents)/100)
}

func formatPaidAt(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Format("Jan 02, 2006 3:04 PM")
}

var receiptFuncs = map[string]interface{}{
	"money":  formatMoney,
	"paidAt": formatPaidAt,
	"upper":  strings.ToUpper,
}

var receiptHTMLTmpl = htmltemplate.Must(htmltemplate.New("receipt_html").
	Funcs(receiptFuncs).Parse(`<div style="background:#f6f7f9;padding:24px 12px;font-family:Inter,system-ui,-apple-system,Segoe UI,Roboto,Arial,sans-serif;color:#111">
  <div style="max-width:700px;margin:0 auto">
    <div style="display:flex;align-items:center;gap:10px;margin-bottom:12px">
      {{if .LogoURL}}<img src="{{.LogoURL}}" alt="{{.BrandName}}" style="height:36px;width:auto" />{{end}}
      <div style="font-weight:700">{{.BrandName}}</div>
    </div>

    <div style="background:#fff;border:1px solid #e8ebef;border-radius:14px;padding:18px">
      <div style="font-size:18px;font-weight:700;margin-bottom:2px">Thank you for your purchase!</div>
      <div style="color:#68707a">Order <strong>{{.OrderNumber}}</strong> &bull; Paid {{paidAt .CreatedAt}}</div>
      <hr style="border:none;border-top:1px solid #e8ebef;margin:14px 0" />

      <table style="width:100%;border-collapse:collapse">
        <thead>
          <tr>
            <th style="text-align:left;color:#68707a;font-size:13px;font-weight:600;padding-bottom:6px">Student</th>
            <th style="text-align:left;color:#68707a;font-size:13px;font-weight:600;padding-bottom:6px">Package / Add-ons</th>
            <th style="text-align:right;color:#68707a;font-size:13px;font-weight:600;padding-bottom:6px">Amount</th>
          </tr>
        </thead>
        <tbody>
          {{- range .Students}}
          <tr>
            <td style="padding:8px 0;vertical-align:top">{{.Name}}</td>
            <td style="padding:8px 0;vertical-align:top;color:#555">{{.PackageLine}}</td>
            <td style="padding:8px 0;vertical-align:top;text-align:right;white-space:nowrap">{{if .HasAmount}}{{money .AmountCents $.Currency}}{{end}}</td>
          </tr>
          {{- end}}
        </tbody>
        <tfoot>
          <tr>
            <td></td>
            <td style="padding-top:10px;color:#68707a;text-align:right">Total</td>
            <td style="padding-top:10px;text-align:right;font-weight:700">{{money .TotalCents .Currency}}</td>
          </tr>
        </tfoot>
      </table>

      <div style="margin-top:12px;color:#68707a">
        {{if .CardBrand}}Payment method: {{upper .CardBrand}} &bull;&bull;&bull;&bull; {{.CardLast4}}<br/>{{end}}
        Receipt sent to: {{if .ParentEmail}}{{.ParentEmail}}{{else}}your email{{end}}
      </div>

      <div style="margin-top:14px">
        {{if .ViewOrderURL}}<a href="{{.ViewOrderURL}}" style="text-decoration:none;background:#0ea5e9;color:#fff;padding:10px 14px;border-radius:999px;display:inline-block">View receipt</a>{{end}}
        {{if .ReceiptURL}}<a href="{{.ReceiptURL}}" style="text-decoration:none;border:1px solid #e8ebef;padding:10px 14px;border-radius:999px;display:inline-block;color:#111">Download Stripe receipt</a>{{end}}
      </div>
    </div>

    <div style="color:#68707a;font-size:13px;margin-top:10px">
      Questions? Reply to this email and we'll help.
    </div>
  </div>
</div>`))

var receiptTextTmpl = texttemplate.Must(texttemplate.New("receipt_text").
	Funcs(receiptFuncs).Parse(`{{.BrandName}} - Receipt
Order: {{.OrderNumber}}
Paid:  {{paidAt .CreatedAt}}

{{range .Students}}* {{.Name}} - {{.PackageLine}}{{if .HasAmount}} - {{money .AmountCents $.Currency}}{{end}}
{{end}}
Total: {{money .TotalCents .Currency}}
{{if .CardBrand}}Payment method: {{upper .CardBrand}} **** {{.CardLast4}}
{{end}}{{if .ParentEmail}}Receipt email: {{.ParentEmail}}
{{end}}{{if .ViewOrderURL}}View receipt: {{.ViewOrderURL}}
{{end}}{{if .ReceiptURL}}Stripe receipt: {{.ReceiptURL}}
{{end}}`))

// ModernReceiptRenderer is the default receipt look.
type ModernReceiptRenderer struct{}

func (ModernReceiptRenderer) Render(data ReceiptData) (string, string, string, error) {
	if data.BrandName == "" {
		data.BrandName = "Scott Ymker Photography"
	}
	if data.Currency == "" {
		data.Currency = "usd"
	}

	subject := fmt.Sprintf("Receipt • Order %s", data.OrderNumber)

	var htmlBuf bytes.Buffer
	if err := receiptHTMLTmpl.Execute(&htmlBuf, data); err != nil {
		return "", "", "", fmt.Errorf("failed to render receipt HTML: %w", err)
	}

	var textBuf bytes.Buffer
	if err := receiptTextTmpl.Execute(&textBuf, data); err != nil {
		return "", "", "", fmt.Errorf("failed to render receipt text: %w", err)
	}

	return subject, htmlBuf.String(), textBuf.String(), nil
}
