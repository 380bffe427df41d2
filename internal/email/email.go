// internal/email/email.go
package email

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"sypbackend/internal/logger"
)

const defaultFrom = "Scott Ymker Photography <no-reply@scottymkerphotos.com>"

// EmailConfig holds email configuration
type EmailConfig struct {
	From           string
	ReplyTo        string
	ResendAPIKey   string
	SendGridAPIKey string
	DebugRecipient string
	AlertRecipient string
	MockMode       bool
	LogEmails      bool
}

// LoadEmailConfig loads email configuration from environment variables
func LoadEmailConfig() EmailConfig {
	return EmailConfig{
		From:           getEnvOrDefault("EMAIL_FROM", defaultFrom),
		ReplyTo:        os.Getenv("REPLY_TO"),
		ResendAPIKey:   os.Getenv("RESEND_API_KEY"),
		SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		DebugRecipient: os.Getenv("DEBUG_EMAIL_TO"),
		AlertRecipient: getEnvOrDefault("EMAIL_ALERT_RECIPIENT", os.Getenv("DEBUG_EMAIL_TO")),
		MockMode:       getEnvOrDefault("EMAIL_MOCK_MODE", "false") == "true",
		LogEmails:      getEnvOrDefault("EMAIL_LOG_MODE", "true") == "true",
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// HasProvider reports whether any outbound provider is configured.
func (c EmailConfig) HasProvider() bool {
	return c.ResendAPIKey != "" || c.SendGridAPIKey != ""
}

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Send dispatches a message through the first configured provider.
// Mock mode logs the message and reports success.
func Send(ctx context.Context, config EmailConfig, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("missing recipient")
	}

	if config.MockMode {
		logger.LogInfo("========== MOCK EMAIL ==========")
		logger.LogInfo("To: %s", msg.To)
		logger.LogInfo("From: %s", config.From)
		logger.LogInfo("Subject: %s", msg.Subject)
		for _, line := range strings.Split(msg.Text, "\n") {
			logger.LogInfo("   %s", line)
		}
		logger.LogInfo("================================")
		return nil
	}

	if config.LogEmails {
		logger.LogInfo("Sending email to %s with subject: %s", msg.To, msg.Subject)
	}

	var err error
	switch {
	case config.ResendAPIKey != "":
		err = sendWithResend(ctx, config, msg)
	case config.SendGridAPIKey != "":
		err = sendWithSendGrid(ctx, config, msg)
	default:
		return fmt.Errorf("no email provider configured")
	}
	if err != nil {
		return err
	}

	if config.LogEmails {
		logger.LogInfo("Email sent successfully to %s", msg.To)
	}
	return nil
}

// SendAlertEmail notifies the operator about a system event. Failures are
// logged by callers; alerts never block the flow that raised them.
func SendAlertEmail(ctx context.Context, subject, body string) error {
	config := LoadEmailConfig()
	if config.AlertRecipient == "" {
		logger.LogWarn("No alert recipient configured, dropping alert: %s", subject)
		return nil
	}
	return Send(ctx, config, Message{
		To:      config.AlertRecipient,
		Subject: subject,
		Text:    body,
	})
}

// SendAdminOrderNotification tells the operator about a reconciled order.
func SendAdminOrderNotification(ctx context.Context, orderNumber, parentEmail string, studentCount int, totalCents int64, createdAt time.Time) error {
	subject := fmt.Sprintf("New order %s (%d student(s))", orderNumber, studentCount)
	body := fmt.Sprintf(`New order reconciled:

Order:    %s
Parent:   %s
Students: %d
Total:    $%.2f
Paid:     %s (%s)
`,
		orderNumber,
		parentEmail,
		studentCount,
		float64(totalCents)/100,
		createdAt.Format("January 2, 2006 at 3:04 PM"),
		humanize.Time(createdAt),
	)
	return SendAlertEmail(ctx, subject, body)
}

var angleAddrRe = regexp.MustCompile(`<([^>]+)>`)

// splitAddress splits `Name <addr@host>` into its parts. A bare address
// comes back with an empty name.
func splitAddress(full string) (name, addr string) {
	if m := angleAddrRe.FindStringSubmatch(full); m != nil {
		name = strings.TrimSpace(angleAddrRe.ReplaceAllString(full, ""))
		return name, m[1]
	}
	return "", strings.TrimSpace(full)
}
