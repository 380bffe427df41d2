// internal/email/senders.go
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	resendEndpoint   = "https://api.resend.com/emails"
	sendGridEndpoint = "https://api.sendgrid.com/v3/mail/send"
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

func sendWithResend(ctx context.Context, config EmailConfig, msg Message) error {
	payload := map[string]interface{}{
		"from":    config.From,
		"to":      []string{msg.To},
		"subject": msg.Subject,
		"html":    msg.HTML,
		"text":    msg.Text,
	}
	if config.ReplyTo != "" {
		payload["reply_to"] = config.ReplyTo
	}

	return postJSON(ctx, resendEndpoint, config.ResendAPIKey, payload, "Resend")
}

func sendWithSendGrid(ctx context.Context, config EmailConfig, msg Message) error {
	fromName, fromAddr := splitAddress(config.From)
	if fromName == "" {
		fromName = "Scott Ymker Photography"
	}

	payload := map[string]interface{}{
		"personalizations": []map[string]interface{}{
			{"to": []map[string]string{{"email": msg.To}}},
		},
		"from": map[string]string{
			"email": fromAddr,
			"name":  fromName,
		},
		"subject": msg.Subject,
		"content": []map[string]string{
			{"type": "text/plain", "value": msg.Text},
			{"type": "text/html", "value": msg.HTML},
		},
	}
	if config.ReplyTo != "" {
		_, replyAddr := splitAddress(config.ReplyTo)
		payload["reply_to"] = map[string]string{"email": replyAddr}
	}

	return postJSON(ctx, sendGridEndpoint, config.SendGridAPIKey, payload, "SendGrid")
}

func postJSON(ctx context.Context, endpoint, apiKey string, payload interface{}, provider string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", provider, err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing %s request: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned status %d: %s", provider, resp.StatusCode, string(respBody))
	}
	return nil
}
