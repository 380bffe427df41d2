// internal/webhook/signature.go
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureTolerance bounds how stale a signed timestamp may be. Deliveries
// outside the window are rejected even with a valid MAC, limiting replays.
const SignatureTolerance = 300 * time.Second

// VerifySignature checks a Stripe-Signature header against the raw request
// body. The header carries `t=<unix>,v1=<hex>` pairs; the MAC covers the
// exact raw bytes, so callers must pass the body before any parsing.
// Several v1 entries may appear during secret rotation; any match passes.
func VerifySignature(payload []byte, header, secret string, now time.Time) error {
	if header == "" {
		return fmt.Errorf("missing signature header")
	}
	if secret == "" {
		return fmt.Errorf("webhook secret not configured")
	}

	var timestamp string
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			candidates = append(candidates, value)
		}
	}

	if timestamp == "" || len(candidates) == 0 {
		return fmt.Errorf("malformed signature header")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid signature timestamp: %w", err)
	}

	age := now.Unix() - ts
	if age < 0 {
		age = -age
	}
	if age > int64(SignatureTolerance/time.Second) {
		return fmt.Errorf("signature timestamp outside tolerance (%ds old)", age)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, candidate := range candidates {
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			return nil
		}
	}
	return fmt.Errorf("signature mismatch")
}

// ComputeSignature produces a header value for a payload. Tests use it to
// sign synthetic deliveries.
func ComputeSignature(payload []byte, secret string, at time.Time) string {
	timestamp := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}
