// internal/security/security.go
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"sypbackend/internal/config"
)

// SessionTTL is how long a gallery session stays valid after code entry.
// Expired sessions require re-entering the code; there is no renewal.
const SessionTTL = time.Hour

type sessionClaims struct {
	Code string `json:"code"`
	Exp  int64  `json:"exp"`
}

// SignSessionToken produces a compact signed token binding an access code
// to an expiry: base64url(claims) + "." + base64url(HMAC-SHA256(claims)).
func SignSessionToken(code string, now time.Time) (string, error) {
	secret := config.SessionSecret()
	if secret == "" {
		return "", fmt.Errorf("session secret not configured")
	}

	claims := sessionClaims{Code: code, Exp: now.Add(SessionTTL).Unix()}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal session claims: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + signPart(encoded, secret), nil
}

// VerifySessionToken checks the signature and expiry of a session token and
// returns the access code it was issued for.
func VerifySessionToken(token string, now time.Time) (string, error) {
	secret := config.SessionSecret()
	if secret == "" {
		return "", fmt.Errorf("session secret not configured")
	}

	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return "", fmt.Errorf("malformed session token")
	}

	expected := signPart(parts[0], secret)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(parts[1])) != 1 {
		return "", fmt.Errorf("session token signature mismatch")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode session claims: %w", err)
	}

	var claims sessionClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("parse session claims: %w", err)
	}

	if claims.Exp <= now.Unix() {
		return "", fmt.Errorf("session token expired")
	}
	if claims.Code == "" {
		return "", fmt.Errorf("session token missing code")
	}

	return claims.Code, nil
}

func signPart(encoded, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// CheckAdminSecret compares the provided admin header value against the
// configured secret in constant time. An empty configured secret disables
// admin access entirely.
func CheckAdminSecret(provided string) bool {
	secret := config.MetaAdminSecret()
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) == 1
}

// CORS adds CORS headers and handles OPTIONS requests globally.
func AddCORSHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", config.AllowedOrigin) // From config
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Secret")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
