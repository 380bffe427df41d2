// internal/gallery/gallery.go
package gallery

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"sypbackend/internal/config"
	"sypbackend/internal/data"
	"sypbackend/internal/logger"
	"sypbackend/internal/middleware"
	"sypbackend/internal/security"
)

// CodeLength is the fixed length of a gallery access code.
const CodeLength = 6

const sessionCookieName = "sesh"

// NormalizeCode uppercases the input and strips everything outside the
// code alphabet, which omits I, O, 0 and 1 to avoid transcription mixups.
func NormalizeCode(raw string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			r -= 'a' - 'A'
		}
		switch {
		case r >= 'A' && r <= 'H', r >= 'J' && r <= 'N', r >= 'P' && r <= 'Z':
			return r
		case r >= '2' && r <= '9':
			return r
		}
		return -1
	}, raw)
}

// VerifyCodeHandler exchanges a printed access code for a gallery session
// cookie. The cookie is the only credential later reads accept.
func VerifyCodeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "POST required", "")
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request", "Invalid request body", "")
		return
	}

	code := NormalizeCode(req.Code)
	if len(code) != CodeLength {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_code", "Access code must be 6 characters", "")
		return
	}

	if _, err := data.GetStudentByCode(code); err != nil {
		if err == sql.ErrNoRows {
			logger.LogWarn("Gallery code rejected from %s", logger.GetClientIP(r))
			middleware.WriteAPIError(w, r, http.StatusNotFound, "unknown_code", "Access code not recognized", "")
			return
		}
		logger.LogError("Gallery code lookup failed: %v", err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "internal_error", "Lookup failed", "")
		return
	}

	token, err := security.SignSessionToken(code, time.Now())
	if err != nil {
		logger.LogError("Gallery token signing failed: %v", err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "internal_error", "Session setup failed", "")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(security.SessionTTL / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	middleware.WriteAPISuccess(w, r, map[string]interface{}{"ok": true})
}

// GalleryHandler returns the preview set for the session's student. The
// code never travels in the URL; it lives only in the signed cookie.
func GalleryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "GET required", "")
		return
	}

	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusUnauthorized, "no_session", "Enter your access code first", "")
		return
	}

	code, err := security.VerifySessionToken(cookie.Value, time.Now())
	if err != nil {
		middleware.WriteAPIError(w, r, http.StatusUnauthorized, "expired_session", "Session expired, enter your access code again", "")
		return
	}

	student, err := data.GetStudentByCode(code)
	if err != nil {
		if err == sql.ErrNoRows {
			middleware.WriteAPIError(w, r, http.StatusNotFound, "unknown_code", "Access code not recognized", "")
			return
		}
		logger.LogError("Gallery lookup failed for session code: %v", err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "internal_error", "Lookup failed", "")
		return
	}

	images := make([]string, 0, len(student.PreviewKeys))
	for _, key := range student.PreviewKeys {
		images = append(images, config.PreviewBaseURL+"/"+strings.TrimLeft(key, "/"))
	}

	w.Header().Set("Cache-Control", "no-store")
	middleware.WriteAPISuccess(w, r, map[string]interface{}{
		"code":         student.Code,
		"studentLabel": student.StudentLabel,
		"eventName":    student.EventLabel,
		"grade":        student.Grade,
		"teacher":      student.Teacher,
		"school":       student.School,
		"images":       images,
	})
}

// AdminSetStudentMetaHandler lets the operator create or patch a student
// record. Auth is the shared x-admin-secret header; omitted fields keep
// their stored values.
func AdminSetStudentMetaHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		middleware.WriteAPIError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "POST required", "")
		return
	}

	if !security.CheckAdminSecret(r.Header.Get("x-admin-secret")) {
		logger.LogWarn("Admin meta update rejected from %s", logger.GetClientIP(r))
		middleware.WriteAPIError(w, r, http.StatusUnauthorized, "unauthorized", "Invalid admin secret", "")
		return
	}

	var req struct {
		Code         string    `json:"code"`
		StudentLabel *string   `json:"student_label"`
		EventLabel   *string   `json:"event_label"`
		Grade        *string   `json:"grade"`
		Teacher      *string   `json:"teacher"`
		School       *string   `json:"school"`
		PreviewKeys  *[]string `json:"preview_keys"`
	}
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request", "Invalid request body", "")
		return
	}

	code := NormalizeCode(req.Code)
	if len(code) != CodeLength {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_code", "Access code must be 6 characters", "")
		return
	}

	err := data.UpsertStudentMeta(code, data.StudentMetaUpdate{
		StudentLabel: req.StudentLabel,
		EventLabel:   req.EventLabel,
		Grade:        req.Grade,
		Teacher:      req.Teacher,
		School:       req.School,
		PreviewKeys:  req.PreviewKeys,
	})
	if err != nil {
		logger.LogError("Student meta upsert failed for %s: %v", code, err)
		middleware.WriteAPIError(w, r, http.StatusInternalServerError, "internal_error", "Update failed", "")
		return
	}

	logger.LogInfo("Student meta updated for code %s", code)
	w.WriteHeader(http.StatusNoContent)
}
