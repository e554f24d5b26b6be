package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dikeckaan/siteform/internal/model"
	"github.com/dikeckaan/siteform/internal/service"
)

// Soft input caps applied at parse time; the gate applies the hard
// sanitization cap before relaying.
const (
	maxEmailLength   = 254
	maxSubjectLength = 200
)

// SubmitHandler handles contact-form submissions.
type SubmitHandler struct {
	gate           service.GateService
	trustedProxies int
}

// NewSubmitHandler creates a SubmitHandler with the given gate.
func NewSubmitHandler(gate service.GateService, trustedProxies int) *SubmitHandler {
	return &SubmitHandler{gate: gate, trustedProxies: trustedProxies}
}

// Submit handles POST /. The body is a multipart or URL-encoded form carrying
// the visible fields, both honeypots, the CAPTCHA token and the client-side
// anti-bot signals.
func (h *SubmitHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "method_not_allowed"})
		return
	}

	if err := r.ParseMultipartForm(1 << 20); err != nil {
		// Fall back to URL-encoded bodies.
		if err := r.ParseForm(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_form"})
			return
		}
	}

	attempt := &model.SubmissionAttempt{
		Email:   clip(r.FormValue("email"), maxEmailLength),
		Subject: clip(r.FormValue("subject"), maxSubjectLength),
		Message: r.FormValue("message"),
		HoneypotFields: map[string]string{
			"honeypot": r.FormValue("honeypot"),
			"website":  r.FormValue("website"),
		},
		CaptchaToken:   r.FormValue("cf-turnstile-response"),
		FormToken:      r.FormValue("formToken"),
		FormStartTime:  parseInt64(r.FormValue("formStartTime")),
		MouseMovements: parseCounter(r.FormValue("mouseMovements")),
		KeyPresses:     parseOptionalCounter(r.FormValue("keyPresses")),
		FocusEvents:    parseOptionalCounter(r.FormValue("formInteractions")),
		ClientIP:       ClientIP(r, h.trustedProxies),
	}

	if err := h.gate.Submit(r.Context(), attempt); err != nil {
		status, code := rejectionStatus(err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// rejectionStatus maps a gate sentinel to its HTTP status and a stable error
// code. Gate rejections ("you were blocked") stay distinct from faults
// ("something broke").
func rejectionStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrSpamDetected):
		return http.StatusForbidden, "spam_detected"
	case errors.Is(err, service.ErrInvalidSecurityToken):
		return http.StatusForbidden, "invalid_security_token"
	case errors.Is(err, service.ErrCaptchaRequired):
		return http.StatusForbidden, "captcha_required"
	case errors.Is(err, service.ErrCaptchaFailed):
		return http.StatusForbidden, "captcha_failed"
	case errors.Is(err, service.ErrTimingDataMissing):
		return http.StatusForbidden, "timing_data_missing"
	case errors.Is(err, service.ErrSubmittedTooFast):
		return http.StatusForbidden, "submitted_too_fast"
	case errors.Is(err, service.ErrInsufficientInteraction):
		return http.StatusForbidden, "insufficient_interaction"
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusInternalServerError, "store_unavailable"
	case errors.Is(err, service.ErrDeliveryFailed):
		return http.StatusInternalServerError, "delivery_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func clip(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

func parseInt64(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// parseCounter treats a missing or malformed counter as zero, which fails
// the interaction check.
func parseCounter(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// parseOptionalCounter returns -1 when the client did not report the value,
// which skips that heuristic.
func parseOptionalCounter(s string) int {
	if s == "" {
		return -1
	}
	return parseCounter(s)
}
