package handler

import (
	"crypto/hmac"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dikeckaan/siteform/internal/service"
)

// AdminHandler exposes the operator-only cleanup paths.
type AdminHandler struct {
	cleanup service.CleanupService
	secret  string
}

// NewAdminHandler creates an AdminHandler gated by the given shared secret.
func NewAdminHandler(cleanup service.CleanupService, secret string) *AdminHandler {
	return &AdminHandler{cleanup: cleanup, secret: secret}
}

// cleanupRequest is the expected JSON body for POST /admin/cleanup.
type cleanupRequest struct {
	Secret string `json:"secret"`
}

// Cleanup handles POST /admin/cleanup: deletes every stored record and
// reports the count.
func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_json"})
		return
	}

	if !h.authorized(req.Secret) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
		return
	}

	res, err := h.cleanup.PurgeAll(r.Context())
	if err != nil {
		slog.Error("bulk cleanup failed", "error", err, "deleted_so_far", res.DeletedCount)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "cleanup_failed"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":      true,
		"deletedCount": res.DeletedCount,
	})
}

// Sweep handles GET /cleanup: removes records past the retention period.
// The secret arrives in a header since GET has no body.
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r.Header.Get("X-Cleanup-Secret")) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
		return
	}

	res, err := h.cleanup.Sweep(r.Context())
	if err != nil {
		slog.Error("sweep failed", "error", err, "deleted_so_far", res.DeletedCount)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "cleanup_failed"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success":      true,
		"scanned":      res.Scanned,
		"deletedCount": res.DeletedCount,
	})
}

// authorized compares the presented secret in constant time. An empty
// configured secret never authorizes anything.
func (h *AdminHandler) authorized(presented string) bool {
	if h.secret == "" || presented == "" {
		return false
	}
	return hmac.Equal([]byte(h.secret), []byte(presented))
}
