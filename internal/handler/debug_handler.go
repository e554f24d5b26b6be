package handler

import (
	"encoding/json"
	"net/http"

	"github.com/dikeckaan/siteform/internal/repository"
)

const debugListLimit = 1000

// DebugHandler exposes store inspection for operators. It is disabled unless
// the debug flag is set, and even then only the allowlisted addresses may
// reach it. Responses carry key names only; record contents and any secret
// configuration never leave the server through these routes.
type DebugHandler struct {
	repo           repository.RateLimitRepository
	enabled        bool
	allowedIPs     []string
	trustedProxies int
}

// NewDebugHandler creates a DebugHandler.
func NewDebugHandler(repo repository.RateLimitRepository, enabled bool, allowedIPs []string, trustedProxies int) *DebugHandler {
	return &DebugHandler{repo: repo, enabled: enabled, allowedIPs: allowedIPs, trustedProxies: trustedProxies}
}

// Keys handles GET /debug/keys, listing stored keys.
func (h *DebugHandler) Keys(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "forbidden"})
		return
	}

	var keys []string
	cursor := ""
	for {
		page, next, err := h.repo.List(r.Context(), cursor, debugListLimit)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "list_failed"})
			return
		}
		keys = append(keys, page...)
		if next == "" {
			break
		}
		cursor = next
	}

	if keys == nil {
		keys = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"keys": keys})
}

// deleteKeyRequest is the expected JSON body for POST /debug/delete-key.
type deleteKeyRequest struct {
	Key string `json:"key"`
}

// DeleteKey handles POST /debug/delete-key, removing a single record.
func (h *DebugHandler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "forbidden"})
		return
	}

	var req deleteKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "key_required"})
		return
	}

	if err := h.repo.Delete(r.Context(), req.Key); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "delete_failed"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

func (h *DebugHandler) allowed(r *http.Request) bool {
	if !h.enabled {
		return false
	}
	ip := ClientIP(r, h.trustedProxies)
	for _, allowed := range h.allowedIPs {
		if ip == allowed {
			return true
		}
	}
	return false
}
