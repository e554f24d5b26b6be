package handler

import (
	"encoding/json"
	"net/http"

	"github.com/dikeckaan/siteform/internal/repository"
)

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HealthHandler reports whether the rate-limit store is reachable.
type HealthHandler struct {
	repo repository.RateLimitRepository
}

// NewHealthHandler creates a HealthHandler probing the given store.
func NewHealthHandler(repo repository.RateLimitRepository) *HealthHandler {
	return &HealthHandler{repo: repo}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(healthResponse{
			Status:  "unhealthy",
			Message: err.Error(),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:  "ok",
		Message: "siteform API",
	})
}
