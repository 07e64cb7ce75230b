package handler

import (
	"net/http"

	redisinfra "github.com/portfolio-api/internal/infrastructure/redis"
)

// HealthHandler reports process liveness and cache connectivity.
type HealthHandler struct {
	cache *redisinfra.Cache
}

func NewHealthHandler(cache *redisinfra.Cache) *HealthHandler {
	return &HealthHandler{cache: cache}
}

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, "ok", map[string]interface{}{
		"cache_connected": h.cache.Connected(),
	})
}
