package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "openapi-to-mcp"

// HandleHealth handles the /health endpoint for health checks
func HandleHealth(toolCount func() int, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := map[string]interface{}{
			"status":  "healthy",
			"service": ServiceName,
			"tools":   toolCount(),
		}

		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Warn("Failed to encode health response", zap.Error(err))
		}
	}
}

// HandleToolList handles listing the served tools
func HandleToolList(listFunc func() ([]map[string]interface{}, error), logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		tools, err := listFunc()
		if err != nil {
			logger.Error("Failed to list tools", zap.Error(err))
			http.Error(w, fmt.Sprintf("Failed to list tools: %v", err), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(tools); err != nil {
			logger.Error("Failed to encode tool list", zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}
