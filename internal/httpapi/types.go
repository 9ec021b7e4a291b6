package httpapi

import (
	"github.com/kestrelworks/queryd/internal/cache"
	"github.com/kestrelworks/queryd/internal/pool"
)

// QueryRequest is the request body for POST /api/v1/queries and
// POST /api/v1/queries/comprehensive.
type QueryRequest struct {
	Query               string  `json:"query"`
	UserID              string  `json:"user_id"`
	SessionID           string  `json:"session_id"`
	MaxTokens           int     `json:"max_tokens"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string      `json:"status"`
	Pool   pool.Stats  `json:"pool"`
	Cache  cache.Stats `json:"cache"`
}
