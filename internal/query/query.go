package query

import (
	"errors"
	"time"

	"github.com/kestrelworks/queryd/internal/agent"
)

// Errors returned by the orchestrator. Pipeline and pool failures keep
// their own sentinels and are wrapped, not replaced.
var (
	// ErrValidation rejects malformed input before any query state is
	// created.
	ErrValidation = errors.New("query validation failed")
	// ErrNotFound is returned by GetStatus for an unknown query ID.
	ErrNotFound = errors.New("query not found")
)

// Status is a query's lifecycle state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Variant selects the pipeline shape.
type Variant string

const (
	VariantBasic         Variant = "basic"
	VariantComprehensive Variant = "comprehensive"
)

// Context carries the caller's scope and limits for one query.
type Context struct {
	UserID              string  `json:"user_id"`
	SessionID           string  `json:"session_id"`
	MaxTokens           int     `json:"max_tokens"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

// Result is the terminal output of a successful Process call.
type Result struct {
	QueryID    string         `json:"query_id"`
	Answer     string         `json:"answer"`
	Confidence float64        `json:"confidence"`
	Sources    []agent.Source `json:"sources"`
	// Alternatives and Quality are populated by the comprehensive
	// variant only.
	Alternatives []agent.Alternative `json:"alternatives,omitempty"`
	Quality      *agent.Assessment   `json:"quality,omitempty"`
	// SourceBreakdown counts retrieved sources per named corpus for
	// the comprehensive fan-out.
	SourceBreakdown  map[string]int `json:"source_breakdown,omitempty"`
	KeyPoints        []string       `json:"key_points,omitempty"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	CacheHit         bool           `json:"cache_hit"`
}

// StatusInfo is the read-only view returned by GetStatus.
type StatusInfo struct {
	QueryID      string    `json:"query_id"`
	Status       Status    `json:"status"`
	Progress     float64   `json:"progress"`
	CurrentStep  string    `json:"current_step"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
