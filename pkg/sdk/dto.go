package sdk

import (
	"time"

	"github.com/fieldvoice/reporter/pkg/checklist"
)

// StatusType marks an API response as success or error
type StatusType string

const (
	StatusSuccess StatusType = "success"
	StatusError   StatusType = "error"
)

// ApiResponse represents a standard API response structure
type ApiResponse[T any] struct {
	Status  StatusType `json:"status"`          // Status marker
	Code    int        `json:"code"`            // HTTP status code
	Message string     `json:"message"`         // Human-readable message
	Data    T          `json:"data,omitempty"`  // Optional data field for successful responses
	Error   any        `json:"error,omitempty"` // Optional error field for error responses
}

// AsGinResponse converts the ApiResponse to a format suitable for Gin
func (r ApiResponse[T]) AsGinResponse() (int, any) {
	return r.Code, r
}

func NewSuccessResponse[T any](message string, data T) ApiResponse[T] {
	return ApiResponse[T]{
		Status:  StatusSuccess,
		Code:    200,
		Message: message,
		Data:    data,
	}
}

func NewErrorResponse(code int, message string, err any) ApiResponse[any] {
	resp := ApiResponse[any]{
		Status:  StatusError,
		Code:    code,
		Message: message,
	}
	if e, ok := err.(error); ok {
		resp.Error = e.Error()
	} else {
		resp.Error = err
	}
	return resp
}

/** Requests */

// StartSessionRequest opens a new interview session
type StartSessionRequest struct {
	AgentID   string `json:"agent_id" binding:"required"`
	OwnerID   string `json:"owner_id" binding:"required"`
	ProjectID string `json:"project_id"`
}

/** Responses */

// SessionStatus describes the controller's current session, if any
type SessionStatus struct {
	State          string    `json:"state"`
	SessionID      string    `json:"session_id,omitempty"`
	FinalizeStatus string    `json:"finalize_status,omitempty"`
	StartedAt      time.Time `json:"started_at,omitempty"`
}

// ProgressResponse is the live checklist completion snapshot
type ProgressResponse struct {
	Progress         checklist.Progress `json:"progress"`
	RequiredFraction float64            `json:"required_fraction"`
	OptionalFraction float64            `json:"optional_fraction"`
}

// FinalizeOutcome summarizes how the last finalization went
type FinalizeOutcome struct {
	ReportID          string   `json:"report_id"`
	StoragePath       string   `json:"storage_path,omitempty"`
	Persisted         bool     `json:"persisted"`
	Degraded          bool     `json:"degraded"`
	TranscriptPending bool     `json:"transcript_pending"`
	AudioMissing      bool     `json:"audio_missing"`
	Warnings          []string `json:"warnings,omitempty"`
}

// ReportSummary is the metadata view of a stored report
type ReportSummary struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	OwnerID          string    `json:"owner_id"`
	ProjectID        string    `json:"project_id"`
	ReportDate       string    `json:"report_date"`
	TranscriptStatus string    `json:"transcript_status"`
	TranscriptEvents int       `json:"transcript_events"`
	HasAudio         bool      `json:"has_audio"`
	Persisted        bool      `json:"persisted"`
	StoragePath      string    `json:"storage_path,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
