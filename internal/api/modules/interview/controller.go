package interview

import (
	"errors"
	"net/http"

	"github.com/fieldvoice/reporter/pkg/connector"
	"github.com/fieldvoice/reporter/pkg/sdk"
	"github.com/fieldvoice/reporter/pkg/session"
	"github.com/gin-gonic/gin"
)

// StartSession handles POST requests to open a new interview session
func StartSession(c *gin.Context) {
	// Parse request body
	var req sdk.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusBadRequest, "Could not parse request body", err).AsGinResponse())
		return
	}

	svc := GetService()
	err := svc.Controller().Start(c.Request.Context(), session.StartRequest{
		AgentID:   req.AgentID,
		OwnerID:   req.OwnerID,
		ProjectID: req.ProjectID,
	})
	if err != nil {
		if errors.Is(err, session.ErrSessionActive) {
			c.JSON(sdk.NewErrorResponse(http.StatusConflict, "A session is already active", err).AsGinResponse())
			return
		}

		var connErr *connector.ConnectionError
		if errors.As(err, &connErr) {
			c.JSON(sdk.NewErrorResponse(http.StatusBadGateway, "Could not reach the voice agent", err).AsGinResponse())
			return
		}

		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to start session", err).AsGinResponse())
		return
	}

	c.JSON(sdk.NewSuccessResponse("Session started successfully", currentStatus(svc)).AsGinResponse())
}

// EndSession handles POST requests to end the active session. Finalization
// begins in the background; this endpoint returns immediately
func EndSession(c *gin.Context) {
	svc := GetService()

	if err := svc.Controller().End(c.Request.Context()); err != nil {
		if errors.Is(err, session.ErrNoActiveSession) {
			c.JSON(sdk.NewErrorResponse(http.StatusConflict, "No active session to end", err).AsGinResponse())
			return
		}
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to end session", err).AsGinResponse())
		return
	}

	c.JSON(sdk.NewSuccessResponse("Session ended, finalization started", currentStatus(svc)).AsGinResponse())
}

// GetProgress handles GET requests for the live checklist snapshot
func GetProgress(c *gin.Context) {
	svc := GetService()

	progress, ok := svc.Controller().Progress()
	if !ok {
		c.JSON(sdk.NewErrorResponse(http.StatusNotFound, "No session has been started", nil).AsGinResponse())
		return
	}

	resp := sdk.ProgressResponse{
		Progress:         progress,
		RequiredFraction: progress.RequiredFraction(),
		OptionalFraction: progress.OptionalFraction(),
	}

	c.JSON(sdk.NewSuccessResponse("Progress retrieved successfully", resp).AsGinResponse())
}

// GetStatus handles GET requests for the session lifecycle state and the
// finalization phase description
func GetStatus(c *gin.Context) {
	svc := GetService()
	c.JSON(sdk.NewSuccessResponse("Status retrieved successfully", currentStatus(svc)).AsGinResponse())
}

// GetOutcome handles GET requests for the most recent finalization result
func GetOutcome(c *gin.Context) {
	svc := GetService()

	outcome, err := svc.LastOutcome()
	if outcome == nil {
		c.JSON(sdk.NewErrorResponse(http.StatusNotFound, "No finalization has completed yet", err).AsGinResponse())
		return
	}

	resp := sdk.FinalizeOutcome{
		Degraded:          outcome.Degraded,
		TranscriptPending: outcome.TranscriptPending,
		AudioMissing:      outcome.AudioMissing,
		Warnings:          outcome.Warnings,
	}
	if outcome.Report != nil {
		resp.ReportID = outcome.Report.ID.String()
		resp.Persisted = outcome.Report.Persisted
	}
	if outcome.SaveResult != nil {
		resp.StoragePath = outcome.SaveResult.StoragePath
	}

	c.JSON(sdk.NewSuccessResponse("Outcome retrieved successfully", resp).AsGinResponse())
}

// currentStatus assembles the session status view
func currentStatus(svc *InterviewService) sdk.SessionStatus {
	status := sdk.SessionStatus{
		State:          string(svc.Controller().State()),
		FinalizeStatus: svc.FinalizeStatus(),
		StartedAt:      svc.Controller().StartedAt(),
	}

	if handle := svc.Controller().Handle(); handle != nil {
		status.SessionID = handle.SessionID
	}

	return status
}
