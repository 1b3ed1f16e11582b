package report_module

import (
	"net/http"

	"github.com/fieldvoice/reporter/pkg/report"
	"github.com/fieldvoice/reporter/pkg/sdk"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var reportStore report.Store

// Init wires the module to the report store
func Init(store report.Store) {
	reportStore = store
}

// GetReport handles GET requests to retrieve a report's metadata by id
func GetReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusBadRequest, "Invalid report id", err).AsGinResponse())
		return
	}

	r, err := reportStore.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusNotFound, "Report not found", err).AsGinResponse())
		return
	}

	c.JSON(sdk.NewSuccessResponse("Report retrieved successfully", toSummary(r)).AsGinResponse())
}

// ListReports handles GET requests to list reports by project and date
func ListReports(c *gin.Context) {
	projectID := c.Query("project_id")
	date := c.Query("date")
	if projectID == "" || date == "" {
		c.JSON(sdk.NewErrorResponse(http.StatusBadRequest, "project_id and date are required", nil).AsGinResponse())
		return
	}

	reports, err := reportStore.FindByProjectAndDate(c.Request.Context(), projectID, date)
	if err != nil {
		c.JSON(sdk.NewErrorResponse(http.StatusInternalServerError, "Failed to query reports", err).AsGinResponse())
		return
	}

	summaries := make([]sdk.ReportSummary, 0, len(reports))
	for _, r := range reports {
		summaries = append(summaries, toSummary(r))
	}

	c.JSON(sdk.NewSuccessResponse("Reports retrieved successfully", summaries).AsGinResponse())
}

// Helper method to convert a stored report to its metadata view
func toSummary(r *report.Report) sdk.ReportSummary {
	return sdk.ReportSummary{
		ID:               r.ID.String(),
		SessionID:        r.SessionID,
		OwnerID:          r.OwnerID,
		ProjectID:        r.ProjectID,
		ReportDate:       r.ReportDate,
		TranscriptStatus: string(r.Transcript.Status),
		TranscriptEvents: len(r.Transcript.Events),
		HasAudio:         r.HasAudio(),
		Persisted:        r.Persisted,
		StoragePath:      r.StoragePath,
		CreatedAt:        r.CreatedAt,
	}
}
