package report_module

import (
	"log"

	"github.com/fieldvoice/reporter/internal/api/apikey"
	"github.com/fieldvoice/reporter/pkg/utils"
	"github.com/gin-gonic/gin"
)

// Register routes for the report module
func RegisterRoutes(g *gin.RouterGroup, cfg *utils.Config) {
	// Make api key validator
	validator, err := apikey.ValidatorFromConfig(cfg)
	if err != nil {
		log.Fatalf("failed to create API key validator: %v", err)
	}

	// Create base group for report routes
	group := g.Group("/report")
	group.Use(apikey.Handler(validator))

	group.GET("", ListReports)    // List reports by project and date
	group.GET("/:id", GetReport)  // Get a report's metadata by id
}
