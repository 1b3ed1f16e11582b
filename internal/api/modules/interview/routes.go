package interview

import (
	"log"

	"github.com/fieldvoice/reporter/internal/api/apikey"
	"github.com/fieldvoice/reporter/pkg/utils"
	"github.com/gin-gonic/gin"
)

// Register routes for the interview module
func RegisterRoutes(g *gin.RouterGroup, cfg *utils.Config) {
	// Make api key validator
	validator, err := apikey.ValidatorFromConfig(cfg)
	if err != nil {
		log.Fatalf("failed to create API key validator: %v", err)
	}

	// Create base group for interview routes
	group := g.Group("/interview")
	group.Use(apikey.Handler(validator))

	// Session lifecycle routes
	group.POST("/session/start", StartSession)   // Open a new interview session
	group.POST("/session/end", EndSession)       // End the active session, start finalization
	group.GET("/session/progress", GetProgress)  // Live checklist completion snapshot
	group.GET("/session/status", GetStatus)      // Lifecycle state + finalization phase
	group.GET("/session/outcome", GetOutcome)    // Most recent finalization result
}
