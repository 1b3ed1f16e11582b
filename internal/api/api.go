package api

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/fieldvoice/reporter/pkg/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	health_module "github.com/fieldvoice/reporter/internal/api/modules/health"
	interview_module "github.com/fieldvoice/reporter/internal/api/modules/interview"
	report_module "github.com/fieldvoice/reporter/internal/api/modules/report"
)

func Start(cfg *utils.Config) {
	// Initialized configuration settings
	port := cfg.GetWithDefault("API_PORT", "8080")

	// Add app level settings/routes
	engine := gin.Default()
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "route not found"})
	})

	// Add trusted proxies
	engine.SetTrustedProxies(nil)

	// Add CORS using gin-contrib/cors (https://github.com/gin-contrib/cors for documentation)
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(cfg.GetWithDefault("CORS_ALLOWED_ORIGINS", "*"), ","),
		AllowMethods:     []string{"OPTIONS", "GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-API-KEY"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	// Base group '/api' for all API routes
	baseGroup := engine.Group("/api")

	// Adding custom modules
	health_module.RegisterRoutes(baseGroup)

	if err := interview_module.Init(cfg); err != nil {
		log.Fatal("[API-MAIN]: Failed to initialize interview module: ", err)
	}
	interview_module.RegisterRoutes(baseGroup, cfg)

	report_module.Init(interview_module.GetService().Store())
	report_module.RegisterRoutes(baseGroup, cfg)

	// Then after performing initial setup, start the server
	if err := engine.Run(":" + port); err != nil {
		log.Fatal("[API-MAIN]: Failed to start server: ", err)
	}
}
