package apikey

import (
	"fmt"
	"net/http"

	"github.com/fieldvoice/reporter/pkg/utils"
	"github.com/gin-gonic/gin"
)

// Handler rejects requests whose X-API-KEY header fails the validator
func Handler(validator func(key string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !validator(c.GetHeader("X-API-KEY")) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "error",
				"message": "invalid API key",
			})
			return
		}
		c.Next()
	}
}

// ValidatorFromConfig builds a validator against the configured API key
func ValidatorFromConfig(cfg *utils.Config) (func(key string) bool, error) {
	apiKey := cfg.Get("API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("API_KEY not set in environment")
	}

	return func(key string) bool {
		return apiKey == key
	}, nil
}
