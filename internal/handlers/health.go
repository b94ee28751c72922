package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const serviceName = "catalog-import-service"

// HealthCheck returns service health status (basic)
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
	})
}

// Check reports whether one dependency is usable
type Check func(ctx context.Context) error

// ReadinessCheck runs every check and answers 503 when any of them fails
func ReadinessCheck(checks map[string]Check) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		results := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = gin.H{"status": "unhealthy", "error": err.Error()}
				continue
			}
			results[name] = gin.H{"status": "healthy"}
		}

		overall := "ready"
		if status != http.StatusOK {
			overall = "not_ready"
		}
		c.JSON(status, gin.H{
			"status":  overall,
			"service": serviceName,
			"checks":  results,
		})
	}
}
