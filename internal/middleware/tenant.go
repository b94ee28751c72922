package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dshomebg/dshome-docker-sub001/internal/models"
)

const tenantKey = "tenant_id"

// TenantMiddleware requires the X-Tenant-ID header. There is no default
// tenant: requests without one are rejected.
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader("X-Tenant-ID")

		// an upstream auth layer may already have set it
		if tenantID == "" {
			if tid, exists := c.Get(tenantKey); exists {
				tenantID, _ = tid.(string)
			}
		}

		if tenantID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
				Success: false,
				Error: models.Error{
					Code:    "TENANT_REQUIRED",
					Message: "Tenant ID is required. Include X-Tenant-ID header.",
				},
			})
			return
		}

		c.Set(tenantKey, tenantID)
		c.Next()
	}
}

// GetTenantID retrieves the tenant ID from gin context
func GetTenantID(c *gin.Context) string {
	return c.GetString(tenantKey)
}
