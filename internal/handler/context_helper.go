package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/uni-ops/registrar-api/internal/middleware"
	"github.com/uni-ops/registrar-api/internal/models"
)

// claimsFromContext extracts the authenticated user's claims. Returns
// nil when the route was not guarded by the JWT middleware.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, ok := c.Get(middleware.ContextUserKey)
	if !ok {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}
