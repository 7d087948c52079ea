package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/unireg/unireg-api/internal/middleware"
	"github.com/unireg/unireg-api/internal/models"
	"github.com/unireg/unireg-api/internal/service"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// requestMeta captures the actor and request origin for audit entries.
func requestMeta(c *gin.Context) service.RequestMeta {
	meta := service.RequestMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	}
	if claims := claimsFromContext(c); claims != nil {
		meta.ActorID = claims.UserID
	}
	return meta
}
