package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/unireg/unireg-api/internal/models"
	"github.com/unireg/unireg-api/internal/repository"
)

// Audit records an audit trail entry after a successful request. Used for
// read surfaces whose access is itself auditable; mutating services write
// their own entries inside the transaction.
func Audit(repo *repository.AuditRepository, action models.AuditAction, entity string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		var actorID *string
		if claims, ok := c.Get(ContextUserKey); ok {
			user := claims.(*models.JWTClaims)
			actorID = &user.UserID
		}

		_ = repo.Create(c.Request.Context(), &models.AuditLog{
			ActorID:     actorID,
			Action:      action,
			Entity:      entity,
			EntityLabel: fmt.Sprintf("%s %s", c.Request.Method, c.FullPath()),
			IPAddress:   c.ClientIP(),
			UserAgent:   c.GetHeader("User-Agent"),
		})
	}
}
