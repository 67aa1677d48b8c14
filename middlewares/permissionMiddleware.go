package middlewares

import (
	"net/http"

	"bitbucket.org/mmdatafocus/docs_backend/models"
	"bitbucket.org/mmdatafocus/docs_backend/utils"
	"github.com/gin-gonic/gin"
)

// RequirePermission checks the session user's role grants for an
// action on a module ("read"/"create"/... on "documents", "users", ...).
// Admins and owners bypass the role-module table.
func RequirePermission(action string, module string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		username, ok := utils.GetUsernameFromContext(ctx)
		if !ok || username == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		user, err := models.GetUserByUsername(ctx, username)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		if user.Role == models.UserRoleAdmin || user.Role == models.UserRoleOwner {
			c.Next()
			return
		}

		allowed, err := models.GetAllowedPathsFromRole(ctx, user.RoleId)
		if err != nil || !allowed[action+"|"+module] {
			c.JSON(http.StatusForbidden, gin.H{"error": "NOT_ALLOWED"})
			c.Abort()
			return
		}
		c.Next()
	}
}
