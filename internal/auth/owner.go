package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceid/pkg/dto"
)

const identityHeader = "X-User-Id"

// IdentityClaim returns the caller's claimed identity, taken from the
// X-User-Id header or the actor_user_id query parameter. The claim is not
// verified beyond the API key gate; ownership checks only compare it
// against the addressed resource.
func IdentityClaim(c *gin.Context) string {
	if v := c.GetHeader(identityHeader); v != "" {
		return v
	}
	return c.Query("actor_user_id")
}

// RequireOwner rejects requests whose identity claim does not match the
// :id path parameter. Mutations and reads of a user's own records go
// through this; there is no admin bypass.
func RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		claim := IdentityClaim(c)
		if claim == "" || claim != c.Param("id") {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.NewError(dto.ErrForbidden))
			return
		}
		c.Next()
	}
}
