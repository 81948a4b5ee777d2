package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/hudoor/pkg/errors"
	"github.com/noah-isme/hudoor/pkg/response"
)

// ActivationChecker reports whether this device holds a valid key.
type ActivationChecker interface {
	Activated(ctx context.Context) (bool, error)
}

// RequireActivation blocks the wrapped routes with NOT_ACTIVATED until the
// device is activated. When required is false every request passes.
func RequireActivation(checker ActivationChecker, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !required {
			c.Next()
			return
		}
		ok, err := checker.Activated(c.Request.Context())
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if !ok {
			response.Error(c, appErrors.ErrNotActivated)
			c.Abort()
			return
		}
		c.Next()
	}
}
