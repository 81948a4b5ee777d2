package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// shellOrigins are the origins used by the desktop and mobile shells. They
// are always accepted next to the configured list.
var shellOrigins = []string{"app://.", "capacitor://localhost", "http://localhost"}

// New returns a CORS middleware for the browser, desktop and mobile shells.
// An empty list accepts every origin.
func New(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	originSet := make(map[string]struct{}, len(allowedOrigins)+len(shellOrigins))
	for _, origin := range append(append([]string{}, allowedOrigins...), shellOrigins...) {
		originSet[strings.TrimRight(origin, "/")] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if allowAll || hasOrigin(originSet, origin) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			}
		} else if allowAll {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Vary", "Origin")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Requested-With, X-Request-ID, X-Device-ID")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func hasOrigin(originSet map[string]struct{}, origin string) bool {
	origin = strings.TrimRight(origin, "/")
	if _, ok := originSet[origin]; ok {
		return true
	}
	// http://localhost:5173 and friends
	if i := strings.LastIndex(origin, ":"); i > len("http:") {
		_, ok := originSet[origin[:i]]
		return ok
	}
	return false
}
