package http

import (
	"log/slog"
	"net/http"

	"live-quiz-service/internal/identity"

	"github.com/gin-gonic/gin"
)

// CookieName holds the signed anonymous identity of a browser.
const CookieName = "quiz_uid"

const clientIDKey = "client_id"

// identify verifies the identity cookie, issuing a fresh anonymous id when it is missing
// or no longer valid.
func identify(tokens *identity.Tokens, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, err := c.Cookie(CookieName); err == nil {
			if uid, err := tokens.Verify(token); err == nil {
				c.Set(clientIDKey, uid)
				c.Next()
				return
			}
		}

		uid, token, err := tokens.SignIn()
		if err != nil {
			logger.Error("issue identity", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "could not sign in"})
			return
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(CookieName, token, int(tokens.TTL().Seconds()), "/", "", false, true)
		c.Set(clientIDKey, uid)
		c.Next()
	}
}

func clientID(c *gin.Context) string {
	return c.GetString(clientIDKey)
}
