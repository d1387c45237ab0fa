package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	userIDKey  = "userId"
	isGuestKey = "isGuest"

	guestCookieName   = "guest_id"
	guestCookieMaxAge = 30 * 24 * 60 * 60
)

// Identity resolves the caller's identity. A trusted upstream may supply
// X-User-Id; everyone else gets a sticky guest identity via cookie. Every
// request past this middleware has a user id.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		if userID := strings.TrimSpace(c.GetHeader("X-User-Id")); userID != "" {
			c.Set(userIDKey, userID)
			c.Set(isGuestKey, false)
			c.Next()
			return
		}

		guestID, err := c.Cookie(guestCookieName)
		if err != nil || strings.TrimSpace(guestID) == "" {
			guestID = uuid.NewString()
			c.SetCookie(guestCookieName, guestID, guestCookieMaxAge, "/", "", false, true)
		}
		c.Set(userIDKey, "guest:"+guestID)
		c.Set(isGuestKey, true)
		c.Next()
	}
}

// UserIDFromContext fetches the user ID set by the identity middleware.
func UserIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(userIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}
