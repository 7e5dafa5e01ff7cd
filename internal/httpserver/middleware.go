package httpserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kapeview/kapeview/internal/metrics"
)

// Forgery protection: safe requests get a token cookie, unsafe ones must
// echo it in a header.
const (
	CSRFCookie = "csrftoken"
	CSRFHeader = "X-CSRFToken"

	csrfMaxAge = 365 * 24 * 60 * 60
)

func csrf() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(CSRFCookie)
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			if token == "" {
				c.SetSameSite(http.SameSiteLaxMode)
				c.SetCookie(CSRFCookie, uuid.NewString(), csrfMaxAge, "/", "", false, false)
			}
			c.Next()
			return
		}
		if token == "" || c.GetHeader(CSRFHeader) != token {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "CSRF verification failed"})
			return
		}
		c.Next()
	}
}

func countRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
