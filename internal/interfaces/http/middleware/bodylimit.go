package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/invoo/backend/internal/interfaces/http/dto"
)

// BodyLimit returns a middleware that limits request body size. Invoice
// payloads are small; anything large is either abuse or a client bug.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				dto.NewErrorResponse("REQUEST_TOO_LARGE", "Request body exceeds maximum allowed size"))
			return
		}

		// limit streaming bodies that do not declare a length
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
