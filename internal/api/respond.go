package api

import (
	"github.com/gin-gonic/gin"
)

// API errors use a structured body so the inbox frontend can surface the
// message directly.
func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

func respondOK(c *gin.Context, extra gin.H) {
	body := gin.H{"success": true}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(200, body)
}
