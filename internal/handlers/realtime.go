package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/pointdeck/pointdeck/internal/realtime"
)

// Realtime hands the request to the websocket gateway.
func Realtime(gateway *realtime.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		gateway.Serve(c.Writer, c.Request)
	}
}
