package log

import (
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const headerRequestID = "X-Request-ID"

// GinMiddleware tags each request with a request id, stores a child logger
// in the request context and logs the request when it completes.
//
// Requests to quietPaths, such as health probes, are logged at debug level.
// Websocket upgrades hold the handler for the life of the socket and are
// logged as sessions with their duration.
func GinMiddleware(logger zerolog.Logger, quietPaths ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		upgrade := websocket.IsWebSocketUpgrade(c.Request)

		reqID := requestID(c.GetHeader(headerRequestID))
		child := logger.With().
			Str(FieldRequestID, reqID).
			Str(FieldMethod, c.Request.Method).
			Str(FieldPath, c.Request.URL.Path).
			Str(FieldClientIP, c.ClientIP()).
			Logger()

		c.Header(headerRequestID, reqID)
		c.Request = c.Request.WithContext(WithLogger(c.Request.Context(), child))

		c.Next()

		status := c.Writer.Status()
		var evt *zerolog.Event
		switch {
		case status >= 500:
			evt = child.Error()
		case slices.Contains(quietPaths, c.FullPath()):
			evt = child.Debug()
		default:
			evt = child.Info()
		}
		if room := c.Param("room"); room != "" {
			evt = evt.Str(FieldRoom, room)
		}

		if upgrade {
			evt.Dur("session", time.Since(start)).Msg("websocket session closed")
			return
		}
		evt.Int(FieldStatus, status).
			Float64(FieldLatency, float64(time.Since(start).Milliseconds())).
			Msg("request completed")
	}
}
