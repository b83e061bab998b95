package realtime

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ServeNotificationsWS handles GET /ws/notifications: a minimal liveness
// channel outside the authorization model. It accepts unconditionally,
// sends a welcome message, and echoes every inbound payload.
func ServeNotificationsWS(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		defer conn.Close()

		welcome := map[string]string{"message": "Connected to notifications ✅"}
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(welcome); err != nil {
			return
		}

		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var echoed interface{}
			if json.Valid(payload) {
				echoed = json.RawMessage(payload)
			} else {
				// keep the echo frame well-formed even for raw text
				echoed = string(payload)
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(map[string]interface{}{"echo": echoed}); err != nil {
				return
			}
		}
	}
}
