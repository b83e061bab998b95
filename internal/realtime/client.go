package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Close codes sent before a rejected connection joins any group.
const (
	// CloseUnauthenticated is sent when no valid credential accompanies
	// the handshake.
	CloseUnauthenticated = 4001
	// CloseForbidden is sent when the authenticated user is not a member
	// of the project's organization.
	CloseForbidden = 4003
)

// authzTimeout bounds the membership lookup during the handshake; expiry is
// treated as a forced close with a generic code.
const authzTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// TokenValidator resolves a raw token from the handshake query into a user
// ID. Errors mean the principal stays anonymous.
type TokenValidator func(token string) (uuid.UUID, error)

// Authorizer decides whether a user may subscribe to a project's events.
type Authorizer interface {
	CanAccessProject(ctx context.Context, userID, projectID uuid.UUID) (bool, error)
}

// Client is a single WebSocket connection joined to one project group for
// its lifetime.
type Client struct {
	ID     string
	UserID uuid.UUID
	Group  string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger
}

// ServeProjectWS handles GET /ws/projects/:project_id. The connection walks
// Authenticating -> Authorizing -> Joined; rejected principals get a close
// frame (4001/4003) and never join a group. A websocket close code can only
// travel on an upgraded connection, so the upgrade happens first in every
// path.
func ServeProjectWS(hub *Hub, authorize Authorizer, validate TokenValidator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var userID uuid.UUID
		authenticated := false
		if token := c.Query("token"); token != "" {
			if uid, err := validate(token); err == nil {
				userID = uid
				authenticated = true
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		if !authenticated {
			closeWithCode(conn, CloseUnauthenticated, "authentication required")
			return
		}

		projectID, err := uuid.Parse(c.Param("project_id"))
		if err != nil {
			// No resolvable project means no resolvable organization: deny.
			closeWithCode(conn, CloseForbidden, "forbidden")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), authzTimeout)
		defer cancel()
		ok, err := authorize.CanAccessProject(ctx, userID, projectID)
		if err != nil {
			logger.Warn("membership check failed", zap.Error(err),
				zap.String("project_id", projectID.String()))
			closeWithCode(conn, websocket.CloseInternalServerErr, "authorization unavailable")
			return
		}
		if !ok {
			closeWithCode(conn, CloseForbidden, "forbidden")
			return
		}

		client := &Client{
			ID:     uuid.New().String(),
			UserID: userID,
			Group:  ProjectGroup(projectID),
			hub:    hub,
			conn:   conn,
			send:   make(chan []byte, 256),
			logger: logger,
		}
		hub.Join(client)
		go client.writePump()
		client.readPump()
	}
}

// closeWithCode sends a close frame and drops the connection without ever
// registering it with the hub.
func closeWithCode(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
	_ = conn.Close()
}

// readPump drains inbound frames. Project subscriptions are receive-only;
// anything the client sends is ignored. Its real job is detecting
// disconnect and keeping the pong deadline fresh.
func (c *Client) readPump() {
	defer func() {
		c.hub.Leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	}
}

// writePump forwards broadcast frames and pings the peer on an interval.
func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
