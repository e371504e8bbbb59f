package realtime

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/pkg/httputil"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// SessionValidator resolves an access token into a session.
type SessionValidator interface {
	ValidateAccess(ctx context.Context, token string) (*model.Session, error)
}

type Handler struct {
	registry *Registry
	sessions SessionValidator
	upgrader gorillawebsocket.Upgrader
	logger   zerolog.Logger
}

func NewHandler(registry *Registry, sessions SessionValidator, logger zerolog.Logger) *Handler {
	return &Handler{
		registry: registry,
		sessions: sessions,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin is not checked; the access token authenticates the upgrade.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "realtime").Logger(),
	}
}

// bearerToken reads the access token from the Authorization header or the token query parameter.
func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return c.Query("token")
}

// Connect authenticates, upgrades and keeps the connection registered until it drops.
func (h *Handler) Connect(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		httputil.RespondWithStatus(c, http.StatusUnauthorized, "authentication required")
		return
	}
	session, err := h.sessions.ValidateAccess(c.Request.Context(), token)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	conn := NewConnection(sendBuffer)
	h.registry.Register(session.PrincipalID, conn)
	h.logger.Debug().
		Str("principal_id", session.PrincipalID.String()).
		Str("connection_id", conn.ID).
		Msg("Connection registered")

	var expiry *time.Timer
	if !session.ExpiresAt.IsZero() {
		// Closing the socket ends readPump, which unregisters the connection.
		expiry = time.AfterFunc(time.Until(session.ExpiresAt), func() {
			h.logger.Debug().
				Str("principal_id", session.PrincipalID.String()).
				Str("connection_id", conn.ID).
				Msg("Access token expired, closing connection")
			ws.Close()
		})
	}

	go h.writePump(conn, ws)
	go h.readPump(session, conn, ws, expiry)
}

// readPump only services control frames; clients do not send application messages.
func (h *Handler) readPump(session *model.Session, conn *Connection, ws *gorillawebsocket.Conn, expiry *time.Timer) {
	defer func() {
		if expiry != nil {
			expiry.Stop()
		}
		h.registry.Unregister(conn)
		conn.Close()
		ws.Close()
		h.logger.Debug().
			Str("principal_id", session.PrincipalID.String()).
			Str("connection_id", conn.ID).
			Msg("Connection unregistered")
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writePump(conn *Connection, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
