package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"groupchat/internal/auth"
	"groupchat/internal/chat"
	ws "groupchat/internal/websocket"
	"groupchat/pkg/logger"
)

// ChatEngine is the engine surface a socket needs.
type ChatEngine interface {
	ws.Engine
	Connect(ctx context.Context, connID string) (*chat.Connection, error)
}

type WebSocketHandlers struct {
	authService *auth.Service
	engine      ChatEngine
	limiter     ws.Limiter
	upgrader    websocket.Upgrader
}

// NewWebSocketHandlers builds the /ws handler. limiter may be nil.
func NewWebSocketHandlers(authService *auth.Service, engine ChatEngine, limiter ws.Limiter) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService: authService,
		engine:      engine,
		limiter:     limiter,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := tokenFromRequest(r)
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	// Validate token and get user
	user, err := h.authService.UserFromToken(r.Context(), tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	// Upgrade connection to WebSocket
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	connID := uuid.NewString()
	session, err := h.engine.Connect(r.Context(), connID)
	if err != nil {
		logger.Error("Error registering connection %s for %s: %v", connID, user.Username, err)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, chat.Code(err)))
		conn.Close()
		return
	}
	logger.Debug("Connection %s opened for %s", connID, user.Username)

	client := ws.NewClient(conn, h.engine, session, user, h.limiter)

	// Start client pumps
	go client.WritePump()
	go client.ReadPump()
}
