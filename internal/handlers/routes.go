package handlers

import "net/http"

// NewRouter mounts every HTTP and WebSocket endpoint. metrics may be nil.
func NewRouter(authHandlers *AuthHandlers, messageHandlers *MessageHandlers, wsHandlers *WebSocketHandlers, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	// Auth routes
	mux.HandleFunc("/login", authHandlers.Login)
	mux.HandleFunc("/register", authHandlers.Register)
	mux.HandleFunc("/set-nickname", authHandlers.SetNickname)

	// Chat routes
	mux.HandleFunc("/messages", messageHandlers.ListMessages)
	mux.HandleFunc("/online", messageHandlers.Online)
	mux.HandleFunc("/healthz", messageHandlers.Health)

	// WebSocket route
	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)

	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	return mux
}
