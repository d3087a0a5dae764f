package handlers

import (
	"context"
	"net/http"
	"time"

	"groupchat/internal/models"
	"groupchat/pkg/logger"
)

// MessageLog is the read side of the message store.
type MessageLog interface {
	ListChronological(ctx context.Context) ([]models.Message, error)
}

// Presence reports the current online set.
type Presence interface {
	Online() []string
}

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type MessageHandlers struct {
	log      MessageLog
	presence Presence
	store    Pinger
}

func NewMessageHandlers(log MessageLog, presence Presence, store Pinger) *MessageHandlers {
	return &MessageHandlers{
		log:      log,
		presence: presence,
		store:    store,
	}
}

// ListMessages returns the whole history, oldest first.
func (h *MessageHandlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	messages, err := h.log.ListChronological(r.Context())
	if err != nil {
		logger.Error("List messages error: %v", err)
		http.Error(w, "message store unavailable", http.StatusServiceUnavailable)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	writeJSON(w, http.StatusOK, messages)
}

func (h *MessageHandlers) Online(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	users := h.presence.Online()
	writeJSON(w, http.StatusOK, models.OnlineUsersResponse{Users: users, Count: len(users)})
}

func (h *MessageHandlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		logger.Warn("Health check failed: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
