package models

import "time"

// Message is a persisted chat entry. PresenceName is captured when the
// message is sent and never re-resolved.
type Message struct {
	ID           int64     `json:"id"`
	AuthorID     int       `json:"author_id"`
	PresenceName string    `json:"presence_name"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at"`
}

type OnlineUsersResponse struct {
	Users []string `json:"users"`
	Count int      `json:"count"`
}
