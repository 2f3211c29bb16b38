package models

import "time"

// Session identifies one conversation. CreatedAt is set once and never changes.
type Session struct {
	ID        string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
}
