// Package models contains domain types for the Database Query Assistant.
package models

import "time"

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry of a session transcript.
type ChatMessage struct {
	Role      Role      `json:"role" msgpack:"role"`
	Content   string    `json:"content" msgpack:"content"`
	CreatedAt time.Time `json:"createdAt" msgpack:"createdAt"`
}

// NewChatMessage creates a message stamped with the current time.
func NewChatMessage(role Role, content string) ChatMessage {
	return ChatMessage{
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}
