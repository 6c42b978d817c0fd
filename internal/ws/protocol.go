package ws

import (
	"encoding/json"
	"fmt"
)

// Wire contract: a closed set of tagged events. Payloads are validated at
// the boundary instead of trusting shape.

// client -> server
const (
	EvSetup           = "setup"
	EvJoinChat        = "join_chat"
	EvTyping          = "typing"
	EvStopTyping      = "stop_typing"
	EvReadMessages    = "read_messages"
	EvDeliverMessages = "deliver_messages"
	EvDeleteMessage   = "delete_message"
)

// server -> client
const (
	EvConnected         = "connected"
	EvJoinedChat        = "joined_chat"
	EvMessageReceived   = "message_received"
	EvNotification      = "notification"
	EvMessagesRead      = "messages_read"
	EvMessagesDelivered = "messages_delivered"
	EvMessageDeleted    = "message_deleted"
)

type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ServerEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type SetupPayload struct {
	UserID uint64 `json:"user_id"`
}

type ChatPayload struct {
	ChatID string `json:"chat_id"`
}

type TypingPayload struct {
	ChatID   string `json:"chat_id"`
	Username string `json:"username"`
}

type DeleteMessagePayload struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
}

// StatusPayload announces a chat-wide delivered/read mark by one user.
type StatusPayload struct {
	ChatID string `json:"chat_id"`
	UserID uint64 `json:"user_id"`
}

type TypingNotice struct {
	Username string `json:"username"`
}

type NotificationPayload struct {
	Message any `json:"message"`
}

// Decode unmarshals the event payload into v and rejects absent data.
func (e ClientEvent) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %q: missing payload", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("event %q: %w", e.Event, err)
	}
	return nil
}

// Room namespaces: one room per conversation, one private room per user for
// cross-chat notices.

func ChatRoom(chatID string) string { return "chat:" + chatID }

func UserRoom(userID uint64) string { return fmt.Sprintf("user:%d", userID) }
