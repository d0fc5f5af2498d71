package dispatch

import (
	"encoding/json"
	"fmt"
)

// Update is one inbound payload delivered by the messaging platform.
type Update struct {
	UpdateID         int64           `json:"update_id"`
	Message          *Message        `json:"message,omitempty"`
	EditedMessage    *Message        `json:"edited_message,omitempty"`
	CallbackQuery    *CallbackQuery  `json:"callback_query,omitempty"`
	PreCheckoutQuery json.RawMessage `json:"pre_checkout_query,omitempty"`
}

type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// ChatID returns the chat the update belongs to, or 0 when it carries none.
func (u *Update) ChatID() int64 {
	switch {
	case u.Message != nil:
		return u.Message.Chat.ID
	case u.EditedMessage != nil:
		return u.EditedMessage.Chat.ID
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil:
		return u.CallbackQuery.Message.Chat.ID
	}
	return 0
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from,omitempty"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// ParseUpdate decodes and validates one inbound payload.
func ParseUpdate(body []byte) (*Update, error) {
	var upd Update
	if err := json.Unmarshal(body, &upd); err != nil {
		return nil, fmt.Errorf("malformed update payload: %w", err)
	}
	if upd.UpdateID == 0 {
		return nil, fmt.Errorf("malformed update payload: missing update_id")
	}
	return &upd, nil
}
