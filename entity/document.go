package entity

import (
	"fmt"
	"strconv"
	"strings"
)

// Chat types as stored in the search engine. Values follow the upstream
// enumeration names.
const (
	ChatTypePrivate    = "PRIVATE"
	ChatTypeGroup      = "GROUP"
	ChatTypeSupergroup = "SUPERGROUP"
	ChatTypeChannel    = "CHANNEL"
	ChatTypeBot        = "BOT"
)

var chatTypes = []string{ChatTypePrivate, ChatTypeGroup, ChatTypeSupergroup, ChatTypeChannel, ChatTypeBot}

// ChatTypes returns all recognized chat type names.
func ChatTypes() []string {
	return chatTypes
}

// IsValidChatType reports whether s (case-insensitive) names a chat type.
func IsValidChatType(s string) bool {
	up := strings.ToUpper(s)
	for _, t := range chatTypes {
		if t == up {
			return true
		}
	}
	return false
}

// ChatInfo describes the chat a message belongs to.
type ChatInfo struct {
	Id       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	Username string `json:"username,omitempty"`
}

// UserInfo describes the sender of a message.
type UserInfo struct {
	Id        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName returns a human-readable sender name.
func (u UserInfo) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.Username != "" {
		return u.Username
	}
	return strconv.FormatInt(u.Id, 10)
}

// MessageEntity is one mention or hashtag inside a message.
// For text-mentions User carries the referenced user.
type MessageEntity struct {
	Type   string    `json:"type"`
	Offset int64     `json:"offset"`
	Length int64     `json:"length"`
	UserId int64     `json:"user_id,omitempty"`
	User   *UserInfo `json:"user,omitempty"`
}

// Document is the unit stored in the search engine. It is keyed by the
// composite id "{chat_id}-{message_id}"; upserts with the same id are
// idempotent, soft-deletes flip IsDeleted without removing the record.
type Document struct {
	Id        string          `json:"id"`
	MessageId int64           `json:"message_id"`
	Text      string          `json:"text"`
	Caption   string          `json:"caption,omitempty"`
	Chat      ChatInfo        `json:"chat"`
	FromUser  UserInfo        `json:"from_user"`
	Date      int64           `json:"date"`
	Timestamp int64           `json:"timestamp"`
	Entities  []MessageEntity `json:"entities,omitempty"`
	Outgoing  bool            `json:"outgoing,omitempty"`
	IsDeleted bool            `json:"is_deleted,omitempty"`
	DeletedAt int64           `json:"deleted_at,omitempty"`
}

// CompositeId builds the engine primary key for a (chat, message) pair.
func CompositeId(chatId, messageId int64) string {
	return fmt.Sprintf("%d-%d", chatId, messageId)
}

// SearchableText returns the indexed text, falling back to the caption
// for media messages.
func (d Document) SearchableText() string {
	if d.Text != "" {
		return d.Text
	}
	return d.Caption
}
