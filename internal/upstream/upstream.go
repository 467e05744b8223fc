// Package upstream defines the contract with the account-session gateway.
// The MTProto session itself is an external collaborator; the core only
// consumes this interface and the typed errors it surfaces.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Message is one raw message event as delivered by the gateway.
type Message struct {
	Id         int64    `json:"id"`
	Chat       Chat     `json:"chat"`
	From       *User    `json:"from_user,omitempty"`
	SenderChat *Chat    `json:"sender_chat,omitempty"`
	Text       string   `json:"text,omitempty"`
	Caption    string   `json:"caption,omitempty"`
	Date       int64    `json:"date"`
	Entities   []Entity `json:"entities,omitempty"`
	Outgoing   bool     `json:"outgoing,omitempty"`
}

type Chat struct {
	Id       int64  `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title,omitempty"`
	Username string `json:"username,omitempty"`
}

type User struct {
	Id        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

type Entity struct {
	Type   string `json:"type"`
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
	User   *User  `json:"user,omitempty"`
}

// Event is one live update from the account session.
type Event struct {
	UpdateId int64       `json:"update_id"`
	Type     string      `json:"type"` // message, edited, deleted
	Message  *Message    `json:"message,omitempty"`
	Deleted  *DeletedRef `json:"deleted,omitempty"`
}

const (
	EventMessage = "message"
	EventEdited  = "edited"
	EventDeleted = "deleted"
)

// DeletedRef identifies messages removed from a chat.
type DeletedRef struct {
	ChatId     int64   `json:"chat_id"`
	MessageIds []int64 `json:"message_ids"`
}

// Client is the surface the ingestor consumes. History enumerates messages
// newest-first, strictly older than offsetId (0 means from the top).
type Client interface {
	HistoryCount(ctx context.Context, chatId int64) (int, error)
	History(ctx context.Context, chatId, offsetId int64, limit int) ([]Message, error)
	Updates(ctx context.Context, offset int64, timeout time.Duration) ([]Event, error)
}

// Sentinel permission errors. Not retried; the sync manager marks the chat
// failed when it sees one.
var (
	ErrChannelPrivate = errors.New("channel is private or not accessible")
	ErrAdminRequired  = errors.New("admin rights required")
)

// RateLimitedError carries the wait interval requested by the upstream.
type RateLimitedError struct {
	Wait time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("FloodWait: %ds", int(e.Wait.Seconds()))
}

// Error is any other upstream failure with a coarse kind tag.
type Error struct {
	Kind   string
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("upstream %s: %s", e.Kind, e.Detail)
}

const (
	KindTransient = "transient"
	KindPermanent = "permanent"
)
