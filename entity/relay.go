package entity

import "encoding/json"

// Service names used as JWT issuers/audiences and as relay addresses.
const (
	ServiceBot     = "bot"
	ServiceUserbot = "userbot"
	ServiceSearch  = "search"
)

// RelayMessage is one queued inter-service message. The sender creates it
// via POST, the receiver deletes it after processing; rows older than the
// configured age may be reaped whether or not they were ever picked up.
type RelayMessage struct {
	Id          string          `json:"id"`
	FromService string          `json:"from_service"`
	ToService   string          `json:"to_service" validate:"required"`
	Type        string          `json:"type" validate:"required"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   float64         `json:"created_at"`
}
