package entity

import "tgindex/internal/upstream"

// FromUpstreamMessage projects a raw gateway message into the fixed-shape
// document stored in the search engine. Everything downstream of this
// converter works on Document only; channel posts without a user sender
// carry the sender chat id in FromUser.Id so privacy filtering still
// applies.
func FromUpstreamMessage(m upstream.Message) Document {
	doc := Document{
		Id:        CompositeId(m.Chat.Id, m.Id),
		MessageId: m.Id,
		Text:      m.Text,
		Caption:   m.Caption,
		Chat: ChatInfo{
			Id:       m.Chat.Id,
			Type:     m.Chat.Type,
			Title:    m.Chat.Title,
			Username: m.Chat.Username,
		},
		Date:      m.Date,
		Timestamp: m.Date,
		Outgoing:  m.Outgoing,
	}

	switch {
	case m.From != nil:
		doc.FromUser = UserInfo{
			Id:        m.From.Id,
			IsBot:     m.From.IsBot,
			FirstName: m.From.FirstName,
			LastName:  m.From.LastName,
			Username:  m.From.Username,
		}
	case m.SenderChat != nil:
		doc.FromUser = UserInfo{
			Id:        m.SenderChat.Id,
			FirstName: m.SenderChat.Title,
			Username:  m.SenderChat.Username,
		}
	}

	for _, e := range m.Entities {
		ent := MessageEntity{
			Type:   e.Type,
			Offset: e.Offset,
			Length: e.Length,
		}
		if e.User != nil {
			ent.UserId = e.User.Id
			ent.User = &UserInfo{
				Id:        e.User.Id,
				IsBot:     e.User.IsBot,
				FirstName: e.User.FirstName,
				LastName:  e.User.LastName,
				Username:  e.User.Username,
			}
		}
		doc.Entities = append(doc.Entities, ent)
	}

	return doc
}
