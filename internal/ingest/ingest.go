// Package ingest drives the live indexing loop: long-poll the account
// gateway for events and feed them to the buffered indexer.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tgindex/entity"
	"tgindex/internal/upstream"
	"tgindex/lib/sl"
)

const (
	pollTimeout   = 30 * time.Second
	errorCooldown = 5 * time.Second
)

// Sink is the indexing surface for live messages.
type Sink interface {
	Upsert(ctx context.Context, doc entity.Document) error
}

// Deleter marks documents deleted in the engine when their source message
// is removed.
type Deleter interface {
	SoftDelete(ctx context.Context, chatId, messageId int64) error
}

type Service struct {
	upstream upstream.Client
	sink     Sink
	deleter  Deleter
	log      *slog.Logger
	offset   int64
}

func New(up upstream.Client, sink Sink, deleter Deleter, log *slog.Logger) *Service {
	return &Service{
		upstream: up,
		sink:     sink,
		deleter:  deleter,
		log:      log.With(sl.Module("ingest")),
	}
}

// Run long-polls for updates until the context is cancelled. Transient
// gateway failures back off and continue; the loop never gives up.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info("live ingest started")
	for {
		events, err := s.upstream.Updates(ctx, s.offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				s.log.Info("live ingest stopped")
				return ctx.Err()
			}
			var rl *upstream.RateLimitedError
			wait := errorCooldown
			if errors.As(err, &rl) {
				wait = rl.Wait
			}
			s.log.With(sl.Err(err), slog.Duration("wait", wait)).Warn("update poll failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		for _, ev := range events {
			s.handle(ctx, ev)
			if ev.UpdateId >= s.offset {
				s.offset = ev.UpdateId + 1
			}
		}
	}
}

func (s *Service) handle(ctx context.Context, ev upstream.Event) {
	switch ev.Type {
	case upstream.EventMessage, upstream.EventEdited:
		if ev.Message == nil {
			return
		}
		doc := entity.FromUpstreamMessage(*ev.Message)
		if doc.SearchableText() == "" {
			return
		}
		if err := s.sink.Upsert(ctx, doc); err != nil {
			s.log.With(sl.Chat(doc.Chat.Id), sl.Err(err)).Warn("live upsert failed")
		}
	case upstream.EventDeleted:
		if ev.Deleted == nil {
			return
		}
		for _, msgId := range ev.Deleted.MessageIds {
			if err := s.deleter.SoftDelete(ctx, ev.Deleted.ChatId, msgId); err != nil {
				s.log.With(sl.Chat(ev.Deleted.ChatId), sl.Err(err)).Warn("soft delete failed")
			}
		}
	default:
		s.log.With(slog.String("type", ev.Type)).Debug("ignoring update")
	}
}
