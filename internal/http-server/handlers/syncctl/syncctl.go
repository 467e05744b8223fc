// Package syncctl exposes the sync manager over the control plane.
package syncctl

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"tgindex/entity"
	"tgindex/internal/syncmanager"
	"tgindex/lib/api/response"
	"tgindex/lib/clock"
	"tgindex/lib/sl"
	"tgindex/lib/validate"
)

type Core interface {
	AddChat(chatId int64) (*entity.SyncProgress, error)
	PauseChat(chatId int64) error
	ResumeChat(chatId int64) error
	GetProgress(chatId int64) (*entity.SyncProgress, bool)
	GetAllProgress() []entity.SyncProgress
	GetSummary() entity.SyncSummary
	CurrentChat() int64
}

type chatRequest struct {
	ChatId      int64 `json:"chat_id" validate:"required"`
	RequestedBy int64 `json:"requested_by,omitempty"`
}

func (c *chatRequest) Bind(_ *http.Request) error {
	return validate.Struct(c)
}

type syncResult struct {
	Success bool   `json:"success"`
	ChatId  int64  `json:"chat_id"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

// Add enrolls a chat; an active enrollment answers 409.
func Add(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.syncctl"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req chatRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Error("bind request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequest(fmt.Sprintf("Invalid request: %v", err)))
			return
		}
		logger = logger.With(sl.Chat(req.ChatId), sl.User(req.RequestedBy))

		p, err := handler.AddChat(req.ChatId)
		if err != nil {
			if errors.Is(err, syncmanager.ErrAlreadySyncing) {
				logger.Warn("sync already enrolled", sl.Err(err))
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, response.Conflict(err.Error()))
				return
			}
			logger.Error("enroll chat", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Internal(err.Error()))
			return
		}
		logger.Info("chat enrolled for sync")

		render.JSON(w, r, syncResult{
			Success: true,
			ChatId:  req.ChatId,
			Message: "sync enrolled",
			Status:  p.Status,
		})
	}
}

// Status reports one chat (chat_id query) or every tracked chat plus the
// summary and the currently syncing chat.
func Status(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.syncctl"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		if raw := r.URL.Query().Get("chat_id"); raw != "" {
			chatId, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.BadRequest("chat_id must be an integer"))
				return
			}
			p, ok := handler.GetProgress(chatId)
			if !ok {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.NotFound(fmt.Sprintf("chat %d is not enrolled", chatId)))
				return
			}
			render.JSON(w, r, struct {
				Timestamp string                `json:"timestamp"`
				Chats     []entity.SyncProgress `json:"chats"`
			}{Timestamp: clock.Now(), Chats: []entity.SyncProgress{*p}})
			return
		}

		summary := handler.GetSummary()
		logger.Debug("status requested",
			slog.Int("chats", summary.TotalChats),
			sl.Chat(handler.CurrentChat()),
		)
		render.JSON(w, r, struct {
			Timestamp   string                `json:"timestamp"`
			CurrentChat int64                 `json:"current_chat,omitempty"`
			Chats       []entity.SyncProgress `json:"chats"`
			Summary     entity.SyncSummary    `json:"summary"`
		}{
			Timestamp:   clock.Now(),
			CurrentChat: handler.CurrentChat(),
			Chats:       handler.GetAllProgress(),
			Summary:     summary,
		})
	}
}

// Pause requests a cooperative pause at the next batch boundary.
func Pause(log *slog.Logger, handler Core) http.HandlerFunc {
	return transition(log, "pause", handler.PauseChat)
}

// Resume puts a paused or failed chat back in the queue.
func Resume(log *slog.Logger, handler Core) http.HandlerFunc {
	return transition(log, "resume", handler.ResumeChat)
}

func transition(log *slog.Logger, verb string, apply func(int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.syncctl"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req chatRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Error("bind request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequest(fmt.Sprintf("Invalid request: %v", err)))
			return
		}
		logger = logger.With(sl.Chat(req.ChatId))

		if err := apply(req.ChatId); err != nil {
			if errors.Is(err, syncmanager.ErrUnknownChat) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.NotFound(err.Error()))
				return
			}
			logger.Warn(verb+" rejected", sl.Err(err))
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, response.Conflict(err.Error()))
			return
		}
		logger.Info("sync " + verb + " accepted")

		render.JSON(w, r, syncResult{Success: true, ChatId: req.ChatId, Message: "sync " + verb + " accepted"})
	}
}
