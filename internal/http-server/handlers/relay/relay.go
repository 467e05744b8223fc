// Package relay exposes the durable inter-service message queue.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"tgindex/entity"
	"tgindex/lib/api/response"
	"tgindex/lib/sl"
	"tgindex/lib/validate"
)

type Core interface {
	Enqueue(ctx context.Context, m entity.RelayMessage) (string, error)
	Dequeue(ctx context.Context, toService string, limit int) ([]entity.RelayMessage, error)
	Ack(ctx context.Context, id string) error
	Reap(ctx context.Context, olderThan time.Duration) (int64, error)
}

type enqueueRequest struct {
	entity.RelayMessage
}

func (m *enqueueRequest) Bind(_ *http.Request) error {
	return validate.Struct(&m.RelayMessage)
}

func Post(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.relay"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req enqueueRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Error("bind request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequest(fmt.Sprintf("Invalid request: %v", err)))
			return
		}

		id, err := handler.Enqueue(r.Context(), req.RelayMessage)
		if err != nil {
			logger.Error("enqueue", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Internal(err.Error()))
			return
		}
		logger.Debug("message queued",
			slog.String("to", req.ToService),
			slog.String("id", id),
		)

		render.JSON(w, r, struct {
			Success bool   `json:"success"`
			Id      string `json:"id"`
		}{Success: true, Id: id})
	}
}

func Get(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.relay"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		to := r.URL.Query().Get("to")
		if to == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequest("to query parameter is required"))
			return
		}
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.BadRequest("limit must be a positive integer"))
				return
			}
			limit = n
		}

		msgs, err := handler.Dequeue(r.Context(), to, limit)
		if err != nil {
			logger.Error("dequeue", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Internal(err.Error()))
			return
		}
		if msgs == nil {
			msgs = []entity.RelayMessage{}
		}

		render.JSON(w, r, struct {
			Messages []entity.RelayMessage `json:"messages"`
		}{Messages: msgs})
	}
}

func Ack(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.relay"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id := chi.URLParam(r, "id")
		if id == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequest("id is required"))
			return
		}

		if err := handler.Ack(r.Context(), id); err != nil {
			logger.Warn("ack", sl.Err(err))
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.NotFound(err.Error()))
			return
		}

		render.JSON(w, r, struct {
			Success bool `json:"success"`
		}{Success: true})
	}
}

// Reap removes messages older than the retention window (hours query
// parameter, default 24), whether or not they were ever acked.
func Reap(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.relay"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		hours := 24
		if raw := r.URL.Query().Get("hours"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.BadRequest("hours must be a positive integer"))
				return
			}
			hours = n
		}

		n, err := handler.Reap(r.Context(), time.Duration(hours)*time.Hour)
		if err != nil {
			logger.Error("reap", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Internal(err.Error()))
			return
		}

		render.JSON(w, r, struct {
			Success bool  `json:"success"`
			Removed int64 `json:"removed"`
		}{Success: true, Removed: n})
	}
}
