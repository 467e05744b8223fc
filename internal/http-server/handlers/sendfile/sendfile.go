// Package sendfile lets the ingestor deliver files through the bot session.
package sendfile

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"tgindex/lib/api/response"
	"tgindex/lib/sl"
	"tgindex/lib/validate"
)

// 20 MB, the bot API upload ceiling
const maxFileSize = 20 << 20

type Core interface {
	SendFile(ctx context.Context, data []byte, fileName, caption string, recipientId int64) (int64, error)
}

type request struct {
	FileData    string `json:"file_data" validate:"required"`
	FileName    string `json:"file_name" validate:"required"`
	Caption     string `json:"caption,omitempty"`
	RecipientId int64  `json:"recipient_id,omitempty"`
}

func (f *request) Bind(_ *http.Request) error {
	return validate.Struct(f)
}

func Send(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.sendfile"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req request
		if err := render.Bind(r, &req); err != nil {
			logger.Error("bind request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequest(fmt.Sprintf("Invalid request: %v", err)))
			return
		}

		data, err := base64.StdEncoding.DecodeString(req.FileData)
		if err != nil {
			logger.Error("decode file data", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequest("file_data is not valid base64"))
			return
		}
		if len(data) > maxFileSize {
			render.Status(r, http.StatusRequestEntityTooLarge)
			render.JSON(w, r, response.Error{Err: "Payload Too Large", Message: "file exceeds 20 MB"})
			return
		}
		logger = logger.With(
			slog.String("file_name", req.FileName),
			slog.Int("size", len(data)),
			sl.User(req.RecipientId),
		)

		messageId, err := handler.SendFile(r.Context(), data, req.FileName, req.Caption, req.RecipientId)
		if err != nil {
			logger.Error("send file", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Internal(fmt.Sprintf("Send file: %v", err)))
			return
		}
		logger.Info("file delivered")

		render.JSON(w, r, struct {
			Success   bool  `json:"success"`
			MessageId int64 `json:"message_id"`
		}{Success: true, MessageId: messageId})
	}
}
