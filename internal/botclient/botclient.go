// Package botclient lets the ingestor relay files to the owner through the
// bot session, since the account session should not message users directly.
package botclient

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"tgindex/entity"
	"tgindex/internal/apiclient"
	"tgindex/lib/sl"
)

type Client struct {
	api *apiclient.Client
	log *slog.Logger
}

func New(baseURL string, timeout time.Duration, maxRetries int, auth apiclient.TokenSource, log *slog.Logger) *Client {
	return &Client{
		api: apiclient.New(baseURL, entity.ServiceBot, timeout, maxRetries, auth, log),
		log: log.With(sl.Module("botclient")),
	}
}

type SendFileResult struct {
	Success   bool  `json:"success"`
	MessageId int64 `json:"message_id"`
}

// SendFile ships raw file bytes to the bot for delivery. recipientId of 0
// means the configured owner.
func (c *Client) SendFile(ctx context.Context, data []byte, fileName, caption string, recipientId int64) (*SendFileResult, error) {
	body := struct {
		FileData    string `json:"file_data"`
		FileName    string `json:"file_name"`
		Caption     string `json:"caption,omitempty"`
		RecipientId int64  `json:"recipient_id,omitempty"`
	}{
		FileData:    base64.StdEncoding.EncodeToString(data),
		FileName:    fileName,
		Caption:     caption,
		RecipientId: recipientId,
	}
	var out SendFileResult
	if err := c.api.Do(ctx, http.MethodPost, "/api/v1/send_file", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
