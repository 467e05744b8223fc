package bot

import (
	"bytes"
	"context"
	"log/slog"
	"strings"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"

	"tgindex/lib/sl"
)

// plainResponse sends a MarkdownV2 message; caller escapes the text.
func (t *TgBot) plainResponse(chatId int64, text string) {
	if text == "" {
		return
	}
	_, err := t.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		t.log.With(slog.Int64("id", chatId)).Warn("sending message", sl.Err(err))
		_, _ = t.api.SendMessage(chatId, err.Error(), &tgbotapi.SendMessageOpts{})
	}
}

// errorResponse prefixes the user-visible failure marker.
func (t *TgBot) errorResponse(chatId int64, text string) {
	t.plainResponse(chatId, Sanitize("❌ "+text))
}

// sendWithKeyboard sends a MarkdownV2 message with an inline keyboard and
// returns the sent message id, 0 on failure.
func (t *TgBot) sendWithKeyboard(chatId int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) int64 {
	if text == "" {
		return 0
	}
	msg, err := t.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{
		ParseMode:   "MarkdownV2",
		ReplyMarkup: keyboard,
	})
	if err != nil {
		t.log.With(slog.Int64("id", chatId)).Warn("sending message with keyboard", sl.Err(err))
		return 0
	}
	return msg.MessageId
}

// sendAsFile delivers an oversize body as a text attachment.
func (t *TgBot) sendAsFile(chatId int64, name, caption string, data []byte) int64 {
	msg, err := t.api.SendDocument(chatId, tgbotapi.NamedFile{
		File:     bytes.NewReader(data),
		FileName: name,
	}, &tgbotapi.SendDocumentOpts{Caption: caption})
	if err != nil {
		t.log.With(slog.Int64("id", chatId)).Warn("sending file", sl.Err(err))
		return 0
	}
	return msg.MessageId
}

// SendFile lets the control plane deliver files through the bot session.
// A zero recipient means the owner.
func (t *TgBot) SendFile(_ context.Context, data []byte, fileName, caption string, recipientId int64) (int64, error) {
	if recipientId == 0 {
		recipientId = t.ownerId
	}
	msg, err := t.api.SendDocument(recipientId, tgbotapi.NamedFile{
		File:     bytes.NewReader(data),
		FileName: fileName,
	}, &tgbotapi.SendDocumentOpts{Caption: caption})
	if err != nil {
		return 0, err
	}
	return msg.MessageId, nil
}

func (t *TgBot) deleteMessage(chatId, messageId int64) {
	_, err := t.api.DeleteMessage(chatId, messageId, nil)
	if err != nil {
		t.log.With(sl.Chat(chatId), slog.Int64("message_id", messageId)).Debug("delete message", sl.Err(err))
	}
}

func (t *TgBot) reportError(chatId int64, source string, err error) {
	t.log.With(slog.String("source", source)).Error("command failed", sl.Err(err))
	t.errorResponse(chatId, "Something went wrong, try again later")
}

func Sanitize(input string) string {
	reservedChars := "\\_{}#+-.!|()[]=*"
	sanitized := ""
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			sanitized += "\\" + string(char)
		} else {
			sanitized += string(char)
		}
	}
	return sanitized
}
