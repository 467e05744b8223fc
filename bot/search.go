package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"tgindex/entity"
	"tgindex/internal/search"
	"tgindex/lib/sl"
)

const searchTimeout = 30 * time.Second

// chatTypeOf maps Telegram chat type names onto the document enumeration.
func chatTypeOf(chat *tgbotapi.Chat) string {
	switch chat.Type {
	case "private":
		return entity.ChatTypePrivate
	case "group":
		return entity.ChatTypeGroup
	case "supergroup":
		return entity.ChatTypeSupergroup
	case "channel":
		return entity.ChatTypeChannel
	default:
		return strings.ToUpper(chat.Type)
	}
}

// onText treats free text in private chats as a search. Groups require the
// explicit /search form to avoid indexing chatter triggering replies.
func (t *TgBot) onText(_ *tgbotapi.Bot, ctx *ext.Context) error {
	text := ctx.EffectiveMessage.Text
	if strings.HasPrefix(text, "/") {
		return nil
	}
	if chatTypeOf(ctx.EffectiveChat) != entity.ChatTypePrivate {
		return nil
	}
	t.handleSearch(ctx, text)
	return nil
}

func (t *TgBot) onSearchCommand(_ *tgbotapi.Bot, ctx *ext.Context) error {
	t.handleSearch(ctx, ctx.EffectiveMessage.Text)
	return nil
}

func (t *TgBot) handleSearch(ctx *ext.Context, text string) {
	userId := ctx.EffectiveUser.Id
	chat := ctx.EffectiveChat
	chatType := chatTypeOf(chat)
	inGroup := chatType == entity.ChatTypeGroup || chatType == entity.ChatTypeSupergroup

	if !t.access.Allowed(userId, chat.Id, chatType) {
		// denials in groups stay silent to avoid spam
		if !inGroup {
			t.errorResponse(chat.Id, "You are not allowed to use this bot")
		}
		return
	}

	query, err := search.Parse(text)
	if err != nil {
		if errors.Is(err, search.ErrEmptyKeyword) {
			t.errorResponse(chat.Id, "Give me something to search for")
		} else {
			t.errorResponse(chat.Id, err.Error())
		}
		return
	}

	inv := search.Invocation{
		UserId:    userId,
		Username:  ctx.EffectiveUser.Username,
		FirstName: ctx.EffectiveUser.FirstName,
		ChatId:    chat.Id,
		ChatType:  chatType,
		Query:     query,
	}
	t.runAndReply(inv, 0)
}

// runAndReply executes the pipeline and posts (or edits) the result page.
// editMessageId of 0 sends a new message.
func (t *TgBot) runAndReply(inv search.Invocation, editMessageId int64) {
	runCtx, cancel := context.WithTimeout(context.Background(), searchTimeout)
	defer cancel()

	res, err := t.pipeline.Run(runCtx, inv)
	if err != nil {
		if errors.Is(err, search.ErrPageRange) {
			t.errorResponse(inv.ChatId, err.Error())
			return
		}
		t.log.With(sl.User(inv.UserId), sl.Err(err)).Error("search failed")
		t.errorResponse(inv.ChatId, "Search is unavailable right now")
		return
	}

	body := search.Render(res)
	keyboard, hasNav := navigationKeyboard(res.Page, res.Response.TotalPages)

	if len(body) > search.MessageLimit {
		caption := fmt.Sprintf("Results for: %s", inv.Query.Keyword)
		t.sendAsFile(inv.ChatId, "results.txt", caption, []byte(renderPlain(res)))
		return
	}

	inGroup := inv.ChatType == entity.ChatTypeGroup || inv.ChatType == entity.ChatTypeSupergroup

	var messageId int64
	if editMessageId != 0 {
		messageId = editMessageId
		opts := &tgbotapi.EditMessageTextOpts{
			ChatId:    inv.ChatId,
			MessageId: editMessageId,
			ParseMode: "MarkdownV2",
		}
		if hasNav {
			opts.ReplyMarkup = keyboard
		}
		if _, _, err = t.api.EditMessageText(body, opts); err != nil {
			t.log.With(sl.Chat(inv.ChatId), sl.Err(err)).Warn("editing result page")
			return
		}
	} else if hasNav {
		messageId = t.sendWithKeyboard(inv.ChatId, body, keyboard)
	} else {
		t.plainResponse(inv.ChatId, body)
		return
	}
	if messageId == 0 {
		return
	}

	if hasNav {
		t.sessions.put(inv.ChatId, messageId, inv)
		if inGroup {
			t.deleter.Schedule(inv.ChatId, messageId, autoDeleteDelay)
		}
	}
}

// renderPlain is the attachment fallback: no markdown, no length cap.
func renderPlain(res *search.Result) string {
	var b strings.Builder
	for _, hit := range res.Response.Hits {
		chatName := hit.Chat.Title
		if chatName == "" {
			chatName = fmt.Sprintf("%d", hit.Chat.Id)
		}
		date := time.Unix(hit.Date, 0).UTC().Format(time.RFC3339)
		b.WriteString(fmt.Sprintf("%s -> %s on %s: %s\n",
			hit.FromUser.DisplayName(), chatName, date, hit.SearchableText()))
	}
	b.WriteString(fmt.Sprintf("\nPage %d/%d, %d results\n",
		res.Page, res.Response.TotalPages, res.Response.TotalHits))
	return b.String()
}

func navigationKeyboard(page, totalPages int) (tgbotapi.InlineKeyboardMarkup, bool) {
	buttons := search.Navigation(page, totalPages)
	if len(buttons) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		row = append(row, tgbotapi.InlineKeyboardButton{
			Text:         b.Label,
			CallbackData: b.Data,
		})
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{row}}, true
}
