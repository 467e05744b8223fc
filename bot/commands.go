package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"

	"tgindex/entity"
	"tgindex/internal/apiclient"
	"tgindex/internal/search"
	"tgindex/internal/syncclient"
	"tgindex/lib/sl"
)

const commandTimeout = 30 * time.Second

const helpText = `Search bot commands:

/search <keywords> - search indexed messages
/search "exact phrase" - exact match
/search -t=GROUP -u=name <keywords> - filter by chat type and sender
/private /group /supergroup /channel /bot - chat type shortcuts
/mystats [24h|7d|4w] [at] - your activity in this group
/block_me - exclude your messages from search results
/unblock_me - include them again
/privacy_status - show your privacy state

Sync (admins):
/sync [chat_id] - enroll a chat for history sync
/sync_status [chat_id] - sync progress
/pause <chat_id> /resume <chat_id> - sync control

In private chat any plain text is treated as a search.`

func (t *TgBot) start(_ *tgbotapi.Bot, ctx *ext.Context) error {
	t.plainResponse(ctx.EffectiveChat.Id, Sanitize("Hi! Send me a search query, or /help for the full command list."))
	return nil
}

func (t *TgBot) help(_ *tgbotapi.Bot, ctx *ext.Context) error {
	t.plainResponse(ctx.EffectiveChat.Id, Sanitize(helpText))
	return nil
}

// commandArgs drops the leading "/command" token.
func commandArgs(ctx *ext.Context) []string {
	args := ctx.Args()
	if len(args) == 0 {
		return nil
	}
	return args[1:]
}

func (t *TgBot) myStats(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chat := ctx.EffectiveChat
	user := ctx.EffectiveUser
	chatType := chatTypeOf(chat)
	if chatType != entity.ChatTypeGroup && chatType != entity.ChatTypeSupergroup {
		t.errorResponse(chat.Id, "Stats only work inside a group")
		return nil
	}
	if !t.access.Allowed(user.Id, chat.Id, chatType) {
		return nil
	}

	q, err := search.ParseStats(commandArgs(ctx))
	if err != nil {
		t.errorResponse(chat.Id, err.Error())
		return nil
	}

	runCtx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	st, err := search.UserStats(runCtx, t.engine, chat.Id, user.Id, q)
	if err != nil {
		t.reportError(chat.Id, "mystats", err)
		return nil
	}

	name := user.FirstName
	if name == "" {
		name = user.Username
	}
	t.plainResponse(chat.Id, search.RenderStats(name, q, st))
	return nil
}

func (t *TgBot) blockMe(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveChat.Id
	changed, err := t.privacy.Block(ctx.EffectiveUser.Id)
	if err != nil {
		t.reportError(chatId, "block_me", err)
		return nil
	}
	if changed {
		t.plainResponse(chatId, Sanitize("🔒 Your messages are now hidden from search results."))
	} else {
		t.plainResponse(chatId, Sanitize("Your messages are already hidden."))
	}
	return nil
}

func (t *TgBot) unblockMe(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveChat.Id
	changed, err := t.privacy.Unblock(ctx.EffectiveUser.Id)
	if err != nil {
		t.reportError(chatId, "unblock_me", err)
		return nil
	}
	if changed {
		t.plainResponse(chatId, Sanitize("🔓 Your messages show up in search results again."))
	} else {
		t.plainResponse(chatId, Sanitize("Your messages were not hidden."))
	}
	return nil
}

func (t *TgBot) privacyStatus(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if t.privacy.IsBlocked(ctx.EffectiveUser.Id) {
		t.plainResponse(ctx.EffectiveChat.Id, Sanitize("🔒 Hidden: your messages are excluded from search results."))
	} else {
		t.plainResponse(ctx.EffectiveChat.Id, Sanitize("🔓 Visible: your messages appear in search results."))
	}
	return nil
}

// targetChat resolves the chat a sync command applies to: explicit id
// argument first, the current group otherwise.
func (t *TgBot) targetChat(ctx *ext.Context) (int64, error) {
	args := commandArgs(ctx)
	if len(args) > 0 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("bad chat id %q", args[0])
		}
		return id, nil
	}
	chatType := chatTypeOf(ctx.EffectiveChat)
	if chatType == entity.ChatTypeGroup || chatType == entity.ChatTypeSupergroup {
		return ctx.EffectiveChat.Id, nil
	}
	return 0, errors.New("give me a chat id, or run this inside the group")
}

func (t *TgBot) syncChat(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveChat.Id
	if !t.access.IsAdmin(ctx.EffectiveUser.Id) {
		return nil
	}
	target, err := t.targetChat(ctx)
	if err != nil {
		t.errorResponse(chatId, err.Error())
		return nil
	}

	runCtx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	res, err := t.syncCtl.AddSync(runCtx, target, ctx.EffectiveUser.Id)
	if err != nil {
		var se *apiclient.StatusError
		if errors.As(err, &se) && se.Code == http.StatusConflict {
			t.errorResponse(chatId, fmt.Sprintf("Chat %d is already being synced", target))
			return nil
		}
		t.reportError(chatId, "sync", err)
		return nil
	}
	t.plainResponse(chatId, Sanitize(fmt.Sprintf("✅ Chat %d enrolled for sync (%s)", res.ChatId, res.Status)))
	return nil
}

func (t *TgBot) syncStatus(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveChat.Id
	if !t.access.IsAdmin(ctx.EffectiveUser.Id) {
		return nil
	}
	var target int64
	if args := commandArgs(ctx); len(args) > 0 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			t.errorResponse(chatId, fmt.Sprintf("bad chat id %q", args[0]))
			return nil
		}
		target = id
	}

	runCtx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	st, err := t.syncCtl.Status(runCtx, target)
	if err != nil {
		var se *apiclient.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			t.errorResponse(chatId, fmt.Sprintf("Chat %d is not enrolled for sync", target))
			return nil
		}
		t.reportError(chatId, "sync_status", err)
		return nil
	}
	t.plainResponse(chatId, renderSyncStatus(st.Chats, st.Summary))
	return nil
}

func renderSyncStatus(chats []entity.SyncProgress, summary *entity.SyncSummary) string {
	if len(chats) == 0 {
		return Sanitize("No chats enrolled for sync.")
	}
	var b strings.Builder
	for _, c := range chats {
		line := fmt.Sprintf("%d: %s %d/%d (%.1f%%)", c.ChatId, c.Status, c.SyncedCount, c.TotalCount, c.ProgressPercent)
		if c.LastError != "" {
			line += " - " + c.LastError
		}
		b.WriteString(Sanitize(line))
		b.WriteString("\n")
	}
	if summary != nil {
		b.WriteString(Sanitize(fmt.Sprintf(
			"\nTotal %d chats: %d done, %d running, %d pending, %d paused, %d failed. Messages %d/%d (%.1f%%)",
			summary.TotalChats, summary.Completed, summary.InProgress, summary.Pending,
			summary.Paused, summary.Failed, summary.SyncedMessages, summary.TotalMessages,
			summary.ProgressPercent)))
	}
	return b.String()
}

func (t *TgBot) pauseSync(_ *tgbotapi.Bot, ctx *ext.Context) error {
	return t.syncTransition(ctx, "pause", t.syncCtl.Pause)
}

func (t *TgBot) resumeSync(_ *tgbotapi.Bot, ctx *ext.Context) error {
	return t.syncTransition(ctx, "resume", t.syncCtl.Resume)
}

func (t *TgBot) syncTransition(ctx *ext.Context, verb string, call func(context.Context, int64) (*syncclient.SyncResult, error)) error {
	chatId := ctx.EffectiveChat.Id
	if !t.access.IsAdmin(ctx.EffectiveUser.Id) {
		return nil
	}
	target, err := t.targetChat(ctx)
	if err != nil {
		t.errorResponse(chatId, err.Error())
		return nil
	}

	runCtx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	res, err := call(runCtx, target)
	if err != nil {
		var se *apiclient.StatusError
		if errors.As(err, &se) {
			switch se.Code {
			case http.StatusNotFound:
				t.errorResponse(chatId, fmt.Sprintf("Chat %d is not enrolled for sync", target))
				return nil
			case http.StatusConflict:
				t.errorResponse(chatId, fmt.Sprintf("Cannot %s chat %d: %s", verb, target, se.Message))
				return nil
			}
		}
		t.reportError(chatId, verb, err)
		return nil
	}
	t.plainResponse(chatId, Sanitize(fmt.Sprintf("✅ %s", res.Message)))
	return nil
}

// ownerOnly gates maintenance commands; everyone else is ignored silently.
func (t *TgBot) ownerOnly(fn handlers.Response) handlers.Response {
	return func(b *tgbotapi.Bot, ctx *ext.Context) error {
		if ctx.EffectiveUser == nil || ctx.EffectiveUser.Id != t.ownerId {
			t.log.With(sl.User(ctx.EffectiveUser.Id)).Debug("owner command refused")
			return nil
		}
		return fn(b, ctx)
	}
}

func (t *TgBot) ping(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveChat.Id
	runCtx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	started := time.Now()
	pong, err := t.engine.Ping(runCtx)
	if err != nil {
		t.reportError(chatId, "ping", err)
		return nil
	}
	text := fmt.Sprintf("🏓 %s (%s), %d documents, %dms",
		pong.Status, pong.Engine, pong.TotalDocuments, time.Since(started).Milliseconds())

	// sync summary is best effort
	if st, err := t.syncCtl.Status(runCtx, 0); err == nil && st.Summary != nil {
		s := st.Summary
		text += fmt.Sprintf("\nSync: %d chats, %d/%d messages (%.1f%%)",
			s.TotalChats, s.SyncedMessages, s.TotalMessages, s.ProgressPercent)
	}
	t.plainResponse(chatId, Sanitize(text))
	return nil
}

// clean removes indexed bot commands ("/..." messages) from the index.
func (t *TgBot) clean(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveChat.Id
	runCtx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	res, err := t.engine.ClearCommands(runCtx)
	if err != nil {
		t.reportError(chatId, "clean", err)
		return nil
	}
	t.plainResponse(chatId, Sanitize(fmt.Sprintf("🧹 Removed %d command messages", res.DeletedCount)))
	return nil
}

func (t *TgBot) dedup(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveChat.Id
	t.plainResponse(chatId, Sanitize("Deduplication started, this can take a while..."))
	// the engine walks the whole index; Dedup carries its own long deadline
	res, err := t.engine.Dedup(context.Background())
	if err != nil {
		t.reportError(chatId, "dedup", err)
		return nil
	}
	t.plainResponse(chatId, Sanitize(fmt.Sprintf("✅ Found %d duplicates, removed %d",
		res.DuplicatesFound, res.DuplicatesRemoved)))
	return nil
}

func (t *TgBot) deleteChat(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveChat.Id
	args := commandArgs(ctx)
	if len(args) == 0 {
		t.errorResponse(chatId, "Usage: /delete_chat <chat_id>")
		return nil
	}
	target, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		t.errorResponse(chatId, fmt.Sprintf("bad chat id %q", args[0]))
		return nil
	}
	runCtx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	res, err := t.engine.DeleteChat(runCtx, target)
	if err != nil {
		t.reportError(chatId, "delete_chat", err)
		return nil
	}
	t.plainResponse(chatId, Sanitize(fmt.Sprintf("🗑 Removed %d messages of chat %d", res.DeletedCount, target)))
	return nil
}

func (t *TgBot) deleteUser(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveChat.Id
	args := commandArgs(ctx)
	if len(args) == 0 {
		t.errorResponse(chatId, "Usage: /delete_user <user_id>")
		return nil
	}
	target, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		t.errorResponse(chatId, fmt.Sprintf("bad user id %q", args[0]))
		return nil
	}
	runCtx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	res, err := t.engine.DeleteUser(runCtx, target)
	if err != nil {
		t.reportError(chatId, "delete_user", err)
		return nil
	}
	t.plainResponse(chatId, Sanitize(fmt.Sprintf("🗑 Removed %d messages of user %d", res.DeletedCount, target)))
	return nil
}

// cleanLogs purges query log entries older than the given number of days
// (default 30).
func (t *TgBot) cleanLogs(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveChat.Id
	if t.qlog == nil {
		t.errorResponse(chatId, "Query logging is disabled")
		return nil
	}
	days := 30
	if args := commandArgs(ctx); len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			t.errorResponse(chatId, fmt.Sprintf("bad day count %q", args[0]))
			return nil
		}
		days = n
	}
	runCtx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	n, err := t.qlog.Purge(runCtx, time.Duration(days)*24*time.Hour)
	if err != nil {
		t.reportError(chatId, "cleanlogs", err)
		return nil
	}
	trimmed := int64(0)
	if maxEntries, err := t.qlog.GetInt(runCtx, "max_log_entries", 0); err == nil && maxEntries > 0 {
		trimmed, _ = t.qlog.Trim(runCtx, maxEntries)
	}
	t.plainResponse(chatId, Sanitize(fmt.Sprintf(
		"🧹 Purged %d log entries older than %d days, trimmed %d over the entry cap", n, days, trimmed)))
	return nil
}
