// Package bot implements the Telegram search bot.
//
// Architecture overview:
//   - tgbot.go: TgBot struct, lifecycle (Start/Stop), dispatcher wiring
//   - commands.go: user commands (/start, /help, /ping, privacy, stats) and
//     owner commands (/sync, /pause, /resume, /clean, /dedup, /delete_chat,
//     /delete_user, /cleanlogs)
//   - search.go: the search flow from access check through parse and the
//     pipeline to the reply; oversize replies go out as file attachments
//   - callbacks.go: pagination callbacks ("n|<page>" / "p|<page>") and the
//     per-message search session map
//   - autodelete.go: timed deletion of paginated replies in groups
//   - helpers.go: shared send/escape/reporting utilities
//
// Thread safety: the session map and the auto-delete timer map carry their
// own mutexes; everything else is read-only after Start.
package bot

import (
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/callbackquery"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/message"

	"tgindex/internal/access"
	"tgindex/internal/privacy"
	"tgindex/internal/querylog"
	"tgindex/internal/search"
	"tgindex/internal/searchclient"
	"tgindex/internal/syncclient"
	"tgindex/lib/sl"
)

type TgBot struct {
	log      *slog.Logger
	api      *tgbotapi.Bot
	ownerId  int64
	access   *access.Controller
	privacy  *privacy.Manager
	pipeline *search.Pipeline
	engine   *searchclient.Client
	syncCtl  *syncclient.Client
	qlog     *querylog.Store // nil when query logging is disabled
	sessions *sessionStore
	deleter  *autoDelete
	updater  *ext.Updater
}

func NewTgBot(
	apiKey string,
	ownerId int64,
	ac *access.Controller,
	pv *privacy.Manager,
	pipeline *search.Pipeline,
	engine *searchclient.Client,
	syncCtl *syncclient.Client,
	qlog *querylog.Store,
	log *slog.Logger,
) (*TgBot, error) {
	t := &TgBot{
		log:      log.With(sl.Module("tgbot")),
		ownerId:  ownerId,
		access:   ac,
		privacy:  pv,
		pipeline: pipeline,
		engine:   engine,
		syncCtl:  syncCtl,
		qlog:     qlog,
		sessions: newSessionStore(),
	}
	t.deleter = newAutoDelete(func(chatId, messageId int64) {
		t.sessions.drop(chatId, messageId)
		t.deleteMessage(chatId, messageId)
	}, t.log)

	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating api instance: %v", err)
	}
	t.api = api

	return t, nil
}

func (t *TgBot) Start() error {
	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		Error: func(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
			t.log.Error("handling update:", sl.Err(err))
			return ext.DispatcherActionNoop
		},
		MaxRoutines: ext.DefaultMaxRoutines,
	})
	t.updater = ext.NewUpdater(dispatcher, nil)

	// user commands
	dispatcher.AddHandler(handlers.NewCommand("start", t.start))
	dispatcher.AddHandler(handlers.NewCommand("help", t.help))
	dispatcher.AddHandler(handlers.NewCommand("search", t.onSearchCommand))
	dispatcher.AddHandler(handlers.NewCommand("mystats", t.myStats))
	dispatcher.AddHandler(handlers.NewCommand("block_me", t.blockMe))
	dispatcher.AddHandler(handlers.NewCommand("unblock_me", t.unblockMe))
	dispatcher.AddHandler(handlers.NewCommand("privacy_status", t.privacyStatus))

	// chat type shortcuts, /group foo == /search -t=GROUP foo
	for _, name := range []string{"private", "group", "supergroup", "channel", "bot"} {
		dispatcher.AddHandler(handlers.NewCommand(name, t.onSearchCommand))
	}

	// sync control
	dispatcher.AddHandler(handlers.NewCommand("sync", t.syncChat))
	dispatcher.AddHandler(handlers.NewCommand("sync_status", t.syncStatus))
	dispatcher.AddHandler(handlers.NewCommand("pause", t.pauseSync))
	dispatcher.AddHandler(handlers.NewCommand("resume", t.resumeSync))

	// owner maintenance
	dispatcher.AddHandler(handlers.NewCommand("ping", t.ownerOnly(t.ping)))
	dispatcher.AddHandler(handlers.NewCommand("clean", t.ownerOnly(t.clean)))
	dispatcher.AddHandler(handlers.NewCommand("dedup", t.ownerOnly(t.dedup)))
	dispatcher.AddHandler(handlers.NewCommand("delete_chat", t.ownerOnly(t.deleteChat)))
	dispatcher.AddHandler(handlers.NewCommand("delete_user", t.ownerOnly(t.deleteUser)))
	dispatcher.AddHandler(handlers.NewCommand("cleanlogs", t.ownerOnly(t.cleanLogs)))

	// free text is a search
	dispatcher.AddHandler(handlers.NewMessage(message.Text, t.onText))

	// pagination
	dispatcher.AddHandler(handlers.NewCallback(callbackquery.Prefix(cbNext), t.onNavigate))
	dispatcher.AddHandler(handlers.NewCallback(callbackquery.Prefix(cbPrev), t.onNavigate))

	err := t.updater.StartPolling(t.api, &ext.PollingOpts{
		DropPendingUpdates: true,
		GetUpdatesOpts: &tgbotapi.GetUpdatesOpts{
			Timeout: 9,
			RequestOpts: &tgbotapi.RequestOpts{
				Timeout: time.Second * 10,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start polling: %w", err)
	}
	t.log.Info("bot polling started")

	t.updater.Idle()
	return nil
}

func (t *TgBot) Stop() {
	t.deleter.Stop()
	if t.updater != nil {
		t.log.Info("stopping telegram bot")
		_ = t.updater.Stop()
	}
}
