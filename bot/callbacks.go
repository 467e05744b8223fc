package bot

import (
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"tgindex/entity"
	"tgindex/internal/search"
	"tgindex/lib/sl"
)

// callback data prefixes for the pagination keyboard
const (
	cbNext = "n|"
	cbPrev = "p|"
)

// sessionStore remembers the search behind each paginated reply so that
// callback taps can re-run it on another page. Sessions live in memory
// only; after a restart the buttons answer with a "run it again" alert.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[deleteKey]search.Invocation
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[deleteKey]search.Invocation)}
}

func (s *sessionStore) put(chatId, messageId int64, inv search.Invocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[deleteKey{chatId: chatId, messageId: messageId}] = inv
}

func (s *sessionStore) get(chatId, messageId int64) (search.Invocation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.sessions[deleteKey{chatId: chatId, messageId: messageId}]
	return inv, ok
}

func (s *sessionStore) drop(chatId, messageId int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, deleteKey{chatId: chatId, messageId: messageId})
}

func (t *TgBot) onNavigate(_ *tgbotapi.Bot, ctx *ext.Context) error {
	cq := ctx.Update.CallbackQuery

	answer := func(text string, alert bool) {
		_, err := cq.Answer(t.api, &tgbotapi.AnswerCallbackQueryOpts{
			Text:      text,
			ShowAlert: alert,
		})
		if err != nil {
			t.log.Warn("answering callback", sl.Err(err))
		}
	}

	msg, ok := cq.Message.(tgbotapi.Message)
	if !ok {
		answer("This message is too old to page through", true)
		return nil
	}
	chatId := msg.Chat.Id
	messageId := msg.MessageId

	page, err := parseNavData(cq.Data)
	if err != nil {
		answer("Broken page button", true)
		return nil
	}

	inv, found := t.sessions.get(chatId, messageId)
	if !found {
		answer("This search has expired, run it again", true)
		return nil
	}
	if cq.From.Id != inv.UserId {
		answer("Only the requester can page through these results", true)
		return nil
	}

	inGroup := inv.ChatType == entity.ChatTypeGroup || inv.ChatType == entity.ChatTypeSupergroup
	if inGroup {
		// hold the reply while the user is still reading
		t.deleter.Cancel(chatId, messageId)
	}

	inv.Query.Page = page
	t.runAndReply(inv, messageId)
	answer("", false)
	return nil
}

// parseNavData extracts the target page from "n|<page>" / "p|<page>".
func parseNavData(data string) (int, error) {
	var raw string
	switch {
	case strings.HasPrefix(data, cbNext):
		raw = strings.TrimPrefix(data, cbNext)
	case strings.HasPrefix(data, cbPrev):
		raw = strings.TrimPrefix(data, cbPrev)
	default:
		raw = data
	}
	page, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if err := search.ValidatePage(page); err != nil {
		return 0, err
	}
	return page, nil
}
