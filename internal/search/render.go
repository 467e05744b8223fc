package search

import (
	"fmt"
	"strings"
	"time"

	"tgindex/entity"
)

// MessageLimit is the longest body Telegram accepts; larger renders go out
// as a file attachment instead.
const MessageLimit = 4096

// result timestamps are shown in UTC+8
var displayZone = time.FixedZone("UTC+8", 8*3600)

// snippetLen bounds the text shown per hit.
const snippetLen = 120

// Escape makes text safe for MarkdownV2.
func Escape(input string) string {
	reservedChars := "\\_{}#+-.!|()[]=*~>`"
	var b strings.Builder
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			b.WriteRune('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// Render produces the MarkdownV2 page body: one line per hit plus a footer
// with totals.
func Render(r *Result) string {
	resp := r.Response
	if resp.TotalHits == 0 || len(resp.Hits) == 0 {
		return Escape("No results found.")
	}

	var b strings.Builder
	for _, hit := range resp.Hits {
		b.WriteString(renderHit(hit))
		b.WriteString("\n")
	}
	b.WriteString(Escape(fmt.Sprintf(
		"\nPage %d/%d, %d results (%d ms)",
		r.Page, resp.TotalPages, resp.TotalHits, r.ElapsedMs,
	)))
	return b.String()
}

// renderHit builds one result line:
//
//	sender -> [chat](deep_link) on <date>: text 👀(message link)
func renderHit(hit entity.Document) string {
	sender := Escape(hit.FromUser.DisplayName())
	chatName := hit.Chat.Title
	if chatName == "" {
		chatName = hit.Chat.Username
	}
	if chatName == "" {
		chatName = fmt.Sprintf("%d", hit.Chat.Id)
	}
	date := time.Unix(hit.Date, 0).In(displayZone).Format(time.RFC3339)

	text := hit.SearchableText()
	if len(text) > snippetLen {
		cut := snippetLen
		for cut > 0 && text[cut]&0xC0 == 0x80 { // do not split a UTF-8 rune
			cut--
		}
		text = text[:cut] + "..."
	}
	text = strings.ReplaceAll(text, "\n", " ")

	return fmt.Sprintf("%s \\-\\> [%s](%s) on %s: %s [👀](%s)",
		sender, Escape(chatName), chatLink(hit), Escape(date), Escape(text), messageLink(hit))
}

// chatLink prefers the chat username, falls back to the sender id, and
// last-resorts to a private-post link.
func chatLink(hit entity.Document) string {
	if hit.Chat.Username != "" {
		return "tg://resolve?domain=" + hit.Chat.Username
	}
	if hit.FromUser.Id != 0 {
		return fmt.Sprintf("tg://user?id=%d", hit.FromUser.Id)
	}
	return fmt.Sprintf("https://t.me/c/%s", stripChatPrefix(hit.Chat.Id))
}

// messageLink points at the concrete message.
func messageLink(hit entity.Document) string {
	if hit.Chat.Username != "" {
		return fmt.Sprintf("https://t.me/%s/%d", hit.Chat.Username, hit.MessageId)
	}
	return fmt.Sprintf("https://t.me/c/%s/%d", stripChatPrefix(hit.Chat.Id), hit.MessageId)
}

// stripChatPrefix turns the internal supergroup id into the short form used
// by t.me/c links: absolute value with the -100 prefix removed.
func stripChatPrefix(chatId int64) string {
	s := fmt.Sprintf("%d", chatId)
	s = strings.TrimPrefix(s, "-100")
	return strings.TrimPrefix(s, "-")
}

// NavButton is one pagination control.
type NavButton struct {
	Label string
	Data  string
}

// Navigation returns the inline buttons for a page position, nil when the
// result fits one page. Callback data is "p|<page>" or "n|<page>" carrying
// the target page.
func Navigation(page, totalPages int) []NavButton {
	if totalPages <= 1 {
		return nil
	}
	limit := totalPages
	if limit > MaxPage {
		limit = MaxPage
	}
	var out []NavButton
	if page > 1 {
		out = append(out, NavButton{Label: "⬅️ Prev", Data: fmt.Sprintf("p|%d", page-1)})
	}
	if page < limit {
		out = append(out, NavButton{Label: "Next ➡️", Data: fmt.Sprintf("n|%d", page+1)})
	}
	return out
}
