// Package search turns chat text into engine queries, applies permission
// and privacy filters and renders result pages.
package search

import (
	"errors"
	"fmt"
	"strings"

	"tgindex/entity"
)

const (
	// HitsPerPage is the fixed page size sent to the engine.
	HitsPerPage = 10
	// MaxPage bounds pagination; deeper results require a narrower query.
	MaxPage = 100
)

var (
	ErrEmptyKeyword = errors.New("empty search keyword")
	ErrPageRange    = fmt.Errorf("page must be between 1 and %d", MaxPage)
)

// Query is a parsed search invocation.
type Query struct {
	Keyword  string
	ChatType string // one of the document chat types, empty for all
	User     string // sender filter, id or username
	Exact    bool
	Page     int
}

// Parse understands the positional command grammar:
//
//	free text                fuzzy search
//	"quoted text"            exact match
//	-m=e <kw>                exact match
//	-t=<CHATTYPE> <kw>       chat type filter
//	-u=<id-or-username> <kw> sender filter
//	/search <kw>             explicit form, same grammar after the command
//
// Flags may appear in any order before or between keyword words.
func Parse(text string) (Query, error) {
	q := Query{Page: 1}
	text = strings.TrimSpace(text)
	if cmd, rest, ok := splitCommand(text); ok {
		switch {
		case cmd == "search":
			text = rest
		case entity.IsValidChatType(cmd):
			// shortcut form: /<chattype> [user] <kw>
			q.ChatType = strings.ToUpper(cmd)
			text = rest
			if user, kw, ok := leadingUser(text); ok {
				q.User = user
				text = kw
			}
		default:
			return q, fmt.Errorf("unknown command /%s", cmd)
		}
	}

	var words []string
	for _, tok := range strings.Fields(text) {
		switch {
		case strings.HasPrefix(tok, "-m="):
			if strings.EqualFold(tok[3:], "e") {
				q.Exact = true
			}
		case strings.HasPrefix(tok, "-t="):
			v := tok[3:]
			if !entity.IsValidChatType(v) {
				return q, fmt.Errorf("unknown chat type %q, expected one of %s",
					v, strings.Join(entity.ChatTypes(), ", "))
			}
			q.ChatType = strings.ToUpper(v)
		case strings.HasPrefix(tok, "-u="):
			q.User = strings.TrimPrefix(tok[3:], "@")
		default:
			words = append(words, tok)
		}
	}

	q.Keyword = strings.Join(words, " ")
	if kw, ok := unquote(q.Keyword); ok {
		q.Keyword = kw
		q.Exact = true
	}
	if q.Keyword == "" {
		return q, ErrEmptyKeyword
	}
	return q, nil
}

// ValidatePage rejects out-of-range page numbers before any engine call.
func ValidatePage(page int) error {
	if page < 1 || page > MaxPage {
		return ErrPageRange
	}
	return nil
}

// splitCommand peels a leading "/cmd" or "/cmd@botname" off the text.
func splitCommand(text string) (cmd, rest string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, tail, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(tail), head != ""
}

// leadingUser recognizes an optional positional sender filter: a token that
// is numeric or starts with @. Plain words stay part of the keyword.
func leadingUser(text string) (user, rest string, ok bool) {
	head, tail, found := strings.Cut(text, " ")
	if !found || head == "" {
		return "", text, false
	}
	if strings.HasPrefix(head, "@") {
		return head[1:], strings.TrimSpace(tail), true
	}
	numeric := head
	if strings.HasPrefix(numeric, "-") {
		numeric = numeric[1:]
	}
	if numeric == "" {
		return "", text, false
	}
	for _, r := range numeric {
		if r < '0' || r > '9' {
			return "", text, false
		}
	}
	return head, strings.TrimSpace(tail), true
}

// unquote strips a fully wrapping pair of straight or typographic quotes.
func unquote(s string) (string, bool) {
	if len(s) < 2 {
		return s, false
	}
	pairs := [][2]string{{`"`, `"`}, {"“", "”"}, {"„", "“"}}
	for _, p := range pairs {
		if strings.HasPrefix(s, p[0]) && strings.HasSuffix(s, p[1]) && len(s) > len(p[0])+len(p[1]) {
			return s[len(p[0]) : len(s)-len(p[1])], true
		}
	}
	return s, false
}
