package search

import (
	"errors"
	"testing"
	"time"

	"tgindex/entity"
)

func TestParse_FreeText(t *testing.T) {
	q, err := Parse("hello world")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if q.Keyword != "hello world" || q.Exact || q.ChatType != "" || q.User != "" || q.Page != 1 {
		t.Fatalf("query = %+v", q)
	}
}

func TestParse_QuotedIsExact(t *testing.T) {
	q, err := Parse(`"hello world"`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if q.Keyword != "hello world" || !q.Exact {
		t.Fatalf("query = %+v", q)
	}
	// typographic quotes work too
	q, _ = Parse("“hello”")
	if q.Keyword != "hello" || !q.Exact {
		t.Fatalf("query = %+v", q)
	}
}

func TestParse_Flags(t *testing.T) {
	q, err := Parse("-t=group -u=@ann -m=e quarterly report")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if q.ChatType != entity.ChatTypeGroup {
		t.Fatalf("chat type = %q", q.ChatType)
	}
	if q.User != "ann" {
		t.Fatalf("user = %q", q.User)
	}
	if !q.Exact || q.Keyword != "quarterly report" {
		t.Fatalf("query = %+v", q)
	}

	if _, err = Parse("-t=blog foo"); err == nil {
		t.Fatal("invalid chat type accepted")
	}
}

func TestParse_SearchCommand(t *testing.T) {
	q, err := Parse("/search foo bar")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if q.Keyword != "foo bar" {
		t.Fatalf("keyword = %q", q.Keyword)
	}
	// with the bot name suffix, as Telegram sends in groups
	q, err = Parse("/search@index_bot foo")
	if err != nil || q.Keyword != "foo" {
		t.Fatalf("query = %+v err=%v", q, err)
	}
}

func TestParse_ChatTypeShortcut(t *testing.T) {
	q, err := Parse("/supergroup release notes")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if q.ChatType != entity.ChatTypeSupergroup || q.Keyword != "release notes" {
		t.Fatalf("query = %+v", q)
	}

	// optional positional sender: @username or a numeric id
	q, _ = Parse("/group @ann release")
	if q.User != "ann" || q.Keyword != "release" {
		t.Fatalf("query = %+v", q)
	}
	q, _ = Parse("/group 12345 release")
	if q.User != "12345" || q.Keyword != "release" {
		t.Fatalf("query = %+v", q)
	}
	// a plain word is keyword, not sender
	q, _ = Parse("/group release notes")
	if q.User != "" || q.Keyword != "release notes" {
		t.Fatalf("query = %+v", q)
	}
}

func TestParse_Errors(t *testing.T) {
	if _, err := Parse("   "); !errors.Is(err, ErrEmptyKeyword) {
		t.Fatalf("empty = %v", err)
	}
	if _, err := Parse("-t=group"); !errors.Is(err, ErrEmptyKeyword) {
		t.Fatalf("flags only = %v", err)
	}
	if _, err := Parse("/frobnicate foo"); err == nil {
		t.Fatal("unknown command accepted")
	}
}

func TestValidatePage(t *testing.T) {
	if err := ValidatePage(0); !errors.Is(err, ErrPageRange) {
		t.Fatalf("page 0 = %v", err)
	}
	if err := ValidatePage(MaxPage + 1); !errors.Is(err, ErrPageRange) {
		t.Fatalf("page over limit = %v", err)
	}
	if err := ValidatePage(1); err != nil {
		t.Fatalf("page 1 = %v", err)
	}
	if err := ValidatePage(MaxPage); err != nil {
		t.Fatalf("page at limit = %v", err)
	}
}

func TestParseStats(t *testing.T) {
	q, err := ParseStats(nil)
	if err != nil || q.Window != defaultStatsWindow || q.IncludeMentions {
		t.Fatalf("defaults = %+v err=%v", q, err)
	}
	q, err = ParseStats([]string{"24h", "at"})
	if err != nil || q.Window != 24*time.Hour || !q.IncludeMentions {
		t.Fatalf("query = %+v err=%v", q, err)
	}
	if _, err = ParseStats([]string{"yesterday"}); err == nil {
		t.Fatal("bad window accepted")
	}
	if _, err = ParseStats([]string{"0d"}); err == nil {
		t.Fatal("zero window accepted")
	}
}
