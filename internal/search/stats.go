package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tgindex/entity"
)

// StatsEngine is the stats slice of the search client.
type StatsEngine interface {
	UserStats(ctx context.Context, req entity.UserStatsRequest) (*entity.UserStatsResponse, error)
}

// StatsQuery is a parsed /mystats invocation.
type StatsQuery struct {
	Window          time.Duration
	IncludeMentions bool
}

const defaultStatsWindow = 7 * 24 * time.Hour

// ParseStats understands "/mystats [window] [at]": window is like 24h, 7d
// or 4w; the literal token "at" adds mention counts.
func ParseStats(args []string) (StatsQuery, error) {
	q := StatsQuery{Window: defaultStatsWindow}
	for _, a := range args {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if a == "at" {
			q.IncludeMentions = true
			continue
		}
		d, err := parseWindow(a)
		if err != nil {
			return q, err
		}
		q.Window = d
	}
	return q, nil
}

func parseWindow(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("bad stats window %q, use forms like 24h, 7d or 4w", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("bad stats window %q, use forms like 24h, 7d or 4w", s)
	}
	switch s[len(s)-1] {
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("bad stats window %q, use forms like 24h, 7d or 4w", s)
	}
}

// UserStats fetches one user's activity share in a group over the window.
func UserStats(ctx context.Context, engine StatsEngine, groupId, userId int64, q StatsQuery) (*entity.UserStatsResponse, error) {
	now := time.Now()
	return engine.UserStats(ctx, entity.UserStatsRequest{
		GroupId:         groupId,
		UserId:          userId,
		FromTimestamp:   now.Add(-q.Window).Unix(),
		ToTimestamp:     now.Unix(),
		IncludeMentions: q.IncludeMentions,
	})
}

// RenderStats formats a stats reply in MarkdownV2.
func RenderStats(name string, q StatsQuery, st *entity.UserStatsResponse) string {
	var b strings.Builder
	b.WriteString(Escape(fmt.Sprintf("Stats for %s over the last %s:\n", name, windowLabel(q.Window))))
	b.WriteString(Escape(fmt.Sprintf("Messages: %d of %d in this group (%.1f%%)\n",
		st.UserMessageCount, st.GroupMessageTotal, st.UserRatio*100)))
	if q.IncludeMentions {
		b.WriteString(Escape(fmt.Sprintf("Mentions: %d sent, %d received\n", st.MentionsOut, st.MentionsIn)))
	}
	return b.String()
}

func windowLabel(d time.Duration) string {
	switch {
	case d%(7*24*time.Hour) == 0:
		return fmt.Sprintf("%dw", d/(7*24*time.Hour))
	case d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	default:
		return fmt.Sprintf("%dh", d/time.Hour)
	}
}
