package search

import (
	"context"
	"log/slog"
	"time"

	"tgindex/entity"
	"tgindex/internal/access"
	"tgindex/internal/privacy"
	"tgindex/internal/querylog"
	"tgindex/lib/sl"
)

// Engine is the slice of the search client the pipeline needs.
type Engine interface {
	Search(ctx context.Context, req entity.SearchRequest) (*entity.SearchResponse, error)
}

// Invocation carries who asked, from where, and what.
type Invocation struct {
	UserId    int64
	Username  string
	FirstName string
	ChatId    int64
	ChatType  string
	Query     Query
}

// Result is a filtered, paged response ready for rendering.
type Result struct {
	Response  *entity.SearchResponse
	Page      int
	ElapsedMs int64
}

type Pipeline struct {
	engine  Engine
	access  *access.Controller
	privacy *privacy.Manager
	qlog    *querylog.Store // nil when query logging is disabled
	log     *slog.Logger
}

func NewPipeline(engine Engine, ac *access.Controller, pv *privacy.Manager, qlog *querylog.Store, log *slog.Logger) *Pipeline {
	return &Pipeline{
		engine:  engine,
		access:  ac,
		privacy: pv,
		qlog:    qlog,
		log:     log.With(sl.Module("search")),
	}
}

// Run executes one search. Access has already been checked by the handler
// layer; this applies scope, privacy and pagination rules.
func (p *Pipeline) Run(ctx context.Context, inv Invocation) (*Result, error) {
	if err := ValidatePage(inv.Query.Page); err != nil {
		return nil, err
	}

	req := entity.SearchRequest{
		Keyword:    inv.Query.Keyword,
		Page:       inv.Query.Page,
		PageSize:   HitsPerPage,
		ExactMatch: inv.Query.Exact,
		ChatType:   inv.Query.ChatType,
		Username:   inv.Query.User,
	}

	// group invocations only ever see their own chat
	inGroup := inv.ChatType == entity.ChatTypeGroup || inv.ChatType == entity.ChatTypeSupergroup
	var allowedGroups []int64
	if inGroup {
		chatId := inv.ChatId
		req.ChatId = &chatId
	} else if !p.access.IsAdmin(inv.UserId) {
		allowedGroups = p.access.AllowedGroupsFor(inv.UserId)
	}

	// the owner searching in private gets the unfiltered view
	filterPrivacy := !(p.access.IsOwner(inv.UserId) && inv.ChatType == entity.ChatTypePrivate)
	var blocked []int64
	if filterPrivacy {
		blocked = p.privacy.Blocked()
		req.BlockedUsers = blocked
	}

	started := time.Now()
	resp, err := p.engine.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(started).Milliseconds()

	if filterPrivacy && len(blocked) > 0 {
		applyPostFilter(resp, func(d entity.Document) bool {
			return !contains(blocked, d.FromUser.Id)
		})
	}
	if !inGroup && allowedGroups != nil {
		applyPostFilter(resp, func(d entity.Document) bool {
			return contains(allowedGroups, d.Chat.Id)
		})
	}

	p.logQuery(ctx, inv, resp, elapsed)

	return &Result{Response: resp, Page: inv.Query.Page, ElapsedMs: elapsed}, nil
}

// applyPostFilter drops hits the predicate rejects and recomputes the
// totals. The requested page is kept even if it now lies beyond the new
// page count; navigation is rendered against the recomputed total.
func applyPostFilter(resp *entity.SearchResponse, keep func(entity.Document) bool) {
	kept := resp.Hits[:0]
	dropped := int64(0)
	for _, h := range resp.Hits {
		if keep(h) {
			kept = append(kept, h)
		} else {
			dropped++
		}
	}
	resp.Hits = kept
	resp.TotalHits -= dropped
	if resp.TotalHits < 0 {
		resp.TotalHits = 0
	}
	resp.HitsPerPage = HitsPerPage
	resp.TotalPages = int((resp.TotalHits + HitsPerPage - 1) / HitsPerPage)
}

func (p *Pipeline) logQuery(ctx context.Context, inv Invocation, resp *entity.SearchResponse, elapsed int64) {
	if p.qlog == nil {
		return
	}
	mode := "fuzzy"
	if inv.Query.Exact {
		mode = "exact"
	}
	err := p.qlog.Log(ctx, querylog.Record{
		UserId:           inv.UserId,
		Username:         inv.Username,
		FirstName:        inv.FirstName,
		ChatId:           inv.ChatId,
		ChatType:         inv.ChatType,
		Query:            inv.Query.Keyword,
		SearchType:       inv.Query.ChatType,
		SearchUser:       inv.Query.User,
		SearchMode:       mode,
		ResultsCount:     resp.TotalHits,
		PageNumber:       inv.Query.Page,
		ProcessingTimeMs: elapsed,
	})
	if err != nil {
		// a lost log line never fails a search
		p.log.With(sl.Err(err)).Warn("query log write failed")
	}
}

func contains(set []int64, id int64) bool {
	for _, v := range set {
		if v == id {
			return true
		}
	}
	return false
}
