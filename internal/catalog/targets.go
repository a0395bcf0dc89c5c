package catalog

import (
	"context"
	"fmt"
	"strings"
)

// TargetSource yields sync targets lazily. ok is false once exhausted.
type TargetSource interface {
	Next(ctx context.Context) (t Target, ok bool, err error)
}

// PageLister is the listing surface the crawl source needs.
type PageLister interface {
	PageURL(offset, pageSize int) string
	ListPageURL(ctx context.Context, pageURL string) (Page, error)
}

// Selection chooses between explicit identifiers and a crawl. Names wins when
// non-empty.
type Selection struct {
	Names    []string
	Offset   int
	PageSize int
	// Limit caps the crawl; zero or negative means unlimited.
	Limit int
}

// NewTargetSource builds the source for a selection.
func NewTargetSource(c *Client, sel Selection) TargetSource {
	if ids := NormalizeIdentifiers(sel.Names); len(ids) > 0 {
		return NewExplicitSource(ids, c.EntityURL)
	}
	return NewCrawlSource(c, sel.Offset, sel.PageSize, sel.Limit)
}

// NormalizeIdentifiers trims, lowercases and de-duplicates identifiers while
// keeping first-seen order. Blank entries are dropped.
func NormalizeIdentifiers(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		id := strings.ToLower(strings.TrimSpace(name))
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type explicitSource struct {
	targets []Target
	idx     int
}

// NewExplicitSource resolves identifiers to document URLs without any
// listing call.
func NewExplicitSource(identifiers []string, urlFor func(string) string) TargetSource {
	targets := make([]Target, 0, len(identifiers))
	for _, id := range identifiers {
		targets = append(targets, Target{Identifier: id, URL: urlFor(id)})
	}
	return &explicitSource{targets: targets}
}

func (s *explicitSource) Next(ctx context.Context) (Target, bool, error) {
	if err := ctx.Err(); err != nil {
		return Target{}, false, err
	}
	if s.idx >= len(s.targets) {
		return Target{}, false, nil
	}
	t := s.targets[s.idx]
	s.idx++
	return t, true, nil
}

type crawlSource struct {
	lister  PageLister
	next    string
	limit   int
	emitted int
	buf     []Target
	done    bool
	visited map[string]bool
}

// NewCrawlSource follows listing pages from offset until the catalog has no
// next page or limit targets were emitted.
func NewCrawlSource(lister PageLister, offset, pageSize, limit int) TargetSource {
	return &crawlSource{
		lister:  lister,
		next:    lister.PageURL(offset, ClampPageSize(pageSize)),
		limit:   limit,
		visited: make(map[string]bool),
	}
}

func (s *crawlSource) Next(ctx context.Context) (Target, bool, error) {
	for {
		if s.limit > 0 && s.emitted >= s.limit {
			return Target{}, false, nil
		}
		if len(s.buf) > 0 {
			t := s.buf[0]
			s.buf = s.buf[1:]
			s.emitted++
			return t, true, nil
		}
		if s.done || s.next == "" {
			return Target{}, false, nil
		}
		s.visited[s.next] = true
		page, err := s.lister.ListPageURL(ctx, s.next)
		if err != nil {
			s.done = true
			return Target{}, false, fmt.Errorf("list targets: %w", err)
		}
		s.buf = page.Entries
		// A cursor that points back at a page already listed ends the crawl.
		if s.visited[page.Next] {
			page.Next = ""
		}
		s.next = page.Next
		if len(page.Entries) == 0 && page.Next == "" {
			s.done = true
		}
	}
}
