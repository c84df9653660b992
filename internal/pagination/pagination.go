// Package pagination is the shared sort/paginate/search helper behind the
// order-history and inventory-report list views.
package pagination

import (
	"regexp"
	"strings"
)

const (
	SortAsc  = "asc"
	SortDesc = "desc"

	MaxLimit = 100
)

type Params struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

// Normalize clamps pagination input instead of rejecting it: page floors at
// 1, limit is clamped to [1, MaxLimit] with the caller's default when unset,
// and sortOrder defaults to descending.
func (p Params) Normalize(defaultLimit int) Params {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit == 0 {
		p.Limit = defaultLimit
	}
	if p.Limit < 1 {
		p.Limit = 1
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.SortOrder != SortAsc {
		p.SortOrder = SortDesc
	}
	return p
}

func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

type Meta struct {
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
	NextPage   *int `json:"nextPage"`
	PrevPage   *int `json:"prevPage"`
}

// BuildMeta computes the page envelope. TotalPages floors at 1 so an empty
// result still reports one (empty) page.
func BuildMeta(total, page, limit int) Meta {
	totalPages := (total + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}
	meta := Meta{
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
	if meta.HasNext {
		next := page + 1
		meta.NextPage = &next
	}
	if meta.HasPrev {
		prev := page - 1
		meta.PrevPage = &prev
	}
	return meta
}

// SingleItemMeta is the envelope for a lookup-by-id short circuit.
func SingleItemMeta() Meta {
	return Meta{Total: 1, Page: 1, Limit: 1, TotalPages: 1}
}

// EscapeSearch neutralizes regex metacharacters in free-text input so user
// input cannot alter matching semantics or blow up the matcher.
func EscapeSearch(s string) string {
	return regexp.QuoteMeta(strings.TrimSpace(s))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes SQL LIKE/ILIKE wildcards in free-text input. The result
// is meant to be wrapped in '%...%' by the caller.
func EscapeLike(s string) string {
	return likeEscaper.Replace(strings.TrimSpace(s))
}

// Apply slices one page out of an already-sorted result set.
func Apply[T any](items []T, page, limit int) []T {
	offset := (page - 1) * limit
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
