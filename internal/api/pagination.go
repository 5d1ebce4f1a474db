package api

import (
	"net/http"
	"strconv"
)

const (
	defaultPerPage = 25
	maxPerPage     = 100
)

// PaginationParams is a parsed page/per_page pair
type PaginationParams struct {
	Page    int
	PerPage int
}

// ParsePagination reads page and per_page from the query string. Missing or
// non-positive values fall back to page 1 and 25 per page; per_page is capped at 100.
func ParsePagination(r *http.Request) PaginationParams {
	q := r.URL.Query()
	p := PaginationParams{
		Page:    positiveInt(q.Get("page"), 1),
		PerPage: positiveInt(q.Get("per_page"), defaultPerPage),
	}
	if p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
	return p
}

func positiveInt(v string, fallback int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// Offset returns the row offset of the page
func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Meta describes the page within a result set of total rows
func (p PaginationParams) Meta(total int64) PaginationMeta {
	pages := 0
	if p.PerPage > 0 {
		pages = int((total + int64(p.PerPage) - 1) / int64(p.PerPage))
	}
	return PaginationMeta{
		Page:       p.Page,
		PerPage:    p.PerPage,
		Total:      total,
		TotalPages: pages,
	}
}
