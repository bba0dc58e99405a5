// Package pagination reads page/per_page query parameters.
package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Params is a 1-based page request.
type Params struct {
	Page    int
	PerPage int
}

// Offset is the number of rows to skip.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// TotalPages is how many pages of size perPage hold total items.
func TotalPages(total, perPage int) int {
	if perPage < 1 || total < 1 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

// FromRequest reads page and per_page. Missing or malformed values fall back
// to the first page of DefaultPerPage; per_page is capped at MaxPerPage.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()
	p := Params{
		Page:    positive(q.Get("page"), 1),
		PerPage: positive(q.Get("per_page"), DefaultPerPage),
	}
	p.PerPage = min(p.PerPage, MaxPerPage)
	return p
}

func positive(raw string, fallback int) int {
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
