// Package pagination reads list windows from query strings and wraps list
// results in the envelope returned by every collection endpoint.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params is a list window. Offset always wins over page when both are sent.
type Params struct {
	Limit  int
	Offset int
}

// Page is the 1-based page number the window starts on.
func (p Params) Page() int {
	if p.Limit <= 0 {
		return 1
	}
	return p.Offset/p.Limit + 1
}

// FromContext reads limit, offset and page from the query string. Invalid or
// missing values fall back to the first page of DefaultLimit items.
func FromContext(c echo.Context) Params {
	p := Params{Limit: clamp(queryInt(c, "limit"), 1, MaxLimit, DefaultLimit)}

	if off := queryInt(c, "offset"); off > 0 {
		p.Offset = off
	} else if page := queryInt(c, "page"); page > 1 {
		p.Offset = (page - 1) * p.Limit
	}
	return p
}

func queryInt(c echo.Context, name string) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return 0
	}
	return n
}

func clamp(n, lo, hi, fallback int) int {
	switch {
	case n < lo:
		return fallback
	case n > hi:
		return hi
	}
	return n
}

// Response is the list envelope. NextOffset is omitted on the last page.
type Response struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
	Page       int         `json:"page"`
	HasMore    bool        `json:"has_more"`
	NextOffset *int        `json:"next_offset,omitempty"`
}

func NewResponse(data interface{}, total, limit, offset int) *Response {
	r := &Response{
		Data:   data,
		Total:  total,
		Limit:  limit,
		Offset: offset,
		Page:   Params{Limit: limit, Offset: offset}.Page(),
	}
	if next := offset + limit; next < total {
		r.HasMore = true
		r.NextOffset = &next
	}
	return r
}

// Window slices items the way a store would apply LIMIT and OFFSET. A limit
// of zero or less means no limit.
func Window[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	rest := items[offset:]
	if limit > 0 && limit < len(rest) {
		return rest[:limit]
	}
	return rest
}
