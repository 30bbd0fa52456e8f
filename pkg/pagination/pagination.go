package pagination

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultSize is the page size when none is provided.
	DefaultSize = 10
	// MaxSize caps how many rows one page may request.
	MaxSize = 100
)

// Params is a zero-based page request.
type Params struct {
	Page int
	Size int
}

// Normalize clamps page to >= 0 and size into [1, MaxSize].
func (p Params) Normalize() Params {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultSize
	}
	if p.Size > MaxSize {
		p.Size = MaxSize
	}
	return p
}

// Offset returns the row offset for the normalized params.
func (p Params) Offset() int {
	n := p.Normalize()
	return n.Page * n.Size
}

// FromQuery reads page and size query parameters. Unparseable values fall back to defaults.
func FromQuery(values url.Values) Params {
	return Params{
		Page: atoiOr(values.Get("page"), 0),
		Size: atoiOr(values.Get("size"), DefaultSize),
	}.Normalize()
}

// Page is a slice of results plus totals.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	Size       int   `json:"size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// NewPage assembles a page response from normalized params.
func NewPage[T any](items []T, params Params, total int64) Page[T] {
	params = params.Normalize()
	if items == nil {
		items = []T{}
	}
	pages := int((total + int64(params.Size) - 1) / int64(params.Size))
	return Page[T]{
		Items:      items,
		Page:       params.Page,
		Size:       params.Size,
		Total:      total,
		TotalPages: pages,
	}
}

func atoiOr(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
