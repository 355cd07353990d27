package shared

import (
	"math"
	"net/url"
	"strconv"
)

const (
	// DefaultPageSize applies when no limit is requested.
	DefaultPageSize = 20
	// MaxPageSize caps the limit parameter.
	MaxPageSize = 100
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, limit, total int) Pagination {
	page, limit = ClampPage(page, limit)
	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	return Pagination{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}

// ClampPage normalizes page (>=1) and limit (1..MaxPageSize).
func ClampPage(page, limit int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

// PageFromQuery reads page and limit query parameters, ignoring garbage.
func PageFromQuery(q url.Values) (int, int) {
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return ClampPage(page, limit)
}

// Offset returns the row offset for page and limit.
func Offset(page, limit int) int {
	page, limit = ClampPage(page, limit)
	return (page - 1) * limit
}
