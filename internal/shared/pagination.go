package shared

import (
	"net/url"
	"strconv"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Page is a limit/offset window parsed from query parameters.
type Page struct {
	Limit  int
	Offset int
}

// PageFromQuery reads `limit` and `offset`, clamping to sane bounds.
func PageFromQuery(q url.Values) Page {
	page := Page{Limit: defaultPageSize}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		page.Limit = v
	}
	if page.Limit > maxPageSize {
		page.Limit = maxPageSize
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		page.Offset = v
	}
	return page
}
