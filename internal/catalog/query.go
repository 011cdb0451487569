package catalog

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

const (
	defaultLimit = 10
	maxLimit     = 100
	// maxPage keeps (page-1)*limit inside int for any accepted limit.
	maxPage      = math.MaxInt / maxLimit
)

// ListQuery selects one page of products. CategoryID 0 means every category.
type ListQuery struct {
	Page        int
	Limit       int
	CategoryID  int64
	SortByPrice bool
	Ascending   bool
}

func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// ParseListQuery reads page, limit, categoryId, sortBy and order. Missing
// values take defaults; a limit above the maximum is capped.
func ParseListQuery(v url.Values) (ListQuery, error) {
	q := ListQuery{Page: 1, Limit: defaultLimit}

	if raw := v.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPage {
			return ListQuery{}, fmt.Errorf("invalid page %q", raw)
		}
		q.Page = n
	}

	if raw := v.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return ListQuery{}, fmt.Errorf("invalid limit %q", raw)
		}
		q.Limit = min(n, maxLimit)
	}

	if raw := v.Get("categoryId"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			return ListQuery{}, fmt.Errorf("invalid categoryId %q", raw)
		}
		q.CategoryID = n
	}

	switch sortBy := v.Get("sortBy"); sortBy {
	case "":
	case "price":
		q.SortByPrice = true
	default:
		return ListQuery{}, fmt.Errorf("unsupported sortBy %q", sortBy)
	}

	switch order := strings.ToLower(v.Get("order")); order {
	case "", "desc":
	case "asc":
		q.Ascending = true
	default:
		return ListQuery{}, fmt.Errorf("invalid order %q", order)
	}

	return q, nil
}
