package lms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// fetchAllPages walks a paginated collection endpoint with page/per_page
// parameters. A page shorter than the page size is the sole end signal; the
// backend's total-count headers are never consulted.
func fetchAllPages[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		q := cloneQuery(query)
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(c.pageSize))

		body, err := c.Send(ctx, Request{Method: http.MethodGet, Path: path, Query: q})
		if err != nil {
			return nil, err
		}

		var items []T
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("lms: decode page %d of %s: %w", page, path, err)
		}

		all = append(all, items...)
		if len(items) < c.pageSize {
			return all, nil
		}
	}
}

func cloneQuery(query url.Values) url.Values {
	cloned := make(url.Values, len(query)+2)
	for key, values := range query {
		cloned[key] = append([]string(nil), values...)
	}
	return cloned
}
