package http

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/nucleus/etl-flows/internal/core"
)

// =============================================================================
// PAGE ACCUMULATION
// =============================================================================

// Fetcher retrieves one page of a paged source as a JSON object.
type Fetcher interface {
	FetchPage(ctx context.Context, path string, query url.Values) (core.Record, error)
}

// CursorFunc extracts the next page URL from a payload; "" ends pagination.
type CursorFunc func(payload core.Record) string

// NextPageURL reads pageDetails.nextPageUrl.
func NextPageURL(payload core.Record) string {
	s, _ := core.Get(payload, "pageDetails", "nextPageUrl").(string)
	return s
}

// StopPolicy inspects each modeled page. It returns the rows to keep and
// whether accumulation ends after this page.
type StopPolicy interface {
	Filter(rows []core.Row) (keep []core.Row, stop bool)
}

// StopWhen halts on the first page for which pred is true. That page is
// examined but none of its rows are kept.
func StopWhen(pred func(rows []core.Row) bool) StopPolicy {
	return stopWhen(pred)
}

type stopWhen func(rows []core.Row) bool

func (p stopWhen) Filter(rows []core.Row) ([]core.Row, bool) {
	if p(rows) {
		return nil, true
	}
	return rows, false
}

// Lookback keeps rows whose Column is at or after Cutoff. The first page
// holding an older row is trimmed to its in-window rows and ends
// accumulation. Rows without a timestamp are kept.
type Lookback struct {
	Column string
	Cutoff time.Time
}

func (l Lookback) Filter(rows []core.Row) ([]core.Row, bool) {
	keep := make([]core.Row, 0, len(rows))
	stop := false
	for _, r := range rows {
		ts, ok := core.Time(r[l.Column])
		if ok && ts.Before(l.Cutoff) {
			stop = true
			continue
		}
		keep = append(keep, r)
	}
	return keep, stop
}

// PageRequest describes one paged extraction.
type PageRequest struct {
	// Path is the first page, relative to the client base URL or absolute.
	Path  string
	Query url.Values
	// ItemsKey names the payload list holding the page's records.
	ItemsKey string
	Model    core.Model
	Stop     StopPolicy
	// Cursor defaults to NextPageURL.
	Cursor CursorFunc
}

// Accumulate walks the pages serially, modeling every element in source
// order. A fetch failure returns *core.FetchError; a model failure returns
// *core.ModelError. Neither returns a partial table.
func Accumulate(ctx context.Context, f Fetcher, req PageRequest) (*core.Table, error) {
	cursor := req.Cursor
	if cursor == nil {
		cursor = NextPageURL
	}

	table := req.Model.Table()
	next, query := req.Path, req.Query
	offset := 0
	for next != "" {
		payload, err := f.FetchPage(ctx, next, query)
		if err != nil {
			return nil, &core.FetchError{URL: next, Err: err}
		}

		items, err := pageItems(payload, req.ItemsKey)
		if err != nil {
			return nil, &core.FetchError{URL: next, Err: err}
		}
		rows := make([]core.Row, 0, len(items))
		for i, item := range items {
			row, err := req.Model.Apply(offset+i, item)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
		offset += len(items)

		stop := false
		if req.Stop != nil {
			rows, stop = req.Stop.Filter(rows)
		}
		table.Append(rows...)
		if stop {
			break
		}

		next, query = cursor(payload), nil
	}
	return table, nil
}

// FetchOne models a single-object endpoint as a one-row table.
func FetchOne(ctx context.Context, f Fetcher, path string, model core.Model) (*core.Table, error) {
	payload, err := f.FetchPage(ctx, path, nil)
	if err != nil {
		return nil, &core.FetchError{URL: path, Err: err}
	}
	row, err := model.Apply(0, payload)
	if err != nil {
		return nil, err
	}
	table := model.Table()
	table.Append(row)
	return table, nil
}

// ModelList models an already-fetched list, used for endpoints that return
// a bare JSON array.
func ModelList(items []any, model core.Model) (*core.Table, error) {
	table := model.Table()
	for i, item := range items {
		row, err := model.Apply(i, item)
		if err != nil {
			return nil, err
		}
		table.Append(row)
	}
	return table, nil
}

func pageItems(payload core.Record, key string) ([]any, error) {
	v, ok := payload[key]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("payload field %q is %T, want list", key, v)
	}
	return items, nil
}
