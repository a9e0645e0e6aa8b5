package http

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/etl-flows/internal/core"
)

// pagedFixture serves canned payloads keyed by page URL.
type pagedFixture struct {
	pages map[string]core.Record
	fail  map[string]error
	calls []string
}

func (f *pagedFixture) FetchPage(_ context.Context, path string, _ url.Values) (core.Record, error) {
	f.calls = append(f.calls, path)
	if err := f.fail[path]; err != nil {
		return nil, err
	}
	p, ok := f.pages[path]
	if !ok {
		return nil, fmt.Errorf("no page %s", path)
	}
	return p, nil
}

func page(key string, next any, items ...any) core.Record {
	return core.Record{key: items, "pageDetails": map[string]any{"nextPageUrl": next}}
}

var siteModel = core.Model{
	Entity: "site",
	Schema: core.Schema{{Name: "uid"}, {Name: "name"}, {Name: "ts", Type: core.TypeTimestamp}},
	Map: func(rec core.Record) (core.Row, error) {
		uid, ok := rec["uid"].(string)
		if !ok {
			return nil, core.Fieldf("uid", "missing")
		}
		return core.Row{"uid": uid, "name": core.String(rec["name"]), "ts": core.EpochMillis(rec["ts"])}, nil
	},
}

func TestAccumulateTwoPagesInArrivalOrder(t *testing.T) {
	f := &pagedFixture{pages: map[string]core.Record{
		"/sites":        page("sites", "/sites?page=2", map[string]any{"uid": "a", "name": "A"}, map[string]any{"uid": "b"}),
		"/sites?page=2": page("sites", nil, map[string]any{"uid": "c", "name": "C"}),
	}}

	tbl, err := Accumulate(context.Background(), f, PageRequest{Path: "/sites", ItemsKey: "sites", Model: siteModel})
	require.NoError(t, err)
	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, []any{"a", "b", "c"}, tbl.Values("uid"))
	_, hasName := tbl.Rows[1]["name"]
	assert.True(t, hasName)
	assert.Nil(t, tbl.Rows[1]["name"])
	assert.Equal(t, []string{"/sites", "/sites?page=2"}, f.calls)
}

func TestAccumulateIsRepeatable(t *testing.T) {
	f := &pagedFixture{pages: map[string]core.Record{
		"/sites":   page("sites", "/sites/2", map[string]any{"uid": "a"}),
		"/sites/2": page("sites", "", map[string]any{"uid": "b"}),
	}}
	req := PageRequest{Path: "/sites", ItemsKey: "sites", Model: siteModel}

	first, err := Accumulate(context.Background(), f, req)
	require.NoError(t, err)
	second, err := Accumulate(context.Background(), f, req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAccumulateLookbackTrimsBoundaryPage(t *testing.T) {
	now := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	ms := func(d int) float64 { return float64(now.AddDate(0, 0, -d).UnixMilli()) }
	f := &pagedFixture{pages: map[string]core.Record{
		"/alerts":   page("alerts", "/alerts/2", map[string]any{"uid": "p1a", "ts": ms(1)}, map[string]any{"uid": "p1b", "ts": ms(2)}),
		"/alerts/2": page("alerts", "/alerts/3", map[string]any{"uid": "p2a", "ts": ms(5)}, map[string]any{"uid": "p2b", "ts": ms(9)}),
		"/alerts/3": page("alerts", nil, map[string]any{"uid": "p3a", "ts": ms(3)}),
	}}

	tbl, err := Accumulate(context.Background(), f, PageRequest{
		Path: "/alerts", ItemsKey: "alerts", Model: siteModel,
		Stop: Lookback{Column: "ts", Cutoff: now.AddDate(0, 0, -7)},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"p1a", "p1b", "p2a"}, tbl.Values("uid"))
	assert.NotContains(t, f.calls, "/alerts/3")
}

func TestAccumulateFirstPagePastCutoffReturnsEmptyTable(t *testing.T) {
	f := &pagedFixture{pages: map[string]core.Record{
		"/alerts": page("alerts", "/alerts/2", map[string]any{"uid": "old", "ts": 1000.0}),
	}}

	tbl, err := Accumulate(context.Background(), f, PageRequest{
		Path: "/alerts", ItemsKey: "alerts", Model: siteModel,
		Stop: Lookback{Column: "ts", Cutoff: time.Now()},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, tbl.Len())
	assert.Equal(t, []string{"uid", "name", "ts"}, tbl.Schema.Names())
}

func TestAccumulateStopWhenExcludesTriggeringPage(t *testing.T) {
	f := &pagedFixture{pages: map[string]core.Record{
		"/p1": page("sites", "/p2", map[string]any{"uid": "a"}),
		"/p2": page("sites", "/p3", map[string]any{"uid": "stop"}),
	}}
	stop := StopWhen(func(rows []core.Row) bool {
		for _, r := range rows {
			if r["uid"] == "stop" {
				return true
			}
		}
		return false
	})

	tbl, err := Accumulate(context.Background(), f, PageRequest{Path: "/p1", ItemsKey: "sites", Model: siteModel, Stop: stop})
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, tbl.Values("uid"))
}

func TestAccumulateFetchFailure(t *testing.T) {
	f := &pagedFixture{
		pages: map[string]core.Record{"/p1": page("sites", "/p2", map[string]any{"uid": "a"})},
		fail:  map[string]error{"/p2": errors.New("connection reset")},
	}

	tbl, err := Accumulate(context.Background(), f, PageRequest{Path: "/p1", ItemsKey: "sites", Model: siteModel})
	assert.Nil(t, tbl)
	var fe *core.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "/p2", fe.URL)
	assert.False(t, core.IsFatal(err))
}

func TestAccumulateModelFailureIsFatal(t *testing.T) {
	f := &pagedFixture{pages: map[string]core.Record{
		"/p1": page("sites", nil, map[string]any{"uid": "a"}, map[string]any{"name": "no uid"}),
	}}

	tbl, err := Accumulate(context.Background(), f, PageRequest{Path: "/p1", ItemsKey: "sites", Model: siteModel})
	assert.Nil(t, tbl)
	var me *core.ModelError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, 1, me.Index)
	assert.Equal(t, "uid", me.Field)
	assert.True(t, core.IsFatal(err))
}

func TestAccumulateRejectsNonListItems(t *testing.T) {
	f := &pagedFixture{pages: map[string]core.Record{"/p1": {"sites": "oops"}}}
	_, err := Accumulate(context.Background(), f, PageRequest{Path: "/p1", ItemsKey: "sites", Model: siteModel})
	var fe *core.FetchError
	assert.ErrorAs(t, err, &fe)
}

func TestFetchOneAndModelList(t *testing.T) {
	f := &pagedFixture{pages: map[string]core.Record{"/account": {"uid": "acct", "name": "Acme"}}}
	tbl, err := FetchOne(context.Background(), f, "/account", siteModel)
	require.NoError(t, err)
	assert.Equal(t, []any{"acct"}, tbl.Values("uid"))

	tbl, err = ModelList([]any{map[string]any{"uid": "x"}, map[string]any{"uid": "y"}}, siteModel)
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
}
