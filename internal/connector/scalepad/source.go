// Package scalepad exports the hardware asset spreadsheet from the asset
// management portal.
package scalepad

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strings"

	"github.com/nucleus/etl-flows/internal/connector/http"
	"github.com/nucleus/etl-flows/internal/core"
	"github.com/nucleus/etl-flows/internal/logger"
)

// Secrets hold the portal address and an established web session. Signing
// in (password plus one-time code) happens outside this package.
type Secrets struct {
	BaseURI    string `secret:"base_uri"`
	CookieName string `secret:"session_cookie_name"`
	Cookie     string `secret:"session_cookie"`
}

const spreadsheetPath = "/api/AssetManagement/Asset/Console/Spreadsheet"

// SpreadsheetRequest is the export body the portal console posts.
type SpreadsheetRequest struct {
	Query struct {
		Parameters map[string]any `json:"Parameters"`
		Pagination struct {
			PageNumber int    `json:"PageNumber"`
			Size       int    `json:"Size"`
			PageID     string `json:"PageId"`
		} `json:"Pagination"`
		Sort []any `json:"Sort"`
	} `json:"Query"`
	SelectedColumns []string `json:"SelectedColumns"`
	AllColumns      bool     `json:"AllColumns"`
	Scope           struct {
		Type string `json:"Type"`
	} `json:"Scope"`
	AssetType       string `json:"AssetType"`
	SpreadsheetType string `json:"SpreadsheetType"`
}

// HardwareExport asks for every column of every hardware asset in the account.
func HardwareExport() SpreadsheetRequest {
	var r SpreadsheetRequest
	r.Query.Parameters = map[string]any{}
	r.Query.Pagination.Size = 50
	r.Query.Sort = []any{}
	r.SelectedColumns = []string{}
	r.AllColumns = true
	r.Scope.Type = "Account"
	r.AssetType = "Hardware"
	r.SpreadsheetType = "Csv"
	return r
}

// Source downloads spreadsheet exports.
type Source struct {
	client *http.Client
	base   string
}

// NewSource builds a client replaying the session cookie.
func NewSource(s Secrets, transport nethttp.RoundTripper, log logger.Logger) (*Source, error) {
	if s.BaseURI == "" || s.Cookie == "" {
		return nil, errors.New("scalepad: base_uri and session_cookie are required")
	}
	name := s.CookieName
	if name == "" {
		name = "session"
	}
	base := strings.TrimSuffix(s.BaseURI, "/")
	return &Source{
		base: base,
		client: http.NewClient(&http.ClientConfig{
			BaseURL:   base,
			Auth:      http.SessionCookie{Name: name, Value: s.Cookie},
			Headers:   map[string]string{"Accept": "*/*", "Origin": base},
			Transport: transport,
			Logger:    log,
		}),
	}, nil
}

// HardwareAssets downloads the hardware spreadsheet as a table.
func (s *Source) HardwareAssets(ctx context.Context) (*core.Table, error) {
	resp, err := s.client.Post(ctx, spreadsheetPath, HardwareExport())
	if err != nil {
		return nil, &core.FetchError{URL: s.base + spreadsheetPath, Err: err}
	}
	return ParseCSV(resp.Body)
}

// ParseCSV reads a header row and string cells; empty cells become nil.
// A row with a different field count is a model failure.
func ParseCSV(data []byte) (*core.Table, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return core.NewTable(nil), nil
	}
	if err != nil {
		return nil, &core.ModelError{Entity: "hardware_asset", Index: -1, Err: fmt.Errorf("read header: %w", err)}
	}

	schema := make(core.Schema, len(header))
	for i, h := range header {
		schema[i] = core.Column{Name: strings.TrimSpace(h), Type: core.TypeString}
	}
	table := core.NewTable(schema)
	for i := 0; ; i++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &core.ModelError{Entity: "hardware_asset", Index: i, Err: err}
		}
		row := make(core.Row, len(schema))
		for j, c := range schema {
			row[c.Name] = core.NullIfBlank(rec[j])
		}
		table.Append(row)
	}
	return table, nil
}
