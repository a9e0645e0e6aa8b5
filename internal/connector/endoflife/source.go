// Package endoflife reads product lifecycle cycles from the public
// end-of-life date service.
package endoflife

import (
	"context"
	"errors"
	nethttp "net/http"
	"strings"

	"github.com/nucleus/etl-flows/internal/connector/http"
	"github.com/nucleus/etl-flows/internal/core"
	"github.com/nucleus/etl-flows/internal/logger"
)

// Secrets are the vault fields the source needs.
type Secrets struct {
	BaseURI string `secret:"base_uri"`
}

// Product endpoints.
const (
	productsPath      = "/api/all.json"
	windowsPath       = "/api/windows.json"
	windowsServerPath = "/api/windows-server.json"
)

// Source is a client for the lifecycle service.
type Source struct {
	client *http.Client
}

// NewSource builds an unauthenticated client for the service.
func NewSource(s Secrets, transport nethttp.RoundTripper, log logger.Logger) (*Source, error) {
	if s.BaseURI == "" {
		return nil, errors.New("endoflife: base_uri is required")
	}
	return &Source{client: http.NewClient(&http.ClientConfig{
		BaseURL:   strings.TrimSuffix(s.BaseURI, "/"),
		Transport: transport,
		Logger:    log,
	})}, nil
}

// Products lists every product the service tracks.
func (s *Source) Products(ctx context.Context) (*core.Table, error) {
	items, err := s.client.FetchList(ctx, productsPath)
	if err != nil {
		return nil, &core.FetchError{URL: productsPath, Err: err}
	}
	wrapped, err := wrapProducts(items)
	if err != nil {
		return nil, err
	}
	return http.ModelList(wrapped, ProductModel())
}

// Windows returns the desktop Windows cycles.
func (s *Source) Windows(ctx context.Context) (*core.Table, error) {
	return s.cycles(ctx, windowsPath, false)
}

// WindowsServer returns the Windows Server cycles.
func (s *Source) WindowsServer(ctx context.Context) (*core.Table, error) {
	return s.cycles(ctx, windowsServerPath, true)
}

func (s *Source) cycles(ctx context.Context, path string, server bool) (*core.Table, error) {
	items, err := s.client.FetchList(ctx, path)
	if err != nil {
		return nil, &core.FetchError{URL: path, Err: err}
	}
	return http.ModelList(items, CycleModel(server))
}
