// Package datto extracts account, site, alert, variable, activity and device
// data from the RMM platform's v2 REST API.
package datto

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/nucleus/etl-flows/internal/connector/http"
	"github.com/nucleus/etl-flows/internal/core"
	"github.com/nucleus/etl-flows/internal/logger"
)

// Secrets are the vault fields the source needs.
type Secrets struct {
	BaseURI   string `secret:"base_uri"`
	APIKey    string `secret:"api_key"`
	APISecret string `secret:"api_secret"`
}

// The platform's public OAuth client.
const (
	oauthClientID     = "public-client"
	oauthClientSecret = "public"
)

// Items keys of the paged list endpoints.
const (
	keyDevices    = "devices"
	keyAlerts     = "alerts"
	keySites      = "sites"
	keyActivities = "activities"
	keyVariables  = "variables"
)

// Source is an authenticated API client.
type Source struct {
	client *http.Client
	log    logger.Logger
}

// Options tune the underlying HTTP client.
type Options struct {
	Transport nethttp.RoundTripper
	RateLimit float64
	Logger    logger.Logger
}

// NewSource exchanges the API key pair for an access token (OAuth2 password
// grant) and returns a source that refreshes it as needed.
func NewSource(ctx context.Context, s Secrets, opts Options) (*Source, error) {
	if s.BaseURI == "" || s.APIKey == "" || s.APISecret == "" {
		return nil, errors.New("datto: base_uri, api_key and api_secret are required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	base := strings.TrimSuffix(s.BaseURI, "/")

	if opts.Transport != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &nethttp.Client{Transport: opts.Transport})
	}
	oc := &oauth2.Config{
		ClientID:     oauthClientID,
		ClientSecret: oauthClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  base + "/auth/oauth/token",
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}
	tok, err := oc.PasswordCredentialsToken(ctx, s.APIKey, s.APISecret)
	if err != nil {
		return nil, fmt.Errorf("datto: create access token: %w", err)
	}
	log.Info("access token created")

	client := http.NewClient(&http.ClientConfig{
		BaseURL:   base + "/api/v2",
		Auth:      http.TokenSource{Source: oc.TokenSource(ctx, tok)},
		Headers:   map[string]string{"Content-Type": "application/json"},
		RateLimit: opts.RateLimit,
		Transport: opts.Transport,
		Logger:    log,
	})
	return &Source{client: client, log: log}, nil
}

// Account returns the one-row account table.
func (s *Source) Account(ctx context.Context) (*core.Table, error) {
	return http.FetchOne(ctx, s.client, "/account", AccountModel())
}

// Sites returns every site of the account.
func (s *Source) Sites(ctx context.Context) (*core.Table, error) {
	return http.Accumulate(ctx, s.client, http.PageRequest{
		Path: "/account/sites", ItemsKey: keySites, Model: SiteModel(),
	})
}

// OpenAlerts returns all open alerts.
func (s *Source) OpenAlerts(ctx context.Context, account Parent) (*core.Table, error) {
	return http.Accumulate(ctx, s.client, http.PageRequest{
		Path: "/account/alerts/open", ItemsKey: keyAlerts, Model: AlertModel(account),
	})
}

// ResolvedAlerts returns resolved alerts raised at or after cutoff. The
// endpoint lists newest first, so paging stops at the first older alert.
func (s *Source) ResolvedAlerts(ctx context.Context, account Parent, cutoff time.Time) (*core.Table, error) {
	return http.Accumulate(ctx, s.client, http.PageRequest{
		Path: "/account/alerts/resolved", ItemsKey: keyAlerts, Model: AlertModel(account),
		Stop: http.Lookback{Column: "timestamp", Cutoff: cutoff.UTC()},
	})
}

// AccountVariables returns account-scoped variables attributed to account.
func (s *Source) AccountVariables(ctx context.Context, account Parent) (*core.Table, error) {
	return http.Accumulate(ctx, s.client, http.PageRequest{
		Path: "/account/variables", ItemsKey: keyVariables, Model: VariableModel(account),
	})
}

// SiteVariables returns the variables of every given site. A site whose
// listing fails is logged and skipped; a model failure aborts.
func (s *Source) SiteVariables(ctx context.Context, sites []Parent) (*core.Table, error) {
	out := VariableModel(Parent{}).Table()
	for _, site := range sites {
		t, err := http.Accumulate(ctx, s.client, http.PageRequest{
			Path:     "/site/" + url.PathEscape(site.UID) + "/variables",
			ItemsKey: keyVariables,
			Model:    VariableModel(site),
		})
		if err != nil {
			if core.IsFatal(err) {
				return nil, err
			}
			s.log.Warn("skipping site variables", logger.String("site_uid", site.UID), logger.Err(err))
			continue
		}
		out.Concat(t)
	}
	return out, nil
}

// ActivityQuery filters the activity-log listing.
type ActivityQuery struct {
	Size       int
	Order      string
	From       time.Time
	Until      time.Time
	Entities   []string
	Categories []string
	Actions    []string
	SiteIDs    []string
	UserIDs    []string
}

// Values encodes the query; zero fields are omitted.
func (q ActivityQuery) Values() url.Values {
	v := url.Values{}
	size := q.Size
	if size <= 0 {
		size = 250
	}
	v.Set("size", strconv.Itoa(size))
	order := q.Order
	if order == "" {
		order = "desc"
	}
	v.Set("order", order)
	if !q.From.IsZero() {
		v.Set("from", q.From.UTC().Format(time.RFC3339))
	}
	if !q.Until.IsZero() {
		v.Set("until", q.Until.UTC().Format(time.RFC3339))
	}
	for key, list := range map[string][]string{
		"entities": q.Entities, "categories": q.Categories, "actions": q.Actions,
		"siteIds": q.SiteIDs, "userIds": q.UserIDs,
	} {
		for _, item := range list {
			v.Add(key, item)
		}
	}
	return v
}

// ActivityLogs returns activity-log entries matching q.
func (s *Source) ActivityLogs(ctx context.Context, q ActivityQuery) (*core.Table, error) {
	return http.Accumulate(ctx, s.client, http.PageRequest{
		Path: "/activity-logs", Query: q.Values(), ItemsKey: keyActivities, Model: ActivityModel(),
	})
}

// Devices returns every device of the account.
func (s *Source) Devices(ctx context.Context, extractedAt time.Time) (*core.Table, error) {
	return http.Accumulate(ctx, s.client, http.PageRequest{
		Path: "/account/devices", ItemsKey: keyDevices, Model: DeviceModel(extractedAt),
	})
}
