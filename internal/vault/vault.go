// Package vault reads connection secrets from a HashiCorp Vault KV v2 engine.
package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"
	"github.com/mitchellh/mapstructure"

	"github.com/nucleus/etl-flows/internal/logger"
)

// SecretReader returns the key/value pairs stored at mount/path.
type SecretReader interface {
	ReadSecret(ctx context.Context, mount, path string) (map[string]string, error)
}

// Auth methods accepted by NewClient.
const (
	AuthToken = "token"
	AuthCert  = "cert"
)

// Config selects the vault address, TLS material and auth method.
type Config struct {
	Address    string
	Token      string
	AuthMethod string
	CACert     string
	ClientCert string
	ClientKey  string
	Namespace  string
}

// ErrNotFound is returned when the path holds no secret.
var ErrNotFound = errors.New("secret not found")

// Client is a SecretReader backed by a Vault server. One instance is built per
// run and passed to every component that needs credentials.
type Client struct {
	api *vaultapi.Client
	log logger.Logger
}

// NewClient connects and authenticates. Cert auth exchanges the client
// certificate for a token through auth/cert/login.
func NewClient(ctx context.Context, cfg Config, log logger.Logger) (*Client, error) {
	if cfg.Address == "" {
		return nil, errors.New("vault address is required")
	}
	method := strings.ToLower(cfg.AuthMethod)
	if method == "" {
		method = AuthToken
	}

	apiCfg := vaultapi.DefaultConfig()
	apiCfg.Address = cfg.Address
	if cfg.CACert != "" || cfg.ClientCert != "" {
		if err := apiCfg.ConfigureTLS(&vaultapi.TLSConfig{
			CACert:     cfg.CACert,
			ClientCert: cfg.ClientCert,
			ClientKey:  cfg.ClientKey,
		}); err != nil {
			return nil, fmt.Errorf("configure vault tls: %w", err)
		}
	}

	api, err := vaultapi.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Namespace != "" {
		api.SetNamespace(cfg.Namespace)
	}

	switch method {
	case AuthToken:
		if cfg.Token == "" {
			return nil, errors.New("vault token is required for token auth")
		}
		api.SetToken(cfg.Token)
	case AuthCert:
		if cfg.ClientCert == "" || cfg.ClientKey == "" {
			return nil, errors.New("client certificate and key are required for cert auth")
		}
		secret, err := api.Logical().WriteWithContext(ctx, "auth/cert/login", nil)
		if err != nil {
			return nil, fmt.Errorf("vault cert login: %w", err)
		}
		if secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
			return nil, errors.New("vault cert login returned no token")
		}
		api.SetToken(secret.Auth.ClientToken)
	default:
		return nil, fmt.Errorf("unsupported vault auth method %q", cfg.AuthMethod)
	}

	if log == nil {
		log = logger.NewNop()
	}
	log.Info("vault client ready", logger.String("addr", cfg.Address), logger.String("auth", method))
	return &Client{api: api, log: log}, nil
}

// ReadSecret reads the latest version of a KV v2 secret.
func (c *Client) ReadSecret(ctx context.Context, mount, path string) (map[string]string, error) {
	secret, err := c.api.KVv2(mount).Get(ctx, strings.TrimPrefix(path, "/"))
	if err != nil {
		if errors.Is(err, vaultapi.ErrSecretNotFound) {
			return nil, fmt.Errorf("%s/%s: %w", mount, path, ErrNotFound)
		}
		return nil, fmt.Errorf("read secret %s/%s: %w", mount, path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%s/%s: %w", mount, path, ErrNotFound)
	}
	return stringify(secret.Data), nil
}

func stringify(data map[string]any) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		if v == nil {
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

// Static is an in-memory SecretReader keyed by "mount/path".
type Static map[string]map[string]string

func (s Static) ReadSecret(_ context.Context, mount, path string) (map[string]string, error) {
	v, ok := s[mount+"/"+strings.TrimPrefix(path, "/")]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", mount, path, ErrNotFound)
	}
	out := make(map[string]string, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out, nil
}

// Decode maps a secret onto a struct using `secret` tags. Numeric and bool
// fields are parsed from their string form.
func Decode(secret map[string]string, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "secret",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(secret); err != nil {
		return fmt.Errorf("decode secret: %w", err)
	}
	return nil
}

// Read fetches and decodes a secret in one step.
func Read(ctx context.Context, r SecretReader, mount, path string, out any) error {
	secret, err := r.ReadSecret(ctx, mount, path)
	if err != nil {
		return err
	}
	return Decode(secret, out)
}
