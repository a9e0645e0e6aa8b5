package minio

import (
	"fmt"
	"net/url"
	"strings"
)

// Secrets is the vault entry of the object storage target.
type Secrets struct {
	URL       string `secret:"url"`
	AccessKey string `secret:"accessKey"`
	SecretKey string `secret:"secretKey"`
}

// Config is the resolved connection configuration of an S3Client.
type Config struct {
	Endpoint  string
	Secure    bool
	Region    string
	AccessKey string
	SecretKey string
	// CACertFile is an optional PEM bundle trusted in addition to the system roots.
	CACertFile string
}

// ParseConfig resolves the endpoint host and TLS mode from the secret URL.
// A bare host:port is accepted and implies TLS.
func ParseConfig(s Secrets, caCertFile string) (*Config, error) {
	raw := strings.TrimSpace(s.URL)
	if raw == "" {
		return nil, wrapError(CodeEndpointUnreachable, false, fmt.Errorf("url is required"))
	}
	if s.AccessKey == "" || s.SecretKey == "" {
		return nil, wrapError(CodeAuthInvalid, false, fmt.Errorf("accessKey and secretKey are required"))
	}
	cfg := &Config{
		Endpoint:   raw,
		Secure:     true,
		AccessKey:  s.AccessKey,
		SecretKey:  s.SecretKey,
		CACertFile: caCertFile,
	}
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, wrapError(CodeEndpointUnreachable, false, fmt.Errorf("invalid url: %w", err))
		}
		if u.Host == "" {
			return nil, wrapError(CodeEndpointUnreachable, false, fmt.Errorf("url %q has no host", raw))
		}
		cfg.Endpoint = u.Host
		cfg.Secure = u.Scheme != "http"
	}
	return cfg, nil
}
