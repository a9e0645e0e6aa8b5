// Package jdbc holds the relational side of the flows: a Postgres sink
// that replaces staging tables and a pgx reader for the mart queries.
package jdbc

import (
	"fmt"
	"net/url"
)

// Secrets is the vault entry of the Postgres target.
type Secrets struct {
	User     string `secret:"POSTGRES_USER"`
	Password string `secret:"POSTGRES_PASSWORD"`
	Host     string `secret:"POSTGRES_URI"`
	Port     string `secret:"POSTGRES_PORT"`
}

// Config describes one database connection.
type Config struct {
	Secrets  Secrets
	Database string
	// SSLRootCert is the CA bundle used with sslmode=verify-full. When empty
	// the driver default lookup applies.
	SSLRootCert string
	// SSLMode defaults to verify-full.
	SSLMode string
}

// ConnString renders
// postgresql://user:pw@host:port/db?sslmode=verify-full&sslrootcert=...
func (c Config) ConnString() (string, error) {
	s := c.Secrets
	if s.Host == "" || s.User == "" {
		return "", fmt.Errorf("postgres secret: POSTGRES_URI and POSTGRES_USER are required")
	}
	if c.Database == "" {
		return "", fmt.Errorf("postgres database is required")
	}
	host := s.Host
	if s.Port != "" {
		host += ":" + s.Port
	}
	mode := c.SSLMode
	if mode == "" {
		mode = "verify-full"
	}
	q := url.Values{}
	q.Set("sslmode", mode)
	if c.SSLRootCert != "" {
		q.Set("sslrootcert", c.SSLRootCert)
	}
	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(s.User, s.Password),
		Host:     host,
		Path:     "/" + c.Database,
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}
