package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dbSecret struct {
	User     string `secret:"POSTGRES_USER"`
	Password string `secret:"POSTGRES_PASSWORD"`
	Host     string `secret:"POSTGRES_URI"`
	Port     int    `secret:"POSTGRES_PORT"`
}

func TestStaticReadAndDecode(t *testing.T) {
	r := Static{"etl/postgres": {
		"POSTGRES_USER": "etl", "POSTGRES_PASSWORD": "pw", "POSTGRES_URI": "db.local", "POSTGRES_PORT": "5432",
	}}

	var s dbSecret
	require.NoError(t, Read(context.Background(), r, "etl", "/postgres", &s))
	assert.Equal(t, dbSecret{User: "etl", Password: "pw", Host: "db.local", Port: 5432}, s)

	_, err := r.ReadSecret(context.Background(), "etl", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClientReadsKVv2(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s.token", r.Header.Get("X-Vault-Token"))
		if r.URL.Path != "/v1/etl/data/datto_rmm" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"data":     map[string]any{"base_uri": "https://rmm.example", "api_key": "k", "retries": 3},
				"metadata": map[string]any{"version": 2},
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), Config{Address: srv.URL, Token: "s.token"}, nil)
	require.NoError(t, err)

	secret, err := c.ReadSecret(context.Background(), "etl", "datto_rmm")
	require.NoError(t, err)
	assert.Equal(t, "https://rmm.example", secret["base_uri"])
	assert.Equal(t, "3", secret["retries"])
}

func TestNewClientValidatesAuth(t *testing.T) {
	_, err := NewClient(context.Background(), Config{}, nil)
	assert.Error(t, err)
	_, err = NewClient(context.Background(), Config{Address: "http://127.0.0.1:1"}, nil)
	assert.Error(t, err)
	_, err = NewClient(context.Background(), Config{Address: "http://127.0.0.1:1", AuthMethod: "cert"}, nil)
	assert.Error(t, err)
	_, err = NewClient(context.Background(), Config{Address: "http://127.0.0.1:1", AuthMethod: "ldap", Token: "x"}, nil)
	assert.Error(t, err)
}
