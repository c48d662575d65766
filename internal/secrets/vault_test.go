package secrets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bytebuddy/config"
)

// fakeVault serves one KV v2 secret
type fakeVault struct {
	mu    sync.Mutex
	data  map[string]interface{}
	reads int
}

func (f *fakeVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/secret/data/bytebuddy/server" {
		http.NotFound(w, r)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		f.reads++
		if f.data == nil {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"data": f.data, "metadata": map[string]interface{}{}},
		})
	case http.MethodPut, http.MethodPost:
		var body struct {
			Data map[string]interface{} `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.data = body.Data
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]interface{}{"version": 1}})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T, fv *fakeVault) *Client {
	t.Helper()
	srv := httptest.NewServer(fv)
	t.Cleanup(srv.Close)

	c, err := NewClient(config.VaultConfig{
		Enabled:    true,
		Address:    srv.URL,
		Token:      "root",
		MountPath:  "secret",
		SecretPath: "bytebuddy/server",
	})
	require.NoError(t, err)
	return c
}

func TestApplyOverlaysSecrets(t *testing.T) {
	fv := &fakeVault{data: map[string]interface{}{
		"jwt_secret":        "from-vault",
		"database_password": "pg-pass",
	}}
	c := newTestClient(t, fv)

	cfg := config.Default()
	cfg.Auth.JWTSecret = "from-env"
	cfg.Mongo.URI = "mongodb://keep"
	require.NoError(t, c.Apply(context.Background(), cfg))

	assert.Equal(t, "from-vault", cfg.Auth.JWTSecret)
	assert.Equal(t, "pg-pass", cfg.Database.Password)
	assert.Equal(t, "mongodb://keep", cfg.Mongo.URI)

	_, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fv.reads)
}

func TestLoadMissingSecret(t *testing.T) {
	c := newTestClient(t, &fakeVault{})
	_, err := c.Load(context.Background())
	assert.Error(t, err)
}

func TestStoreThenLoad(t *testing.T) {
	fv := &fakeVault{}
	c := newTestClient(t, fv)
	ctx := context.Background()

	require.NoError(t, c.Store(ctx, ServerSecrets{JWTSecret: "rotated"}))
	assert.Equal(t, "rotated", fv.data["jwt_secret"])

	s, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rotated", s.JWTSecret)
}

func TestDisabledClient(t *testing.T) {
	c, err := NewClient(config.VaultConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, c.IsEnabled())

	cfg := config.Default()
	cfg.Auth.JWTSecret = "env"
	require.NoError(t, c.Apply(context.Background(), cfg))
	assert.Equal(t, "env", cfg.Auth.JWTSecret)
	assert.NoError(t, c.Health(context.Background()))

	_, err = c.Load(context.Background())
	assert.Error(t, err)
}
