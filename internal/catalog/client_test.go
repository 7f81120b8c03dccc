package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func newCatalogServer(t *testing.T) *httptest.Server {
	r := chi.NewRouter()
	r.Get("/records/{id}/cost", func(w http.ResponseWriter, r *http.Request) {
		switch chi.URLParam(r, "id") {
		case "rec-1":
			json.NewEncoder(w).Encode(map[string]any{"tokenCost": 5})
		case "broken":
			w.WriteHeader(http.StatusBadGateway)
		case "no-cost":
			json.NewEncoder(w).Encode(map[string]any{})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	r.Get("/records/{id}/protected", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") != "rec-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"fields": map[string]any{"phone": "+15550100", "email": "owner@example.com"},
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClient_TokenCost(t *testing.T) {
	srv := newCatalogServer(t)
	client := NewHTTPClient(srv.URL, time.Second)

	t.Run("known record", func(t *testing.T) {
		cost, err := client.TokenCost(context.Background(), "rec-1")
		assert.NoError(t, err)
		assert.Equal(t, int64(5), cost)
	})

	t.Run("unknown record", func(t *testing.T) {
		_, err := client.TokenCost(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("upstream failure", func(t *testing.T) {
		_, err := client.TokenCost(context.Background(), "broken")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected status 502")
	})

	t.Run("missing cost", func(t *testing.T) {
		_, err := client.TokenCost(context.Background(), "no-cost")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no token cost")
	})
}

func TestHTTPClient_ProtectedFields(t *testing.T) {
	srv := newCatalogServer(t)
	client := NewHTTPClient(srv.URL, time.Second)

	fields, err := client.ProtectedFields(context.Background(), "rec-1")
	assert.NoError(t, err)
	assert.Equal(t, "+15550100", fields["phone"])

	_, err = client.ProtectedFields(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}
