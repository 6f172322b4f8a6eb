package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"algoverse/internal/common"
)

func TestResolveForwardsTokenAndAnonKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"msg":"invalid JWT"}`))
			return
		}
		w.Write([]byte(`{"id":"4b1c","email":"ada@example.com","aud":"authenticated"}`))
	}))
	defer srv.Close()

	r := NewResolver(srv.URL+"/", "anon", time.Second)

	id, err := r.Resolve(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "4b1c", id.ID)
	assert.Equal(t, "ada@example.com", id.Email)

	_, err = r.Resolve(context.Background(), "bad")
	require.ErrorIs(t, err, common.ErrUnauthorized)
}

func TestResolveProviderDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewResolver(url, "anon", time.Second).Resolve(context.Background(), "t")
	require.ErrorIs(t, err, common.ErrUpstream)
}
