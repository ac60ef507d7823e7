// services/identity_client_test.go
package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"player-identity-system/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIdentityClient(t *testing.T, handler http.HandlerFunc) (*IdentityClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("IDENTITY_API_URL", srv.URL)
	t.Setenv("IDENTITY_API_KEY", "test-api-key")
	return NewIdentityClient(utils.NewTTLCache[*Identity](fakeClock(), 16)), srv
}

func TestResolveValidCredential(t *testing.T) {
	var calls atomic.Int32
	client, _ := newIdentityClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/identity/validate", r.URL.Path)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"user_id":"ext-1","wallet_address":"0xABC","email":"a@b.c"}`))
	})

	identity, err := client.Resolve(context.Background(), "good-token")
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, "ext-1", identity.UserID)
	assert.Equal(t, "0xABC", identity.WalletAddress)

	// Second resolve is served from the cache.
	_, err = client.Resolve(context.Background(), "good-token")
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestResolveRejectedCredential(t *testing.T) {
	var calls atomic.Int32
	client, _ := newIdentityClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	identity, err := client.Resolve(context.Background(), "bad-token")
	require.NoError(t, err)
	assert.Nil(t, identity)
	// Rejections are authoritative: no retries.
	assert.EqualValues(t, 1, calls.Load())
}

func TestResolveRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := newIdentityClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"user_id":"ext-1","wallet_address":"0xABC"}`))
	})

	identity, err := client.Resolve(context.Background(), "flaky-token")
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.EqualValues(t, 2, calls.Load())
}

func TestResolveExhaustedRetries(t *testing.T) {
	t.Setenv("IDENTITY_RETRIES", "1")
	client, _ := newIdentityClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Resolve(context.Background(), "doomed-token")
	require.Error(t, err)
}

func TestResolveEmptyToken(t *testing.T) {
	client, _ := newIdentityClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not be called")
	})

	identity, err := client.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, identity)
}
