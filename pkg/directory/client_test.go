package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGatewayServer(t *testing.T, identities []Identity, requests *int32) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)
		assert.Equal(t, "/v1/identities/search", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("q"))
		assert.NotEmpty(t, r.URL.Query().Get("limit"))

		json.NewEncoder(w).Encode(map[string]interface{}{"identities": identities})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientSearch(t *testing.T) {
	var requests int32
	srv := newGatewayServer(t, []Identity{
		{Identifier: "amy", DisplayName: "Amy Wong", Source: "ldap", Email: "amy@example.org"},
	}, &requests)

	client, err := NewClient(ClientConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	got, err := client.Search(context.Background(), "amy", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Amy Wong", got[0].DisplayName)
	assert.Equal(t, "ldap", got[0].Source)
}

func TestClientCachesResults(t *testing.T) {
	var requests int32
	srv := newGatewayServer(t, []Identity{{Identifier: "amy", Source: "ldap"}}, &requests)

	client, err := NewClient(ClientConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := client.Search(context.Background(), "amy", 5)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests), "repeated searches should be served from cache")

	// A different limit is a different cache entry.
	_, err = client.Search(context.Background(), "amy", 3)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestClientTruncatesOverlongResponses(t *testing.T) {
	var requests int32
	srv := newGatewayServer(t, []Identity{
		{Identifier: "a", Source: "ldap"},
		{Identifier: "b", Source: "ldap"},
		{Identifier: "c", Source: "ldap"},
	}, &requests)

	client, err := NewClient(ClientConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	got, err := client.Search(context.Background(), "x", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestClientSurfacesGatewayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Search(context.Background(), "amy", 5)
	assert.ErrorContains(t, err, "status 500")
}

func TestClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.Error(t, err)
}

func TestStaticSearch(t *testing.T) {
	static := &Static{Identities: []Identity{
		{Identifier: "amy", DisplayName: "Amy Wong", Source: "ldap", Email: "amy@example.org"},
		{Identifier: "amanda", DisplayName: "Amanda Li", Source: "ldap"},
		{Identifier: "bob", DisplayName: "Bob Tremblay", Source: "local"},
	}}

	got, err := static.Search(context.Background(), "AM", 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = static.Search(context.Background(), "am", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = static.Search(context.Background(), "tremblay", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0].Identifier)

	got, err = static.Search(context.Background(), "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
