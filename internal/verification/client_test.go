package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_IsEnabled(t *testing.T) {
	assert.True(t, NewClient("https://oracle.example.com", "key").IsEnabled())
	assert.False(t, NewClient("", "key").IsEnabled())
}

func TestClient_Verify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/verify", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req verifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "time tracking", req.Topic)
		assert.Equal(t, []string{"time", "tracking"}, req.Keywords)

		fmt.Fprint(w, `{"verified":true,"signal_strength":0.82}`)
	}))
	defer server.Close()

	c := NewClient(server.URL, "test-key")
	result, err := c.Verify(context.Background(), "time tracking", []string{"time", "tracking"})

	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.Contains(t, string(result.Raw), "signal_strength")
}

func TestClient_VerifyErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(server.URL, "test-key")
	_, err := c.Verify(context.Background(), "topic", nil)
	assert.Error(t, err)

	_, err = NewClient("", "").Verify(context.Background(), "topic", nil)
	assert.Error(t, err)
}
