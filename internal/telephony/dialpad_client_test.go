package telephony

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDialpadClient_MissingToken(t *testing.T) {
	_, err := NewDialpadClient(DialpadClientConfig{})
	assert.Error(t, err)
}

func TestDialpadClient_Actions(t *testing.T) {
	type seenRequest struct {
		path        string
		contentType string
		auth        string
		body        []byte
	}
	var seen []seenRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen = append(seen, seenRequest{
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			auth:        r.Header.Get("Authorization"),
			body:        body,
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"123","state":"connected"}`))
	}))
	defer server.Close()

	client, err := NewDialpadClient(DialpadClientConfig{APIToken: "tok", BaseURL: server.URL + "/"})
	require.NoError(t, err)
	ctx := context.Background()

	assert.Equal(t, Result{Success: true}, client.Answer(ctx, "123"))
	assert.Equal(t, Result{Success: true}, client.PlayAudio(ctx, "123", []byte("mp3")))
	assert.Equal(t, Result{Success: true}, client.Transfer(ctx, "123", "+13057013979"))

	require.Len(t, seen, 3)
	assert.Equal(t, "/calls/123/answer", seen[0].path)
	assert.Equal(t, "Bearer tok", seen[0].auth)
	assert.Equal(t, "/calls/123/play", seen[1].path)
	assert.Equal(t, "audio/mp3", seen[1].contentType)
	assert.Equal(t, []byte("mp3"), seen[1].body)
	assert.Equal(t, "/calls/123/transfer", seen[2].path)

	var transfer map[string]string
	require.NoError(t, json.Unmarshal(seen[2].body, &transfer))
	assert.Equal(t, "+13057013979", transfer["target"])
}

func TestDialpadClient_TestCallsShortCircuit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	}))
	defer server.Close()

	client, _ := NewDialpadClient(DialpadClientConfig{APIToken: "tok", BaseURL: server.URL})
	ctx := context.Background()
	assert.True(t, client.Answer(ctx, "test-1").Success)
	assert.True(t, client.PlayAudio(ctx, "test-1", []byte("x")).Success)
	assert.True(t, client.Transfer(ctx, "test-1", "dept").Success)
}

func TestDialpadClient_FailuresNeverPanic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"call not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	client, _ := NewDialpadClient(DialpadClientConfig{APIToken: "tok", BaseURL: server.URL})
	ctx := context.Background()

	res := client.Answer(ctx, "999")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "404")

	assert.False(t, client.PlayAudio(ctx, "999", nil).Success)
	assert.False(t, client.Transfer(ctx, "999", " ").Success)
	assert.False(t, client.Answer(ctx, "").Success)

	unreachable, _ := NewDialpadClient(DialpadClientConfig{APIToken: "tok", BaseURL: "http://127.0.0.1:1"})
	assert.False(t, unreachable.Answer(ctx, "1").Success)
}
