package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBotID(t *testing.T) {
	id, err := ParseBotID("123456789:AAfoobar")
	require.NoError(t, err)
	require.Equal(t, int64(123456789), id)

	_, err = ParseBotID("nocolon")
	require.Error(t, err)

	_, err = ParseBotID(":secretonly")
	require.Error(t, err)

	_, err = ParseBotID("abc:secret")
	require.Error(t, err)
}

func TestClient_SendMessage(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer srv.Close()

	client := NewClient("42:secret", WithBaseURL(srv.URL))
	require.NoError(t, client.SendMessage(context.Background(), 1001, "hi"))

	require.Equal(t, "/bot42:secret/sendMessage", gotPath)
	require.Equal(t, float64(1001), gotBody["chat_id"])
	require.Equal(t, "hi", gotBody["text"])
}

func TestClient_APIErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Unauthorized"}`))
	}))
	defer srv.Close()

	client := NewClient("42:bad", WithBaseURL(srv.URL))
	_, err := client.GetMe(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "Unauthorized")
}

func TestClient_GetMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":42,"is_bot":true,"username":"support_bot"}}`))
	}))
	defer srv.Close()

	client := NewClient("42:secret", WithBaseURL(srv.URL))
	me, err := client.GetMe(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(42), me.ID)
	require.True(t, me.IsBot)
	require.Equal(t, "support_bot", me.Username)
}
