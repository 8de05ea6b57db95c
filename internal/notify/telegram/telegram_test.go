package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gameresult-crawler/internal/notify"
)

func TestConfigured(t *testing.T) {
	t.Parallel()

	require.False(t, New(Config{}).Configured())
	require.False(t, New(Config{BotToken: "t"}).Configured())
	require.True(t, New(Config{BotToken: "t", ChatID: "42"}).Configured())
}

func TestSendPostsMarkdown(t *testing.T) {
	t.Parallel()

	var got sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/botsecret-token/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	ch := New(Config{BotToken: "secret-token", ChatID: "42", APIBaseURL: srv.URL})
	err := ch.Send(context.Background(), notify.Message{Text: "🎮 **Tài Xỉu**"})
	require.NoError(t, err)
	require.Equal(t, "42", got.ChatID)
	require.Equal(t, "Markdown", got.ParseMode)
	require.Equal(t, "🎮 **Tài Xỉu**", got.Text)
}

func TestSendReportsAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok": false, "description": "chat not found"}`))
	}))
	defer srv.Close()

	ch := New(Config{BotToken: "secret-token", ChatID: "42", APIBaseURL: srv.URL})
	err := ch.Send(context.Background(), notify.Message{Text: "x"})
	require.ErrorContains(t, err, "chat not found")
	require.NotContains(t, err.Error(), "secret-token")
}

func TestSendRedactsTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	ch := New(Config{BotToken: "secret-token", ChatID: "42", APIBaseURL: srv.URL})
	err := ch.Send(context.Background(), notify.Message{Text: "x"})
	require.Error(t, err)
	require.NotContains(t, err.Error(), "secret-token")
}
