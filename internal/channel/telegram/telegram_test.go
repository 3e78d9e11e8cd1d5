package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBotAPI serves sendMessage and a single batch of updates.
func fakeBotAPI(t *testing.T, updates string) *httptest.Server {
	t.Helper()
	served := false
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			w.Write([]byte(`{"ok": true, "result": {}}`))
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			if served {
				// Park like a real long poll so the test can finish.
				time.Sleep(50 * time.Millisecond)
				w.Write([]byte(`{"ok": true, "result": []}`))
				return
			}
			served = true
			w.Write([]byte(`{"ok": true, "result": ` + updates + `}`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestSend(t *testing.T) {
	srv := fakeBotAPI(t, `[]`)
	defer srv.Close()

	a := New("test-token", nil, WithBaseURL(srv.URL))
	defer a.Close()

	status, err := a.Send(context.Background(), "12345", "hello from the twin")
	require.NoError(t, err)
	assert.Equal(t, "delivered to chat 12345", status)
}

func TestSendRejectsBadChatID(t *testing.T) {
	srv := fakeBotAPI(t, `[]`)
	defer srv.Close()

	a := New("test-token", nil, WithBaseURL(srv.URL))
	defer a.Close()

	_, err := a.Send(context.Background(), "not-a-number", "hello")
	assert.Error(t, err)
}

func TestPollEmitsActivityEvents(t *testing.T) {
	srv := fakeBotAPI(t, `[
		{"update_id": 7, "message": {"from": {"username": "bob"}, "text": "is art around?"}},
		{"update_id": 8, "message": {"from": {"first_name": "Carol"}, "text": "status?"}}
	]`)
	defer srv.Close()

	a := New("test-token", nil, WithBaseURL(srv.URL))
	defer a.Close()

	ev := <-a.Subscribe()
	assert.Equal(t, "telegram", ev.Channel)
	assert.Equal(t, "bob", ev.Author)
	assert.Equal(t, "is art around?", ev.Text)
	assert.False(t, ev.AlreadyPosted)

	ev = <-a.Subscribe()
	assert.Equal(t, "Carol", ev.Author)
}

func TestListenModeDM(t *testing.T) {
	srv := fakeBotAPI(t, `[
		{"update_id": 1, "message": {"from": {"username": "bob"}, "chat": {"type": "group"}, "text": "group chatter"}},
		{"update_id": 2, "message": {"from": {"username": "carol"}, "chat": {"type": "private"}, "text": "hey, got a minute?"}}
	]`)
	defer srv.Close()

	a := New("test-token", nil, WithBaseURL(srv.URL), WithListenMode("dm"))
	defer a.Close()

	ev := <-a.Subscribe()
	assert.Equal(t, "carol", ev.Author)
	assert.Equal(t, "hey, got a minute?", ev.Text)
}

func TestListenModeMentions(t *testing.T) {
	srv := fakeBotAPI(t, `[
		{"update_id": 1, "message": {"from": {"username": "bob"}, "chat": {"type": "group"}, "text": "no mention here"}},
		{"update_id": 2, "message": {"from": {"username": "bob"}, "chat": {"type": "group"}, "entities": [{"type": "mention"}], "text": "@art_twin are you around?"}}
	]`)
	defer srv.Close()

	a := New("test-token", nil, WithBaseURL(srv.URL), WithListenMode("mentions"))
	defer a.Close()

	ev := <-a.Subscribe()
	assert.Equal(t, "@art_twin are you around?", ev.Text)
}
