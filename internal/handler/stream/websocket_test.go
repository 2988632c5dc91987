package stream

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-haven/backend/internal/model/chat"
	"github.com/zhouzirui/z-haven/backend/internal/model/locale"
	triagemodel "github.com/zhouzirui/z-haven/backend/internal/model/triage"
)

func dial(t *testing.T, serverURL, ownerID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws/" + ownerID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until one of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, frameType string) outboundFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var frame outboundFrame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Type == frameType {
			return frame
		}
	}
}

func TestWebSocketSubmitEmergency(t *testing.T) {
	srv, env := newServer(t, triagemodel.Emergency)
	conn := dial(t, srv.URL, "u1")

	connected := readUntil(t, conn, "connected")
	require.NotNil(t, connected.Session)
	require.Equal(t, "u1", connected.Session.OwnerID)

	require.NoError(t, conn.WriteJSON(inboundFrame{Type: frameMessage, Text: "I want to end it now"}))

	outcome := readUntil(t, conn, "outcome")
	require.NotNil(t, outcome.Outcome)
	require.Equal(t, triagemodel.Emergency, outcome.Outcome.Category)
	require.Equal(t, "tel:14416", outcome.Outcome.Dial)
	require.Empty(t, outcome.Outcome.Error)
	require.Equal(t, []string{"14416"}, env.Dialer.Dialed())
}

func TestWebSocketForwardsTranscriptEvents(t *testing.T) {
	srv, _ := newServer(t, triagemodel.Neutral)
	conn := dial(t, srv.URL, "u1")
	readUntil(t, conn, "connected")

	require.NoError(t, conn.WriteJSON(inboundFrame{Type: frameMessage, Text: "hello"}))

	event := readUntil(t, conn, "event")
	require.NotNil(t, event.Event)
	require.Equal(t, chat.EventAppended, event.Event.Kind)
	require.Equal(t, "hello", event.Event.Message.Text)
}

func TestWebSocketLocaleAndClear(t *testing.T) {
	srv, _ := newServer(t, triagemodel.Neutral)
	conn := dial(t, srv.URL, "u1")
	readUntil(t, conn, "connected")

	require.NoError(t, conn.WriteJSON(inboundFrame{Type: frameToggle}))
	session := readUntil(t, conn, "session")
	require.Equal(t, locale.Tamil, session.Session.Locale)

	require.NoError(t, conn.WriteJSON(inboundFrame{Type: frameLocale, Locale: "en"}))
	session = readUntil(t, conn, "session")
	require.Equal(t, locale.English, session.Session.Locale)

	require.NoError(t, conn.WriteJSON(inboundFrame{Type: frameClear}))
	session = readUntil(t, conn, "session")
	require.Equal(t, uint64(1), session.Session.Epoch)
	require.Equal(t, locale.English.Catalog().Cleared, session.Notice)

	require.NoError(t, conn.WriteJSON(inboundFrame{Type: frameLocale, Locale: "klingon"}))
	failure := readUntil(t, conn, "error")
	require.Equal(t, "invalid_locale", failure.Error)
}

func TestWebSocketSubmitsMessagesInArrivalOrder(t *testing.T) {
	srv, env := newServer(t, triagemodel.Neutral)
	conn := dial(t, srv.URL, "u1")
	readUntil(t, conn, "connected")

	const n = 40
	want := make([]string, 0, n)
	for i := 0; i < n; i++ {
		text := fmt.Sprintf("m%02d", i)
		want = append(want, text)
		require.NoError(t, conn.WriteJSON(inboundFrame{Type: frameMessage, Text: text}))
	}

	replied := make([]string, 0, n)
	for len(replied) < n {
		frame := readUntil(t, conn, "outcome")
		require.NotNil(t, frame.Outcome)
		replied = append(replied, frame.Outcome.Incoming.Text)
	}
	require.Equal(t, want, replied)

	messages, err := env.Chat.ListByOwner(context.Background(), "u1")
	require.NoError(t, err)
	stored := make([]string, 0, n)
	for _, m := range messages {
		if m.Direction == chat.Incoming {
			stored = append(stored, m.Text)
		}
	}
	require.Equal(t, want, stored)
}
