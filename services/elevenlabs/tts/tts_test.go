package elevenlabs

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

// fakeSynthServer speaks just enough of the stream-input protocol: it expects
// a BOS, echoes each non-empty text chunk back as one audio frame, and
// answers the empty-text EOS with a final frame.
func fakeSynthServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()

		// BOS
		var bos bosMessage
		if _, msg, err := ws.ReadMessage(); err != nil {
			return
		} else if err := sonic.Unmarshal(msg, &bos); err != nil || bos.Text != " " {
			t.Errorf("first message was not a BOS: %s", msg)
			return
		}

		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var txt textMessage
			if err := sonic.Unmarshal(msg, &txt); err != nil {
				continue
			}
			if txt.Text == "" {
				reply, _ := sonic.Marshal(audioMessage{
					Audio:   base64.StdEncoding.EncodeToString([]byte("tail")),
					IsFinal: true,
				})
				ws.WriteMessage(websocket.TextMessage, reply)
				continue
			}
			reply, _ := sonic.Marshal(audioMessage{
				Audio: base64.StdEncoding.EncodeToString([]byte(txt.Text)),
			})
			ws.WriteMessage(websocket.TextMessage, reply)
		}
	}))
}

func dialFake(t *testing.T, server *httptest.Server) *Conn {
	t.Helper()
	config := Config{
		APIKey:  "test-key",
		BaseURL: strings.Replace(server.URL, "http", "ws", 1),
	}
	conn, err := Dial(context.Background(), config, "voice-a", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestDialSendsBOSAndStreamsAudio(t *testing.T) {
	server := fakeSynthServer(t)
	defer server.Close()
	conn := dialFake(t, server)

	select {
	case <-conn.Ready():
	case <-time.After(time.Second):
		t.Fatal("connection never became ready")
	}

	if err := conn.SendText("Hello there."); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	select {
	case frame := <-conn.Audio():
		if string(frame) != "Hello there." {
			t.Errorf("audio frame = %q", frame)
		}
	case <-time.After(time.Second):
		t.Fatal("no audio frame arrived")
	}
}

func TestFlushSignalsFlushed(t *testing.T) {
	server := fakeSynthServer(t)
	defer server.Close()
	conn := dialFake(t, server)

	if err := conn.SendText("One."); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if err := conn.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	deadline := time.After(time.Second)
	var sawFlush bool
	for !sawFlush {
		select {
		case <-conn.Audio():
		case <-conn.Flushed():
			sawFlush = true
		case <-deadline:
			t.Fatal("flush was never acknowledged")
		}
	}
}

func TestDialRetriesThenFails(t *testing.T) {
	config := Config{
		APIKey:  "test-key",
		BaseURL: "ws://127.0.0.1:1", // nothing listens here
	}
	start := time.Now()
	_, err := Dial(context.Background(), config, "voice-a", nil)
	if err == nil {
		t.Fatal("Dial succeeded against a dead endpoint")
	}
	// two backoff delays (500ms, 1s) between the three attempts
	if elapsed := time.Since(start); elapsed < 1200*time.Millisecond {
		t.Errorf("Dial gave up after %v, expected bounded retries first", elapsed)
	}
}

func TestVoiceIsBoundAtDial(t *testing.T) {
	server := fakeSynthServer(t)
	defer server.Close()
	conn := dialFake(t, server)
	if conn.Voice() != "voice-a" {
		t.Errorf("Voice() = %q, want voice-a", conn.Voice())
	}
}

func TestSendTextRejectsEmpty(t *testing.T) {
	server := fakeSynthServer(t)
	defer server.Close()
	conn := dialFake(t, server)
	if err := conn.SendText(""); err == nil {
		t.Error("SendText accepted empty text")
	}
}
