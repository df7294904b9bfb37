// SPDX-License-Identifier: BSD-2-Clause
// Copyright (c) 2026 Frederic Detienne

package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newBridgeServer starts a WebSocket endpoint playing the device side of a
// serial bridge and dials a Bridge against it. Payloads pushed into the
// returned channel are forwarded as binary messages; a nil payload closes
// the connection. With echo set, host writes are reflected back.
func newBridgeServer(t *testing.T, echo bool) (*Bridge, chan<- []byte) {
	t.Helper()

	var upgrader websocket.Upgrader
	send := make(chan []byte, 8)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				if echo {
					send <- data
				}
			}
		}()

		for {
			select {
			case data := <-send:
				if data == nil {
					return
				}
				if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
					return
				}
			case <-gone:
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	b, err := DialBridge(BridgeConfig{
		URL:          wsURL,
		ReadTimeout:  200 * time.Millisecond,
		WriteTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("DialBridge failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b, send
}

// A read deadline expiring must not poison the connection: the late message
// is delivered to the next read, so the protocol layer's retry discipline
// works over the bridge exactly as it does over a local port.
func TestBridge_ReadAfterTimeout(t *testing.T) {
	b, send := newBridgeServer(t, false)

	if _, err := b.ReadExact(1); !IsTimeout(err) {
		t.Fatalf("read with silent peer = %v, want *TimeoutError", err)
	}

	send <- []byte{0x42}
	got, err := b.ReadExact(1)
	if err != nil {
		t.Fatalf("read after timeout failed: %v", err)
	}
	if got[0] != 0x42 {
		t.Errorf("read byte = 0x%02X, want 0x42", got[0])
	}
}

func TestBridge_Rebuffering(t *testing.T) {
	b, send := newBridgeServer(t, false)

	// A read may span message boundaries and leave a remainder behind.
	send <- []byte("ab")
	send <- []byte("cd")

	got, err := b.ReadExact(3)
	if err != nil {
		t.Fatalf("ReadExact(3) failed: %v", err)
	}
	if string(got) != "abc" {
		t.Errorf("ReadExact(3) = %q, want abc", got)
	}

	got, err = b.ReadExact(1)
	if err != nil {
		t.Fatalf("ReadExact(1) failed: %v", err)
	}
	if string(got) != "d" {
		t.Errorf("ReadExact(1) = %q, want d", got)
	}
}

func TestBridge_ReadUntil(t *testing.T) {
	b, send := newBridgeServer(t, false)

	send <- []byte("V74!K2")
	got, err := b.ReadUntil('!')
	if err != nil {
		t.Fatalf("ReadUntil failed: %v", err)
	}
	if string(got) != "V74!" {
		t.Errorf("ReadUntil = %q, want V74!", got)
	}
}

func TestBridge_WriteRoundTrip(t *testing.T) {
	b, _ := newBridgeServer(t, true)

	if err := b.Write([]byte("A!")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := b.ReadExact(2)
	if err != nil {
		t.Fatalf("echo read failed: %v", err)
	}
	if string(got) != "A!" {
		t.Errorf("echo = %q, want A!", got)
	}
}

func TestBridge_PeerClosed(t *testing.T) {
	b, send := newBridgeServer(t, false)

	send <- nil // peer hangs up
	_, err := b.ReadExact(1)
	if err == nil {
		t.Fatal("read from closed peer succeeded")
	}
	if IsTimeout(err) {
		t.Errorf("read from closed peer = %v, want a hard error, not a timeout", err)
	}
}

func TestBridge_SetReadTimeout(t *testing.T) {
	b, _ := newBridgeServer(t, false)

	prev, err := b.SetReadTimeout(time.Second)
	if err != nil {
		t.Fatalf("SetReadTimeout failed: %v", err)
	}
	if prev != 200*time.Millisecond {
		t.Errorf("previous deadline = %v, want 200ms", prev)
	}
}

func TestDialBridge_BadScheme(t *testing.T) {
	if _, err := DialBridge(BridgeConfig{URL: "http://bridge.local/serial"}); err == nil {
		t.Error("DialBridge accepted an http:// URL")
	}
}
