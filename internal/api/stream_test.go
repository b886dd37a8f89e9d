package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/retinasim/internal/cells"
	"github.com/talgya/retinasim/internal/export"
	"github.com/talgya/retinasim/internal/space"
)

func readFrame(t *testing.T, conn *websocket.Conn) export.Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var fr export.Frame
	if err := json.Unmarshal(msg, &fr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return fr
}

func TestStreamSendsLatestThenLiveFrames(t *testing.T) {
	s := newTestServer(t)
	s.Stream = NewHub()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	snapshot := []cells.Cell{*cells.NewCell(cells.TypeCone, space.Vec3{1, 2, 0})}
	if err := s.Stream.Publish(2, snapshot); err != nil {
		t.Fatal(err)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if fr := readFrame(t, conn); fr.Tick != 2 || len(fr.Cells) != 1 {
		t.Fatalf("first frame = %+v", fr)
	}

	deadline := time.Now().Add(5 * time.Second)
	for s.Stream.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("viewer never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	snapshot[0].Position = space.Vec3{1, 2, 0.5}
	if err := s.Stream.Publish(4, snapshot); err != nil {
		t.Fatal(err)
	}
	fr := readFrame(t, conn)
	if fr.Tick != 4 || fr.Cells[0].Position.Z() != 0.5 || fr.Cells[0].CellType != int(cells.TypeCone) {
		t.Fatalf("live frame = %+v", fr)
	}

	conn.Close()
	deadline = time.Now().Add(5 * time.Second)
	for s.Stream.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("viewer never left")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPublishWithoutViewers(t *testing.T) {
	h := NewHub()
	if err := h.Publish(1, nil); err != nil {
		t.Fatal(err)
	}
	if h.Clients() != 0 {
		t.Fatalf("clients = %d", h.Clients())
	}
}
