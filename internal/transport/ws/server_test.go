package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"capitolia.gg/internal/protocol"
	"capitolia.gg/internal/sim/catalogs"
	"capitolia.gg/internal/sim/world"
)

func testCatalogs() *catalogs.Catalogs {
	return &catalogs.Catalogs{
		Jobs: catalogs.JobCatalog{
			ByID: map[string]catalogs.JobDef{
				"courier": {ID: "courier", Title: "Courier", Salary: 40, ShiftPay: 25, ShiftCooldown: 1},
			},
			IDs:    []string{"courier"},
			Digest: "jobs",
		},
		Properties:  catalogs.PropertyCatalog{ByID: map[string]catalogs.PropertyDef{}, Digest: "props"},
		Instruments: catalogs.InstrumentCatalog{ByID: map[string]catalogs.InstrumentDef{}, Digest: "inst"},
		Events:      catalogs.EventCatalog{ByID: map[string]catalogs.EventTemplate{}, Digest: "events"},
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *world.World) {
	t.Helper()
	w, err := world.New(world.Config{ID: "ws_test", Seed: 7, StarterCash: 1000}, testCatalogs())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()

	s := NewServer(w, log.New(os.Stdout, "[ws-test] ", log.LstdFlags))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, w
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func handshake(t *testing.T, conn *websocket.Conn, hello protocol.HelloMsg) protocol.WelcomeMsg {
	t.Helper()
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("write HELLO: %v", err)
	}
	var welcome protocol.WelcomeMsg
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("read WELCOME: %v", err)
	}
	if welcome.Type != protocol.TypeWelcome {
		t.Fatalf("first message = %+v", welcome)
	}
	return welcome
}

// readUntil drains messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) []byte {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if base.Type == msgType {
			return msg
		}
	}
	t.Fatalf("no %s message arrived", msgType)
	return nil
}

func TestHandshake_JoinsWorld(t *testing.T) {
	srv, w := newTestServer(t)
	conn := dial(t, srv)

	welcome := handshake(t, conn, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ActorName:       "alice",
	})
	if welcome.ActorID == "" || !strings.HasPrefix(welcome.ResumeToken, "resume_") {
		t.Fatalf("welcome = %+v", welcome)
	}
	if welcome.WorldParams.WorldID != "ws_test" || welcome.WorldParams.Seed != 7 {
		t.Fatalf("world params = %+v", welcome.WorldParams)
	}
	if a := w.View().Actors[welcome.ActorID]; a == nil || a.Name != "alice" {
		t.Fatalf("actor not created: %+v", a)
	}
}

func TestHandshake_RejectsNonHello(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)

	if err := conn.WriteJSON(protocol.ActMsg{
		Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Kind: "DEPOSIT",
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("connection survived a non-HELLO first message")
	}
}

func TestHandshake_RejectsVersionMismatch(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)

	if err := conn.WriteJSON(protocol.HelloMsg{
		Type: protocol.TypeHello, ProtocolVersion: "0.9",
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("connection survived a version mismatch")
	}
}

func TestAct_OutcomeAndChange(t *testing.T) {
	srv, w := newTestServer(t)
	conn := dial(t, srv)

	welcome := handshake(t, conn, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ActorName:       "alice",
	})

	if err := conn.WriteJSON(protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		ActID:           "act-1",
		Kind:            "DEPOSIT",
		Amount:          200,
	}); err != nil {
		t.Fatalf("write ACT: %v", err)
	}

	// OUTCOME and the fanned-out CHANGE may arrive in either order.
	var (
		outcome    protocol.OutcomeMsg
		change     protocol.ChangeMsg
		gotOutcome bool
		gotChange  bool
	)
	deadline := time.Now().Add(5 * time.Second)
	for !(gotOutcome && gotChange) {
		_ = conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		base, _ := protocol.DecodeBase(msg)
		switch base.Type {
		case protocol.TypeOutcome:
			if err := json.Unmarshal(msg, &outcome); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			gotOutcome = true
		case protocol.TypeChange:
			if err := json.Unmarshal(msg, &change); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			gotChange = true
		}
	}
	if outcome.Status != protocol.StatusApplied || outcome.Ref != "act-1" {
		t.Fatalf("outcome = %+v", outcome)
	}
	if change.Kind != "BALANCE_CHANGED" || change.Revision == 0 {
		t.Fatalf("change = %+v", change)
	}

	if got := w.View().Actors[welcome.ActorID].Bank; got != 200 {
		t.Fatalf("bank = %d, want 200", got)
	}
}

func TestAct_RejectionComesBack(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)

	handshake(t, conn, protocol.HelloMsg{
		Type: protocol.TypeHello, ProtocolVersion: protocol.Version,
	})

	if err := conn.WriteJSON(protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		ActID:           "act-2",
		Kind:            "WITHDRAW",
		Amount:          999,
	}); err != nil {
		t.Fatalf("write ACT: %v", err)
	}

	var outcome protocol.OutcomeMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeOutcome), &outcome); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if outcome.Status != protocol.StatusRejected || outcome.Code != protocol.ErrNoResource {
		t.Fatalf("outcome = %+v", outcome)
	}
}

func TestResume_ReattachesActor(t *testing.T) {
	srv, _ := newTestServer(t)

	conn := dial(t, srv)
	first := handshake(t, conn, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ActorName:       "alice",
	})
	conn.Close()

	conn2 := dial(t, srv)
	second := handshake(t, conn2, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Auth:            &protocol.HelloAuth{Token: first.ResumeToken},
	})
	if second.ActorID != first.ActorID {
		t.Fatalf("actor = %s, want %s", second.ActorID, first.ActorID)
	}
	// Tokens rotate on every attach.
	if second.ResumeToken == first.ResumeToken {
		t.Fatal("resume token not rotated")
	}

	// The old token is now stale and yields a fresh actor.
	conn3 := dial(t, srv)
	third := handshake(t, conn3, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Auth:            &protocol.HelloAuth{Token: first.ResumeToken},
	})
	if third.ActorID == first.ActorID {
		t.Fatal("stale token reattached")
	}
}

func TestCatchup_SinceRevision(t *testing.T) {
	srv, w := newTestServer(t)

	// Produce history before the subscriber connects.
	ctx := context.Background()
	join, err := w.Join(ctx, "early")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := w.Dispatch(ctx, world.ActionEnvelope{
			ActorID: join.ActorID, Kind: world.KindDeposit, Amount: 10,
		}); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}

	conn := dial(t, srv)
	handshake(t, conn, protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Capabilities:    protocol.HelloCapabilities{SinceRevision: 1},
	})

	var change protocol.ChangeMsg
	if err := json.Unmarshal(readUntil(t, conn, protocol.TypeChange), &change); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if change.Revision != 2 {
		t.Fatalf("first catch-up revision = %d, want 2", change.Revision)
	}
}
