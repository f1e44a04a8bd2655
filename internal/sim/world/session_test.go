package world

import (
	"context"
	"errors"
	"strings"
	"testing"

	"capitolia.gg/internal/protocol"
)

func TestJoin_CreatesActor(t *testing.T) {
	w, _ := newTestWorld(t, Config{StarterCash: 750, StarterBank: 25})

	res := mustJoin(t, w, "alice")
	if res.ActorID == "" || !strings.HasPrefix(res.ResumeToken, "resume_") {
		t.Fatalf("result = %+v", res)
	}
	a := w.View().Actors[res.ActorID]
	if a == nil || a.Name != "alice" || a.Cash != 750 || a.Bank != 25 {
		t.Fatalf("actor = %+v", a)
	}

	// Names default when omitted.
	res2 := mustJoin(t, w, "")
	if w.View().Actors[res2.ActorID].Name != "citizen" {
		t.Fatalf("default name = %s", w.View().Actors[res2.ActorID].Name)
	}
	if res2.ActorID == res.ActorID {
		t.Fatal("actor ids collide")
	}
}

func TestAttach_RotatesToken(t *testing.T) {
	w, _ := newTestWorld(t, Config{})
	first := mustJoin(t, w, "alice")

	second, err := w.Attach(context.Background(), first.ResumeToken)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if second.ActorID != first.ActorID {
		t.Fatalf("actor = %s, want %s", second.ActorID, first.ActorID)
	}
	if second.ResumeToken == first.ResumeToken {
		t.Fatal("token not rotated")
	}

	// The consumed token no longer attaches.
	_, err = w.Attach(context.Background(), first.ResumeToken)
	var rej *Rejection
	if !errors.As(err, &rej) || rej.Code != protocol.ErrNoPermission {
		t.Fatalf("stale attach err = %v", err)
	}
}

func TestAttach_UnknownToken(t *testing.T) {
	w, _ := newTestWorld(t, Config{})

	_, err := w.Attach(context.Background(), "resume_deadbeef")
	var rej *Rejection
	if !errors.As(err, &rej) || rej.Code != protocol.ErrNoPermission {
		t.Fatalf("err = %v", err)
	}
}

func TestMetrics_CountsEntities(t *testing.T) {
	w, _ := newTestWorld(t, Config{})
	join := mustJoin(t, w, "alice")

	do(t, w, ActionEnvelope{
		ActorID: join.ActorID, Kind: KindBuyProperty,
		Payload: map[string]any{"property_id": "shop_main"},
	})
	do(t, w, ActionEnvelope{ActorID: join.ActorID, Kind: KindDeposit, Amount: 10, Token: "m1"})

	m := w.Metrics()
	if m.Actors != 1 || m.Holdings != 1 || m.Markets != 2 {
		t.Fatalf("metrics = %+v", m)
	}
	if m.Revision == 0 || m.ProcessedTokens != 1 {
		t.Fatalf("metrics = %+v", m)
	}
}
