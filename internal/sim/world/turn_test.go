package world

import (
	"context"
	"testing"
	"time"
)

func TestTurn_AdvanceAndCooldown(t *testing.T) {
	w, _ := newTestWorld(t, Config{TurnCooldown: time.Hour})

	rep, err := w.AdvanceTurn(context.Background(), false)
	if err != nil {
		t.Fatalf("AdvanceTurn: %v", err)
	}
	if !rep.Advanced || rep.Turn != 1 {
		t.Fatalf("first advance: %+v", rep)
	}

	rep, err = w.AdvanceTurn(context.Background(), false)
	if err != nil {
		t.Fatalf("AdvanceTurn: %v", err)
	}
	if rep.Advanced || rep.Reason != "cooldown" {
		t.Fatalf("second advance: %+v", rep)
	}
	if got := w.CurrentTurn(); got != 1 {
		t.Fatalf("turn = %d after rejected advance", got)
	}

	rep, err = w.AdvanceTurn(context.Background(), true)
	if err != nil {
		t.Fatalf("AdvanceTurn: %v", err)
	}
	if !rep.Advanced || rep.Turn != 2 {
		t.Fatalf("forced advance: %+v", rep)
	}
}

func TestTurn_PaysSalaryAndAccruesInterest(t *testing.T) {
	w, _ := newTestWorld(t, Config{InterestPermille: 50})
	join := mustJoin(t, w, "alice")

	do(t, w, ActionEnvelope{
		ActorID: join.ActorID, Kind: KindApplyJob,
		Payload: map[string]any{"job_id": "courier"},
	})
	do(t, w, ActionEnvelope{ActorID: join.ActorID, Kind: KindTakeLoan, Amount: 1000})

	if _, err := w.AdvanceTurn(context.Background(), true); err != nil {
		t.Fatalf("AdvanceTurn: %v", err)
	}
	a := w.View().Actors[join.ActorID]
	if a.Bank != 40 {
		t.Fatalf("bank = %d, want salary 40", a.Bank)
	}
	if a.Debt != 1050 {
		t.Fatalf("debt = %d, want 1050", a.Debt)
	}
}

func TestTurn_InterestMinimumIsOne(t *testing.T) {
	w, _ := newTestWorld(t, Config{InterestPermille: 1})
	join := mustJoin(t, w, "alice")

	do(t, w, ActionEnvelope{ActorID: join.ActorID, Kind: KindTakeLoan, Amount: 10})
	if _, err := w.AdvanceTurn(context.Background(), true); err != nil {
		t.Fatalf("AdvanceTurn: %v", err)
	}
	if got := w.View().Actors[join.ActorID].Debt; got != 11 {
		t.Fatalf("debt = %d, want 11", got)
	}
}

func TestTurn_MarketWalkRespectsFloorAndHistory(t *testing.T) {
	w, _ := newTestWorld(t, Config{PriceHistory: 5})

	for i := 0; i < 30; i++ {
		if _, err := w.AdvanceTurn(context.Background(), true); err != nil {
			t.Fatalf("AdvanceTurn: %v", err)
		}
	}
	s := w.View()
	for id, m := range s.Markets {
		def := w.Catalogs().Instruments.ByID[id]
		if m.Price < def.Floor {
			t.Errorf("%s price %d below floor %d", id, m.Price, def.Floor)
		}
		if len(m.History) > 5 {
			t.Errorf("%s history length %d, want <= 5", id, len(m.History))
		}
	}
}

func TestTurn_EventExpires(t *testing.T) {
	w, _ := newTestWorld(t, Config{})

	_, err := w.Commit(context.Background(), "test", func(s *WorldState) (*ChangeDraft, error) {
		s.Events["E1"] = &ActiveEvent{ID: "E1", TemplateID: "bull_run", StartTurn: s.Turn, EndTurn: s.Turn + 1}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := w.AdvanceTurn(context.Background(), true); err != nil {
		t.Fatalf("AdvanceTurn: %v", err)
	}
	s := w.View()
	if s.Events["E1"] != nil {
		t.Fatal("event survived past EndTurn")
	}
	if len(s.News) == 0 || s.News[len(s.News)-1].Headline != "Bull Run ends" {
		t.Fatalf("no expiry news, got %+v", s.News)
	}
}

func TestTurn_PublishesChange(t *testing.T) {
	w, _ := newTestWorld(t, Config{})

	sub := w.Notifier().Subscribe(8)
	defer w.Notifier().Unsubscribe(sub)

	if _, err := w.AdvanceTurn(context.Background(), true); err != nil {
		t.Fatalf("AdvanceTurn: %v", err)
	}
	select {
	case ev := <-sub.C():
		if ev.Kind != "TURN_ADVANCED" {
			t.Fatalf("kind = %s", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}
}

func TestTurn_DeterministicForSeed(t *testing.T) {
	run := func(seed int64) string {
		cfg := Config{Seed: seed, ID: "det", StarterCash: 1000}
		w, err := New(cfg, testCatalogs())
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = w.Run(ctx) }()

		join := mustJoin(t, w, "alice")
		do(t, w, ActionEnvelope{
			ActorID: join.ActorID, Kind: KindApplyJob,
			Payload: map[string]any{"job_id": "courier"},
		})
		for i := 0; i < 10; i++ {
			if _, err := w.AdvanceTurn(ctx, true); err != nil {
				t.Fatalf("AdvanceTurn: %v", err)
			}
		}
		return w.View().Digest()
	}

	if a, b := run(7), run(7); a != b {
		t.Fatal("same seed produced different states")
	}
	if a, b := run(7), run(8); a == b {
		t.Fatal("different seeds produced identical states")
	}
}
