package world

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"capitolia.gg/internal/sim/catalogs"
)

func testCatalogs() *catalogs.Catalogs {
	return &catalogs.Catalogs{
		Jobs: catalogs.JobCatalog{
			ByID: map[string]catalogs.JobDef{
				"courier": {ID: "courier", Title: "Courier", Salary: 40, ShiftPay: 25, ShiftCooldown: 1},
				"broker":  {ID: "broker", Title: "Broker", Salary: 120, ShiftPay: 70, ShiftCooldown: 3, MinReputation: 15},
			},
			IDs:    []string{"broker", "courier"},
			Digest: "jobs",
		},
		Properties: catalogs.PropertyCatalog{
			ByID: map[string]catalogs.PropertyDef{
				"plot_a1":   {ID: "plot_a1", Kind: "LAND", Name: "Riverside Plot", Price: 1200, RentPerTurn: 12},
				"shop_main": {ID: "shop_main", Kind: "SHOP", Name: "Main Shop", Price: 500, RentPerTurn: 10},
			},
			IDs:    []string{"plot_a1", "shop_main"},
			Digest: "props",
		},
		Instruments: catalogs.InstrumentCatalog{
			ByID: map[string]catalogs.InstrumentDef{
				"capt": {ID: "capt", Kind: "STOCK", Name: "Transit", StartPrice: 100, Floor: 10, RoundStep: 1, MaxWalkPermille: 60},
				"ore":  {ID: "ore", Kind: "STOCK", Name: "Mining", StartPrice: 80, Floor: 5, RoundStep: 1, MaxWalkPermille: 110},
			},
			IDs:    []string{"capt", "ore"},
			Digest: "inst",
		},
		Events: catalogs.EventCatalog{
			ByID: map[string]catalogs.EventTemplate{
				"bull_run": {ID: "bull_run", Title: "Bull Run", Summary: "up", DurationTurns: 6, BaseWeight: 30, Effect: catalogs.EffectMarketBoom, MagnitudePermille: 25},
			},
			IDs:    []string{"bull_run"},
			Digest: "events",
		},
	}
}

func newTestWorld(t *testing.T, cfg Config) (*World, context.CancelFunc) {
	t.Helper()
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	if cfg.ID == "" {
		cfg.ID = "test_world"
	}
	if cfg.StarterCash == 0 {
		cfg.StarterCash = 1000
	}
	w, err := New(cfg, testCatalogs())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()
	t.Cleanup(cancel)
	return w, cancel
}

func mustJoin(t *testing.T, w *World, name string) JoinResult {
	t.Helper()
	res, err := w.Join(context.Background(), name)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	return res
}

func TestCommit_AppliesInOrder(t *testing.T) {
	w, _ := newTestWorld(t, Config{})
	join := mustJoin(t, w, "alice")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.Commit(context.Background(), "test", func(s *WorldState) (*ChangeDraft, error) {
				s.Actors[join.ActorID].Cash++
				return nil, nil
			})
			if err != nil {
				t.Errorf("Commit: %v", err)
			}
		}()
	}
	wg.Wait()

	got := w.View().Actors[join.ActorID].Cash
	if got != 1050 {
		t.Fatalf("cash = %d, want 1050", got)
	}
}

func TestCommit_ErrorLeavesStateUntouched(t *testing.T) {
	w, _ := newTestWorld(t, Config{})
	join := mustJoin(t, w, "alice")

	before := w.View().Digest()
	wantErr := errors.New("boom")
	_, err := w.Commit(context.Background(), "test", func(s *WorldState) (*ChangeDraft, error) {
		s.Actors[join.ActorID].Cash = 999999
		s.Settings["corrupted"] = "yes"
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if got := w.View().Digest(); got != before {
		t.Fatalf("state changed after failed commit")
	}
}

func TestCommit_PanicLeavesStateUntouched(t *testing.T) {
	w, _ := newTestWorld(t, Config{})
	join := mustJoin(t, w, "alice")

	before := w.View().Digest()
	_, err := w.Commit(context.Background(), "test", func(s *WorldState) (*ChangeDraft, error) {
		s.Actors[join.ActorID].Cash = 999999
		panic("mid-mutation failure")
	})
	if err == nil {
		t.Fatal("expected error from panicking mutator")
	}
	if got := w.View().Digest(); got != before {
		t.Fatalf("state changed after panicking commit")
	}
}

func TestCommit_AbandonedContext(t *testing.T) {
	w, _ := newTestWorld(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.Commit(ctx, "test", func(s *WorldState) (*ChangeDraft, error) {
		t.Error("mutator ran for an abandoned commit")
		return nil, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	// Give the loop a chance to drain the (possibly queued) request.
	time.Sleep(20 * time.Millisecond)
}

func TestCommit_AfterStop(t *testing.T) {
	cfg := Config{Seed: 42, ID: "test_world", StarterCash: 1000}
	w, err := New(cfg, testCatalogs())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	go func() { _ = w.Run(ctx) }()
	w.Stop()

	// Stop raced with Run; retry until the stop channel wins.
	deadline := time.Now().Add(time.Second)
	for {
		_, err = w.Commit(context.Background(), "test", func(s *WorldState) (*ChangeDraft, error) {
			return nil, nil
		})
		if errors.Is(err, ErrStopped) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("err = %v, want ErrStopped", err)
		}
	}
}

func TestCommit_PublishesChangeWithRevision(t *testing.T) {
	w, _ := newTestWorld(t, Config{})

	sub := w.Notifier().Subscribe(8)
	defer w.Notifier().Unsubscribe(sub)

	_, err := w.Commit(context.Background(), "test", func(s *WorldState) (*ChangeDraft, error) {
		return &ChangeDraft{Kind: "TEST_EVENT", Payload: map[string]any{"k": "v"}}, nil
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	select {
	case ev := <-sub.C():
		if ev.Kind != "TEST_EVENT" {
			t.Fatalf("kind = %s", ev.Kind)
		}
		if ev.Revision == 0 {
			t.Fatal("revision not assigned")
		}
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}
}

func TestNew_MissingCatalogs(t *testing.T) {
	if _, err := New(Config{ID: "x", Seed: 1}, nil); err == nil {
		t.Fatal("expected error for nil catalogs")
	}
}

func TestDigest_IgnoresResumeTokens(t *testing.T) {
	s := newWorldState()
	s.Actors["A1"] = &Actor{ID: "A1", Name: "alice", ResumeToken: "resume_aaaa", Cash: 100}

	other := s.Clone()
	other.Actors["A1"].ResumeToken = "resume_bbbb"
	if s.Digest() != other.Digest() {
		t.Fatal("digest varies with resume token")
	}

	other.Actors["A1"].Cash = 101
	if s.Digest() == other.Digest() {
		t.Fatal("digest missed a cash change")
	}
}

func TestNew_SeedsMarketsFromCatalog(t *testing.T) {
	w, _ := newTestWorld(t, Config{})
	s := w.View()
	m := s.Markets["capt"]
	if m == nil || m.Price != 100 {
		t.Fatalf("market capt not seeded: %+v", m)
	}
	if len(m.History) != 1 || m.History[0] != 100 {
		t.Fatalf("history = %v", m.History)
	}
}
