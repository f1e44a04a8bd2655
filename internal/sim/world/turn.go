package world

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"capitolia.gg/internal/sim/catalogs"
)

// TurnReport tells a caller what the scheduler did with an advance attempt.
type TurnReport struct {
	Advanced bool   `json:"advanced"`
	Turn     uint64 `json:"turn"`
	Reason   string `json:"reason,omitempty"`
}

// AdvanceTurn asks the loop to advance the world by one turn. force skips
// the cooldown gate (admin use); the single-advance guarantee always holds.
func (w *World) AdvanceTurn(ctx context.Context, force bool) (TurnReport, error) {
	req := turnReq{force: force, resp: make(chan TurnReport, 1)}
	select {
	case w.turns <- req:
	case <-ctx.Done():
		return TurnReport{}, ctx.Err()
	case <-w.stop:
		return TurnReport{}, ErrStopped
	}
	select {
	case rep := <-req.resp:
		return rep, nil
	case <-ctx.Done():
		return TurnReport{}, ctx.Err()
	}
}

// runTurn executes on the loop goroutine only. The advancing flag is never
// contended here; it exists so status readers can observe Idle/Advancing.
func (w *World) runTurn(force bool) TurnReport {
	cur := w.canonical.Load()
	if !w.advancing.CompareAndSwap(false, true) {
		return TurnReport{Turn: cur.Turn, Reason: "busy"}
	}
	defer w.advancing.Store(false)

	if !force {
		last := w.lastTurnAt.Load()
		if last != 0 && time.Since(time.Unix(0, last)) < w.cfg.TurnCooldown {
			return TurnReport{Turn: cur.Turn, Reason: "cooldown"}
		}
	}

	resp := make(chan commitResp, 1)
	w.applyCommit(commitReq{
		ctx:    context.Background(),
		label:  "turn",
		mutate: w.turnMutator,
		resp:   resp,
	})
	r := <-resp
	if r.err != nil {
		return TurnReport{Turn: cur.Turn, Reason: "error: " + r.err.Error()}
	}
	w.lastTurnAt.Store(time.Now().UnixNano())

	if n := w.cfg.SnapshotEveryTurns; n > 0 && r.state.Turn%uint64(n) == 0 {
		w.exportToSink()
	}
	return TurnReport{Advanced: true, Turn: r.state.Turn}
}

// turnMutator applies one full turn: payroll, interest, market walks and
// the event lifecycle. All iteration is over sorted ids so the resulting
// state is a pure function of (state, seed).
func (w *World) turnMutator(s *WorldState) (*ChangeDraft, error) {
	s.Turn++
	rng := turnSeed(w.cfg.Seed, s.Turn)

	taxHoliday := false
	crimeMag := int64(0)
	marketDrift := int64(0)
	for _, ev := range sortedEvents(s) {
		tmpl, ok := w.cats.Events.ByID[ev.TemplateID]
		if !ok {
			continue
		}
		switch tmpl.Effect {
		case catalogs.EffectMarketBoom:
			marketDrift += tmpl.MagnitudePermille
		case catalogs.EffectMarketCrash:
			marketDrift -= tmpl.MagnitudePermille
		case catalogs.EffectTaxHoliday:
			taxHoliday = true
		case catalogs.EffectCrimeWave:
			crimeMag += tmpl.MagnitudePermille
		}
	}

	actorIDs := make([]string, 0, len(s.Actors))
	for id := range s.Actors {
		actorIDs = append(actorIDs, id)
	}
	sort.Strings(actorIDs)
	for _, id := range actorIDs {
		a := s.Actors[id]
		if a.JobID != "" {
			if def, ok := w.cats.Jobs.ByID[a.JobID]; ok {
				a.Bank += def.Salary
			}
		}
		if a.Debt > 0 && !taxHoliday {
			interest := a.Debt * w.cfg.InterestPermille / 1000
			if interest < 1 {
				interest = 1
			}
			a.Debt += interest
		}
		if crimeMag > 0 && a.Cash > 0 {
			loss := a.Cash * crimeMag / 1000
			if loss > 0 {
				a.Cash -= loss
			}
		}
	}

	for _, id := range w.cats.Instruments.IDs {
		def := w.cats.Instruments.ByID[id]
		m := s.Markets[id]
		if m == nil {
			continue
		}
		span := 2*def.MaxWalkPermille + 1
		walk := rng.Int63n(span) - def.MaxWalkPermille + marketDrift
		price := m.Price + m.Price*walk/1000
		if step := def.RoundStep; step > 1 {
			price = price / step * step
		}
		if price < def.Floor {
			price = def.Floor
		}
		m.Price = price
		m.History = append(m.History, price)
		if len(m.History) > w.cfg.PriceHistory {
			m.History = m.History[len(m.History)-w.cfg.PriceHistory:]
		}
	}

	for _, ev := range sortedEvents(s) {
		if s.Turn >= ev.EndTurn {
			delete(s.Events, ev.ID)
			if tmpl, ok := w.cats.Events.ByID[ev.TemplateID]; ok {
				w.addNews(s, tmpl.Title+" ends", tmpl.Summary)
			}
		}
	}

	if len(w.cats.Events.IDs) > 0 && rng.Int63n(1000) < w.cfg.EventSpawnPermille {
		if tmpl, ok := pickEvent(rng, w.cats.Events); ok {
			s.Counters.NextEvent++
			id := fmt.Sprintf("E%d", s.Counters.NextEvent)
			s.Events[id] = &ActiveEvent{
				ID:         id,
				TemplateID: tmpl.ID,
				StartTurn:  s.Turn,
				EndTurn:    s.Turn + tmpl.DurationTurns,
			}
			w.addNews(s, tmpl.Title, tmpl.Summary)
		}
	}

	return &ChangeDraft{Kind: "TURN_ADVANCED", Payload: map[string]any{
		"turn": s.Turn,
	}}, nil
}

func sortedEvents(s *WorldState) []*ActiveEvent {
	out := make([]*ActiveEvent, 0, len(s.Events))
	for _, ev := range s.Events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// pickEvent draws a template weighted by BaseWeight over the sorted ids.
func pickEvent(rng *rand.Rand, cat catalogs.EventCatalog) (catalogs.EventTemplate, bool) {
	var total int64
	for _, id := range cat.IDs {
		total += cat.ByID[id].BaseWeight
	}
	if total <= 0 {
		return catalogs.EventTemplate{}, false
	}
	n := rng.Int63n(total)
	for _, id := range cat.IDs {
		tmpl := cat.ByID[id]
		if n < tmpl.BaseWeight {
			return tmpl, true
		}
		n -= tmpl.BaseWeight
	}
	return catalogs.EventTemplate{}, false
}
