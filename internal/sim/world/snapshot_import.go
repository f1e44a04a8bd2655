package world

import (
	"fmt"

	"capitolia.gg/internal/persistence/snapshot"
)

// ImportSnapshot replaces the aggregate with a durable state. It must be
// called before Run; nothing else may be touching the world.
func (w *World) ImportSnapshot(snap snapshot.StateV1) error {
	if snap.Header.Version != 1 {
		return fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	if snap.Header.WorldID != "" && snap.Header.WorldID != w.cfg.ID {
		return fmt.Errorf("snapshot world %q does not match %q", snap.Header.WorldID, w.cfg.ID)
	}

	s := newWorldState()
	s.Turn = snap.Header.Turn
	s.RandNonce = snap.RandNonce
	s.Counters = Counters{
		NextActor:   snap.Counters.NextActor,
		NextRequest: snap.Counters.NextRequest,
		NextEvent:   snap.Counters.NextEvent,
	}

	for _, av := range snap.Actors {
		a := &Actor{
			ID:            av.ID,
			Name:          av.Name,
			ResumeToken:   av.ResumeToken,
			CreatedTurn:   av.CreatedTurn,
			Cash:          av.Cash,
			Bank:          av.Bank,
			Debt:          av.Debt,
			JobID:         av.JobID,
			HiredTurn:     av.HiredTurn,
			LastShiftTurn: av.LastShiftTurn,
			Reputation:    av.Reputation,
			Portfolio:     map[string]int64{},
		}
		for k, v := range av.Portfolio {
			a.Portfolio[k] = v
		}
		for _, m := range av.Inbox {
			a.Inbox = append(a.Inbox, Message{From: m.From, Text: m.Text, Turn: m.Turn})
		}
		if len(av.RateWindows) > 0 {
			a.RateWindows = make(map[string]*RateWindow, len(av.RateWindows))
			for k, v := range av.RateWindows {
				a.RateWindows[k] = &RateWindow{StartTurn: v.StartTurn, Count: v.Count}
			}
		}
		s.Actors[a.ID] = a
	}

	for _, mv := range snap.Markets {
		s.Markets[mv.ID] = &Market{
			ID:      mv.ID,
			Price:   mv.Price,
			History: append([]int64(nil), mv.History...),
		}
	}
	// Instruments added to the catalog since the snapshot start fresh.
	for _, id := range w.cats.Instruments.IDs {
		if s.Markets[id] == nil {
			def := w.cats.Instruments.ByID[id]
			s.Markets[id] = &Market{ID: id, Price: def.StartPrice, History: []int64{def.StartPrice}}
		}
	}

	for _, hv := range snap.Holdings {
		s.Holdings[hv.PropertyID] = &Holding{
			PropertyID:   hv.PropertyID,
			OwnerID:      hv.OwnerID,
			BoughtTurn:   hv.BoughtTurn,
			LastRentTurn: hv.LastRentTurn,
		}
	}

	for _, rv := range snap.Requests {
		s.Requests[rv.ID] = &PendingRequest{
			ID:            rv.ID,
			ActorID:       rv.ActorID,
			Kind:          rv.Kind,
			Amount:        rv.Amount,
			Note:          rv.Note,
			SubmittedTurn: rv.SubmittedTurn,
		}
	}

	for _, ev := range snap.Events {
		s.Events[ev.ID] = &ActiveEvent{
			ID:         ev.ID,
			TemplateID: ev.TemplateID,
			StartTurn:  ev.StartTurn,
			EndTurn:    ev.EndTurn,
		}
	}

	for _, nv := range snap.News {
		s.News = append(s.News, NewsItem{Turn: nv.Turn, Headline: nv.Headline, Body: nv.Body})
	}
	for k, v := range snap.Settings {
		s.Settings[k] = v
	}
	for _, t := range snap.Processed {
		s.Processed[t] = struct{}{}
	}

	w.canonical.Store(s)
	w.notifier.setRevision(snap.Revision)
	return nil
}
