package world

import (
	"sort"

	"capitolia.gg/internal/persistence/snapshot"
)

// exportState flattens the aggregate into its durable form. Slices are
// emitted in sorted id order so equal states produce equal snapshots.
func (w *World) exportState(s *WorldState) snapshot.StateV1 {
	snap := snapshot.StateV1{
		Header: snapshot.Header{
			Version: 1,
			WorldID: w.cfg.ID,
			Turn:    s.Turn,
		},
		Seed:      w.cfg.Seed,
		Revision:  w.notifier.Revision(),
		RandNonce: s.RandNonce,
		Counters: snapshot.CountersV1{
			NextActor:   s.Counters.NextActor,
			NextRequest: s.Counters.NextRequest,
			NextEvent:   s.Counters.NextEvent,
		},
	}

	for _, id := range sortedKeys(s.Actors) {
		a := s.Actors[id]
		av := snapshot.ActorV1{
			ID:            a.ID,
			Name:          a.Name,
			ResumeToken:   a.ResumeToken,
			CreatedTurn:   a.CreatedTurn,
			Cash:          a.Cash,
			Bank:          a.Bank,
			Debt:          a.Debt,
			JobID:         a.JobID,
			HiredTurn:     a.HiredTurn,
			LastShiftTurn: a.LastShiftTurn,
			Reputation:    a.Reputation,
		}
		if len(a.Portfolio) > 0 {
			av.Portfolio = make(map[string]int64, len(a.Portfolio))
			for k, v := range a.Portfolio {
				av.Portfolio[k] = v
			}
		}
		for _, m := range a.Inbox {
			av.Inbox = append(av.Inbox, snapshot.MessageV1{From: m.From, Text: m.Text, Turn: m.Turn})
		}
		if len(a.RateWindows) > 0 {
			av.RateWindows = make(map[string]snapshot.RateWindowV1, len(a.RateWindows))
			for k, v := range a.RateWindows {
				av.RateWindows[k] = snapshot.RateWindowV1{StartTurn: v.StartTurn, Count: v.Count}
			}
		}
		snap.Actors = append(snap.Actors, av)
	}

	for _, id := range sortedKeys(s.Markets) {
		m := s.Markets[id]
		snap.Markets = append(snap.Markets, snapshot.MarketV1{
			ID:      m.ID,
			Price:   m.Price,
			History: append([]int64(nil), m.History...),
		})
	}

	for _, id := range sortedKeys(s.Holdings) {
		h := s.Holdings[id]
		snap.Holdings = append(snap.Holdings, snapshot.HoldingV1{
			PropertyID:   h.PropertyID,
			OwnerID:      h.OwnerID,
			BoughtTurn:   h.BoughtTurn,
			LastRentTurn: h.LastRentTurn,
		})
	}

	for _, id := range sortedKeys(s.Requests) {
		r := s.Requests[id]
		snap.Requests = append(snap.Requests, snapshot.RequestV1{
			ID:            r.ID,
			ActorID:       r.ActorID,
			Kind:          r.Kind,
			Amount:        r.Amount,
			Note:          r.Note,
			SubmittedTurn: r.SubmittedTurn,
		})
	}

	for _, id := range sortedKeys(s.Events) {
		e := s.Events[id]
		snap.Events = append(snap.Events, snapshot.EventV1{
			ID:         e.ID,
			TemplateID: e.TemplateID,
			StartTurn:  e.StartTurn,
			EndTurn:    e.EndTurn,
		})
	}

	for _, n := range s.News {
		snap.News = append(snap.News, snapshot.NewsV1{Turn: n.Turn, Headline: n.Headline, Body: n.Body})
	}

	if len(s.Settings) > 0 {
		snap.Settings = make(map[string]string, len(s.Settings))
		for k, v := range s.Settings {
			snap.Settings[k] = v
		}
	}
	if len(s.Processed) > 0 {
		snap.Processed = make([]string, 0, len(s.Processed))
		for t := range s.Processed {
			snap.Processed = append(snap.Processed, t)
		}
		sort.Strings(snap.Processed)
	}

	return snap
}

func sortedKeys[V any](m map[string]*V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
