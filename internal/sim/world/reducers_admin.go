package world

import (
	"sort"

	"capitolia.gg/internal/protocol"
)

// Admin reducers run without an owning actor; env.ActorID may reference a
// target instead of the caller.

func reduceGrantCashAll(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	if env.Amount <= 0 {
		return nil, nil, reject(protocol.ErrBadRequest, "amount must be positive")
	}
	ids := make([]string, 0, len(s.Actors))
	for id := range s.Actors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s.Actors[id].Cash += env.Amount
	}
	w.addNews(s, "Stimulus issued", "every citizen received cash")

	result := map[string]any{"granted": env.Amount, "actors": len(ids)}
	draft := &ChangeDraft{Kind: "CASH_GRANTED_ALL", Payload: map[string]any{
		"amount": env.Amount, "actors": len(ids),
	}}
	return result, draft, nil
}

func reduceResetActor(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	target := payloadString(env.Payload, "target")
	if target == "" {
		target = env.ActorID
	}
	a := s.Actors[target]
	if a == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "actor not found")
	}
	a.Cash = w.cfg.StarterCash
	a.Bank = w.cfg.StarterBank
	a.Debt = 0
	a.JobID = ""
	a.HiredTurn = 0
	a.LastShiftTurn = 0
	a.Reputation = 0
	a.Portfolio = nil
	a.Inbox = nil
	a.RateWindows = nil
	for id, h := range s.Holdings {
		if h.OwnerID == a.ID {
			delete(s.Holdings, id)
		}
	}

	result := map[string]any{"actor_id": a.ID, "cash": a.Cash, "bank": a.Bank}
	draft := &ChangeDraft{Kind: "ACTOR_RESET", Payload: map[string]any{
		"actor_id": a.ID,
	}}
	return result, draft, nil
}

func reduceSetSetting(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	key := payloadString(env.Payload, "key")
	if key == "" {
		return nil, nil, reject(protocol.ErrBadRequest, "missing key")
	}
	value := payloadString(env.Payload, "value")
	if value == "" {
		delete(s.Settings, key)
	} else {
		s.Settings[key] = value
	}

	result := map[string]any{"key": key, "value": value}
	draft := &ChangeDraft{Kind: "SETTING_CHANGED", Payload: map[string]any{
		"key": key,
	}}
	return result, draft, nil
}
