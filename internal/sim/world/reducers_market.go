package world

import "capitolia.gg/internal/protocol"

func reduceBuyAsset(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	a := s.Actors[env.ActorID]
	if a == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "actor not found")
	}
	instID := payloadString(env.Payload, "instrument_id")
	if instID == "" {
		return nil, nil, reject(protocol.ErrBadRequest, "missing instrument_id")
	}
	m := s.Markets[instID]
	if m == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "unknown instrument %s", instID)
	}
	units := env.Amount
	if units <= 0 {
		return nil, nil, reject(protocol.ErrBadRequest, "amount must be positive")
	}
	cost := m.Price * units
	if a.Cash < cost {
		return nil, nil, reject(protocol.ErrNoResource, "insufficient cash: have %d, need %d", a.Cash, cost)
	}
	a.Cash -= cost
	if a.Portfolio == nil {
		a.Portfolio = map[string]int64{}
	}
	a.Portfolio[instID] += units

	result := map[string]any{
		"instrument_id": instID, "units": units, "price": m.Price,
		"cost": cost, "cash": a.Cash, "held": a.Portfolio[instID],
	}
	draft := &ChangeDraft{Kind: "ASSET_TRADED", Payload: map[string]any{
		"actor_id": a.ID, "instrument_id": instID, "op": KindBuyAsset,
		"units": units, "price": m.Price,
	}}
	return result, draft, nil
}

func reduceSellAsset(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	a := s.Actors[env.ActorID]
	if a == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "actor not found")
	}
	instID := payloadString(env.Payload, "instrument_id")
	if instID == "" {
		return nil, nil, reject(protocol.ErrBadRequest, "missing instrument_id")
	}
	m := s.Markets[instID]
	if m == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "unknown instrument %s", instID)
	}
	units := env.Amount
	if units <= 0 {
		return nil, nil, reject(protocol.ErrBadRequest, "amount must be positive")
	}
	held := a.Portfolio[instID]
	if held < units {
		return nil, nil, reject(protocol.ErrNoResource, "insufficient units: have %d, need %d", held, units)
	}
	proceeds := m.Price * units
	a.Portfolio[instID] -= units
	if a.Portfolio[instID] == 0 {
		delete(a.Portfolio, instID)
	}
	a.Cash += proceeds

	result := map[string]any{
		"instrument_id": instID, "units": units, "price": m.Price,
		"proceeds": proceeds, "cash": a.Cash, "held": a.Portfolio[instID],
	}
	draft := &ChangeDraft{Kind: "ASSET_TRADED", Payload: map[string]any{
		"actor_id": a.ID, "instrument_id": instID, "op": KindSellAsset,
		"units": units, "price": m.Price,
	}}
	return result, draft, nil
}
