package world

import (
	"strconv"

	"capitolia.gg/internal/protocol"
)

// Resale recovers 80% of the catalog price unless overridden by the
// resale_permille setting.
func resalePermille(s *WorldState) int64 {
	if v, ok := s.Settings["resale_permille"]; ok && v != "" {
		if p, err := strconv.ParseInt(v, 10, 64); err == nil && p >= 0 && p <= 1000 {
			return p
		}
	}
	return 800
}

func reduceBuyProperty(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	a := s.Actors[env.ActorID]
	if a == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "actor not found")
	}
	propID := payloadString(env.Payload, "property_id")
	if propID == "" {
		return nil, nil, reject(protocol.ErrBadRequest, "missing property_id")
	}
	def, ok := w.cats.Properties.ByID[propID]
	if !ok {
		return nil, nil, reject(protocol.ErrInvalidTarget, "unknown property %s", propID)
	}
	if cur := s.Holdings[propID]; cur != nil {
		return nil, nil, reject(protocol.ErrConflict, "property %s already owned by %s", propID, cur.OwnerID)
	}
	if a.Cash < def.Price {
		return nil, nil, reject(protocol.ErrNoResource, "insufficient cash: have %d, need %d", a.Cash, def.Price)
	}
	a.Cash -= def.Price
	s.Holdings[propID] = &Holding{
		PropertyID:   propID,
		OwnerID:      a.ID,
		BoughtTurn:   s.Turn,
		LastRentTurn: s.Turn,
	}
	w.addNews(s, def.Name+" sold", a.Name+" bought "+def.Name)

	result := map[string]any{"property_id": propID, "cash": a.Cash}
	draft := &ChangeDraft{Kind: "PROPERTY_BOUGHT", Payload: map[string]any{
		"actor_id": a.ID, "property_id": propID, "price": def.Price,
	}}
	return result, draft, nil
}

func reduceSellProperty(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	a := s.Actors[env.ActorID]
	if a == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "actor not found")
	}
	propID := payloadString(env.Payload, "property_id")
	if propID == "" {
		return nil, nil, reject(protocol.ErrBadRequest, "missing property_id")
	}
	h := s.Holdings[propID]
	if h == nil || h.OwnerID != a.ID {
		return nil, nil, reject(protocol.ErrNoPermission, "not the owner of %s", propID)
	}
	def, ok := w.cats.Properties.ByID[propID]
	if !ok {
		return nil, nil, reject(protocol.ErrInvalidTarget, "unknown property %s", propID)
	}
	refund := def.Price * resalePermille(s) / 1000
	a.Cash += refund
	delete(s.Holdings, propID)

	result := map[string]any{"property_id": propID, "refund": refund, "cash": a.Cash}
	draft := &ChangeDraft{Kind: "PROPERTY_SOLD", Payload: map[string]any{
		"actor_id": a.ID, "property_id": propID, "refund": refund,
	}}
	return result, draft, nil
}

func reduceCollectRent(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	a := s.Actors[env.ActorID]
	if a == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "actor not found")
	}
	propID := payloadString(env.Payload, "property_id")
	if propID == "" {
		return nil, nil, reject(protocol.ErrBadRequest, "missing property_id")
	}
	h := s.Holdings[propID]
	if h == nil || h.OwnerID != a.ID {
		return nil, nil, reject(protocol.ErrNoPermission, "not the owner of %s", propID)
	}
	def, ok := w.cats.Properties.ByID[propID]
	if !ok {
		return nil, nil, reject(protocol.ErrInvalidTarget, "unknown property %s", propID)
	}
	if s.Turn <= h.LastRentTurn {
		return nil, nil, reject(protocol.ErrConflict, "no rent due yet")
	}
	due := int64(s.Turn-h.LastRentTurn) * def.RentPerTurn
	if due <= 0 {
		return nil, nil, reject(protocol.ErrConflict, "no rent due yet")
	}
	h.LastRentTurn = s.Turn
	a.Cash += due

	result := map[string]any{"property_id": propID, "rent": due, "cash": a.Cash}
	draft := &ChangeDraft{Kind: "RENT_COLLECTED", Payload: map[string]any{
		"actor_id": a.ID, "property_id": propID, "rent": due,
	}}
	return result, draft, nil
}
