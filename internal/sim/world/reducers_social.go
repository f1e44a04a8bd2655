package world

import "capitolia.gg/internal/protocol"

const messageRateKey = "MESSAGE"

const maxTextLen = 500

func reduceSendMessage(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	a := s.Actors[env.ActorID]
	if a == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "actor not found")
	}
	toID := payloadString(env.Payload, "to")
	text := payloadString(env.Payload, "text")
	if toID == "" || text == "" {
		return nil, nil, reject(protocol.ErrBadRequest, "missing to or text")
	}
	if len(text) > maxTextLen {
		return nil, nil, reject(protocol.ErrBadRequest, "text too long")
	}
	to := s.Actors[toID]
	if to == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "target not found")
	}
	rl := w.cfg.RateLimits
	if !a.rateAllow(messageRateKey, s.Turn, rl.MessageWindowTurns, rl.MessageMax) {
		return nil, nil, reject(protocol.ErrRateLimit, "message limit reached, wait a few turns")
	}
	w.pushInbox(to, Message{From: a.ID, Text: text, Turn: s.Turn})

	result := map[string]any{"to": to.ID}
	draft := &ChangeDraft{Kind: "MESSAGE_SENT", Payload: map[string]any{
		"from": a.ID, "to": to.ID,
	}}
	return result, draft, nil
}

func reducePostNews(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	a := s.Actors[env.ActorID]
	if a == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "actor not found")
	}
	headline := payloadString(env.Payload, "headline")
	if headline == "" {
		return nil, nil, reject(protocol.ErrBadRequest, "missing headline")
	}
	body := payloadString(env.Payload, "body")
	if len(headline) > maxTextLen || len(body) > maxTextLen {
		return nil, nil, reject(protocol.ErrBadRequest, "text too long")
	}
	rl := w.cfg.RateLimits
	if !a.rateAllow(messageRateKey, s.Turn, rl.MessageWindowTurns, rl.MessageMax) {
		return nil, nil, reject(protocol.ErrRateLimit, "message limit reached, wait a few turns")
	}
	w.addNews(s, headline, body)

	result := map[string]any{"turn": s.Turn}
	draft := &ChangeDraft{Kind: "NEWS_POSTED", Payload: map[string]any{
		"actor_id": a.ID, "headline": headline,
	}}
	return result, draft, nil
}

func reduceGiftCash(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	a := s.Actors[env.ActorID]
	if a == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "actor not found")
	}
	toID := payloadString(env.Payload, "to")
	if toID == "" {
		return nil, nil, reject(protocol.ErrBadRequest, "missing to")
	}
	if toID == a.ID {
		return nil, nil, reject(protocol.ErrBadRequest, "cannot gift to self")
	}
	to := s.Actors[toID]
	if to == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "target not found")
	}
	if env.Amount <= 0 {
		return nil, nil, reject(protocol.ErrBadRequest, "amount must be positive")
	}
	if a.Cash < env.Amount {
		return nil, nil, reject(protocol.ErrNoResource, "insufficient cash: have %d, need %d", a.Cash, env.Amount)
	}
	a.Cash -= env.Amount
	to.Cash += env.Amount
	w.pushInbox(to, Message{From: a.ID, Text: "gift received", Turn: s.Turn})

	result := map[string]any{"cash": a.Cash}
	draft := &ChangeDraft{Kind: "GIFT_SENT", Payload: map[string]any{
		"from": a.ID, "to": to.ID, "amount": env.Amount,
	}}
	return result, draft, nil
}
