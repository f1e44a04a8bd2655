package world

import (
	"fmt"

	"capitolia.gg/internal/protocol"
)

// Request kinds a player may submit for moderator resolution.
const (
	RequestGrant      = "GRANT"
	RequestNameChange = "NAME_CHANGE"
)

func reduceSubmitRequest(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	a := s.Actors[env.ActorID]
	if a == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "actor not found")
	}
	kind := payloadString(env.Payload, "request_kind")
	switch kind {
	case RequestGrant:
		if env.Amount <= 0 {
			return nil, nil, reject(protocol.ErrBadRequest, "amount must be positive")
		}
	case RequestNameChange:
		if payloadString(env.Payload, "note") == "" {
			return nil, nil, reject(protocol.ErrBadRequest, "missing note")
		}
	default:
		return nil, nil, reject(protocol.ErrBadRequest, "unknown request_kind %q", kind)
	}

	s.Counters.NextRequest++
	id := fmt.Sprintf("R%d", s.Counters.NextRequest)
	s.Requests[id] = &PendingRequest{
		ID:            id,
		ActorID:       a.ID,
		Kind:          kind,
		Amount:        env.Amount,
		Note:          payloadString(env.Payload, "note"),
		SubmittedTurn: s.Turn,
	}

	result := map[string]any{"request_id": id}
	draft := &ChangeDraft{Kind: "REQUEST_SUBMITTED", Payload: map[string]any{
		"request_id": id, "actor_id": a.ID, "request_kind": kind,
	}}
	return result, draft, nil
}

func reduceResolveRequest(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	a := s.Actors[env.ActorID]
	if a == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "actor not found")
	}
	if s.Settings["moderator"] != a.ID {
		return nil, nil, reject(protocol.ErrNoPermission, "not a moderator")
	}
	reqID := payloadString(env.Payload, "request_id")
	if reqID == "" {
		return nil, nil, reject(protocol.ErrBadRequest, "missing request_id")
	}
	req := s.Requests[reqID]
	if req == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "unknown request %s", reqID)
	}
	approve := payloadBool(env.Payload, "approve")

	target := s.Actors[req.ActorID]
	if approve && target == nil {
		// Submitter gone; nothing to grant. Resolve as a denial so the
		// request still leaves the queue.
		approve = false
	}
	if approve {
		switch req.Kind {
		case RequestGrant:
			target.Cash += req.Amount
			w.pushInbox(target, Message{From: a.ID, Text: "grant approved", Turn: s.Turn})
		case RequestNameChange:
			old := target.Name
			target.Name = req.Note
			w.addNews(s, "Name change", old+" is now known as "+target.Name)
		}
	}
	delete(s.Requests, reqID)

	result := map[string]any{"request_id": reqID, "approved": approve}
	draft := &ChangeDraft{Kind: "REQUEST_RESOLVED", Payload: map[string]any{
		"request_id": reqID, "approved": approve, "resolved_by": a.ID,
	}}
	return result, draft, nil
}
