package world

import "capitolia.gg/internal/protocol"

func reduceApplyJob(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	a := s.Actors[env.ActorID]
	if a == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "actor not found")
	}
	jobID := payloadString(env.Payload, "job_id")
	if jobID == "" {
		return nil, nil, reject(protocol.ErrBadRequest, "missing job_id")
	}
	def, ok := w.cats.Jobs.ByID[jobID]
	if !ok {
		return nil, nil, reject(protocol.ErrInvalidTarget, "unknown job %s", jobID)
	}
	if a.JobID == jobID {
		return nil, nil, reject(protocol.ErrConflict, "already employed as %s", jobID)
	}
	if a.Reputation < def.MinReputation {
		return nil, nil, reject(protocol.ErrNoPermission, "reputation %d below required %d", a.Reputation, def.MinReputation)
	}
	a.JobID = jobID
	a.HiredTurn = s.Turn

	result := map[string]any{"job_id": jobID, "salary": def.Salary}
	draft := &ChangeDraft{Kind: "JOB_CHANGED", Payload: map[string]any{
		"actor_id": a.ID, "job_id": jobID,
	}}
	return result, draft, nil
}

func reduceQuitJob(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	a := s.Actors[env.ActorID]
	if a == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "actor not found")
	}
	if a.JobID == "" {
		return nil, nil, reject(protocol.ErrConflict, "not employed")
	}
	prev := a.JobID
	a.JobID = ""
	a.HiredTurn = 0

	result := map[string]any{"quit": prev}
	draft := &ChangeDraft{Kind: "JOB_CHANGED", Payload: map[string]any{
		"actor_id": a.ID, "job_id": "",
	}}
	return result, draft, nil
}

func reduceWorkShift(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	a := s.Actors[env.ActorID]
	if a == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "actor not found")
	}
	if a.JobID == "" {
		return nil, nil, reject(protocol.ErrConflict, "not employed")
	}
	def, ok := w.cats.Jobs.ByID[a.JobID]
	if !ok {
		// Job removed from the catalog since hire. Rejections discard the
		// clone, so the stale JobID stays until the actor quits.
		return nil, nil, reject(protocol.ErrConflict, "job no longer exists")
	}
	// LastShiftTurn is 1-based (0 = never worked) so a shift at turn 0 still
	// arms the cooldown.
	if a.LastShiftTurn != 0 && s.Turn+1 < a.LastShiftTurn+def.ShiftCooldown {
		return nil, nil, reject(protocol.ErrRateLimit, "shift on cooldown until turn %d", a.LastShiftTurn+def.ShiftCooldown-1)
	}
	a.LastShiftTurn = s.Turn + 1
	a.Cash += def.ShiftPay
	a.Reputation++

	result := map[string]any{"pay": def.ShiftPay, "cash": a.Cash, "reputation": a.Reputation}
	draft := &ChangeDraft{Kind: "SHIFT_WORKED", Payload: map[string]any{
		"actor_id": a.ID, "job_id": a.JobID, "pay": def.ShiftPay,
	}}
	return result, draft, nil
}
