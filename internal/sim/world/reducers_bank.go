package world

import (
	"strconv"

	"capitolia.gg/internal/protocol"
)

func reduceDeposit(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	a := s.Actors[env.ActorID]
	if a == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "actor not found")
	}
	if env.Amount <= 0 {
		return nil, nil, reject(protocol.ErrBadRequest, "amount must be positive")
	}
	if a.Cash < env.Amount {
		return nil, nil, reject(protocol.ErrNoResource, "insufficient cash: have %d, need %d", a.Cash, env.Amount)
	}
	a.Cash -= env.Amount
	a.Bank += env.Amount

	result := map[string]any{"cash": a.Cash, "bank": a.Bank}
	draft := &ChangeDraft{Kind: "BALANCE_CHANGED", Payload: map[string]any{
		"actor_id": a.ID, "op": KindDeposit, "amount": env.Amount, "bank": a.Bank,
	}}
	return result, draft, nil
}

func reduceWithdraw(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	a := s.Actors[env.ActorID]
	if a == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "actor not found")
	}
	if env.Amount <= 0 {
		return nil, nil, reject(protocol.ErrBadRequest, "amount must be positive")
	}
	if a.Bank < env.Amount {
		return nil, nil, reject(protocol.ErrNoResource, "insufficient balance: have %d, need %d", a.Bank, env.Amount)
	}
	a.Bank -= env.Amount
	a.Cash += env.Amount

	result := map[string]any{"cash": a.Cash, "bank": a.Bank}
	draft := &ChangeDraft{Kind: "BALANCE_CHANGED", Payload: map[string]any{
		"actor_id": a.ID, "op": KindWithdraw, "amount": env.Amount, "bank": a.Bank,
	}}
	return result, draft, nil
}

func reduceTransfer(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	a := s.Actors[env.ActorID]
	if a == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "actor not found")
	}
	toID := payloadString(env.Payload, "to")
	if toID == "" {
		return nil, nil, reject(protocol.ErrBadRequest, "missing to")
	}
	if toID == a.ID {
		return nil, nil, reject(protocol.ErrBadRequest, "cannot transfer to self")
	}
	to := s.Actors[toID]
	if to == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "target not found")
	}
	if env.Amount <= 0 {
		return nil, nil, reject(protocol.ErrBadRequest, "amount must be positive")
	}
	if a.Bank < env.Amount {
		return nil, nil, reject(protocol.ErrNoResource, "insufficient balance: have %d, need %d", a.Bank, env.Amount)
	}
	a.Bank -= env.Amount
	to.Bank += env.Amount
	w.pushInbox(to, Message{From: a.ID, Text: "transfer received", Turn: s.Turn})

	result := map[string]any{"bank": a.Bank}
	draft := &ChangeDraft{Kind: "TRANSFER", Payload: map[string]any{
		"from": a.ID, "to": to.ID, "amount": env.Amount,
	}}
	return result, draft, nil
}

// maxLoanFor derives the loan ceiling from the actor's standing. The base
// ceiling is overridable via the max_loan setting.
func maxLoanFor(s *WorldState, a *Actor) int64 {
	base := int64(5_000)
	if v, ok := s.Settings["max_loan"]; ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
			base = parsed
		}
	}
	return base + a.Reputation*100
}

func reduceTakeLoan(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	a := s.Actors[env.ActorID]
	if a == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "actor not found")
	}
	if env.Amount <= 0 {
		return nil, nil, reject(protocol.ErrBadRequest, "amount must be positive")
	}
	limit := maxLoanFor(s, a)
	if a.Debt+env.Amount > limit {
		return nil, nil, reject(protocol.ErrNoPermission, "loan limit exceeded: limit %d, outstanding %d", limit, a.Debt)
	}
	a.Debt += env.Amount
	a.Cash += env.Amount

	result := map[string]any{"cash": a.Cash, "debt": a.Debt}
	draft := &ChangeDraft{Kind: "BALANCE_CHANGED", Payload: map[string]any{
		"actor_id": a.ID, "op": KindTakeLoan, "amount": env.Amount, "debt": a.Debt,
	}}
	return result, draft, nil
}

func reduceRepayLoan(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	a := s.Actors[env.ActorID]
	if a == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "actor not found")
	}
	if env.Amount <= 0 {
		return nil, nil, reject(protocol.ErrBadRequest, "amount must be positive")
	}
	if a.Debt == 0 {
		return nil, nil, reject(protocol.ErrConflict, "no outstanding debt")
	}
	pay := env.Amount
	if pay > a.Debt {
		pay = a.Debt
	}
	if a.Cash < pay {
		return nil, nil, reject(protocol.ErrNoResource, "insufficient cash: have %d, need %d", a.Cash, pay)
	}
	a.Cash -= pay
	a.Debt -= pay

	result := map[string]any{"cash": a.Cash, "debt": a.Debt}
	draft := &ChangeDraft{Kind: "BALANCE_CHANGED", Payload: map[string]any{
		"actor_id": a.ID, "op": KindRepayLoan, "amount": pay, "debt": a.Debt,
	}}
	return result, draft, nil
}
