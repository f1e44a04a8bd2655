package world

import (
	"fmt"

	"capitolia.gg/internal/protocol"
)

const gambleRateKey = "GAMBLE"

func gambleStake(s *WorldState, a *Actor, env ActionEnvelope, w *World) (int64, error) {
	if env.Amount <= 0 {
		return 0, reject(protocol.ErrBadRequest, "amount must be positive")
	}
	if a.Cash < env.Amount {
		return 0, reject(protocol.ErrNoResource, "insufficient cash: have %d, need %d", a.Cash, env.Amount)
	}
	rl := w.cfg.RateLimits
	if !a.rateAllow(gambleRateKey, s.Turn, rl.GambleWindowTurns, rl.GambleMax) {
		return 0, reject(protocol.ErrRateLimit, "gamble limit reached, wait a few turns")
	}
	return env.Amount, nil
}

func gambleDraft(a *Actor, game string, stake, delta int64) *ChangeDraft {
	return &ChangeDraft{Kind: "GAMBLE_RESOLVED", Payload: map[string]any{
		"actor_id": a.ID, "game": game, "stake": stake, "delta": delta,
	}}
}

func reduceCoinflip(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	a := s.Actors[env.ActorID]
	if a == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "actor not found")
	}
	guess := payloadString(env.Payload, "guess")
	if guess != "HEADS" && guess != "TAILS" {
		return nil, nil, reject(protocol.ErrBadRequest, "guess must be HEADS or TAILS")
	}
	stake, err := gambleStake(s, a, env, w)
	if err != nil {
		return nil, nil, err
	}

	landed := "TAILS"
	if rollRand(w.cfg.Seed, s).Intn(2) == 0 {
		landed = "HEADS"
	}
	delta := -stake
	if landed == guess {
		delta = stake
	}
	a.Cash += delta

	result := map[string]any{"landed": landed, "delta": delta, "cash": a.Cash}
	return result, gambleDraft(a, KindCoinflip, stake, delta), nil
}

func reduceDice(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	a := s.Actors[env.ActorID]
	if a == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "actor not found")
	}
	guess, ok := payloadInt(env.Payload, "guess")
	if !ok || guess < 1 || guess > 6 {
		return nil, nil, reject(protocol.ErrBadRequest, "guess must be 1..6")
	}
	stake, err := gambleStake(s, a, env, w)
	if err != nil {
		return nil, nil, err
	}

	rolled := int64(rollRand(w.cfg.Seed, s).Intn(6)) + 1
	delta := -stake
	if rolled == guess {
		// 4x profit on a 1-in-6 hit keeps the house edge.
		delta = stake * 4
	}
	a.Cash += delta

	result := map[string]any{"rolled": rolled, "delta": delta, "cash": a.Cash}
	return result, gambleDraft(a, KindDice, stake, delta), nil
}

var slotSymbols = []string{"CHERRY", "BELL", "STAR", "SEVEN"}

func reduceSlots(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error) {
	a := s.Actors[env.ActorID]
	if a == nil {
		return nil, nil, reject(protocol.ErrInvalidTarget, "actor not found")
	}
	stake, err := gambleStake(s, a, env, w)
	if err != nil {
		return nil, nil, err
	}

	rng := rollRand(w.cfg.Seed, s)
	reels := make([]string, 3)
	for i := range reels {
		reels[i] = slotSymbols[rng.Intn(len(slotSymbols))]
	}
	delta := -stake
	switch {
	case reels[0] == reels[1] && reels[1] == reels[2]:
		delta = stake * 10
	case reels[0] == reels[1] || reels[1] == reels[2] || reels[0] == reels[2]:
		delta = stake
	}
	a.Cash += delta

	if delta == stake*10 {
		w.addNews(s, "Jackpot at the slots",
			fmt.Sprintf("%s hit %s %s %s for %d", a.Name, reels[0], reels[1], reels[2], delta))
	}

	result := map[string]any{"reels": reels, "delta": delta, "cash": a.Cash}
	return result, gambleDraft(a, KindSlots, stake, delta), nil
}
