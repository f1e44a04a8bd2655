package world

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"

	"capitolia.gg/internal/protocol"
)

// JoinResult identifies the actor a session now speaks for.
type JoinResult struct {
	ActorID     string
	Name        string
	ResumeToken string
	Turn        uint64
}

func newResumeToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return "resume_" + hex.EncodeToString(b)
}

// Join creates a fresh actor with starter balances. The resume token is
// minted before the commit so the mutator stays deterministic.
func (w *World) Join(ctx context.Context, name string) (JoinResult, error) {
	if name == "" {
		name = "citizen"
	}
	token := newResumeToken()

	var res JoinResult
	_, err := w.Commit(ctx, "join", func(s *WorldState) (*ChangeDraft, error) {
		s.Counters.NextActor++
		id := fmt.Sprintf("A%d", s.Counters.NextActor)
		s.Actors[id] = &Actor{
			ID:          id,
			Name:        name,
			ResumeToken: token,
			CreatedTurn: s.Turn,
			Cash:        w.cfg.StarterCash,
			Bank:        w.cfg.StarterBank,
			Portfolio:   map[string]int64{},
		}
		res = JoinResult{ActorID: id, Name: name, ResumeToken: token, Turn: s.Turn}
		return &ChangeDraft{Kind: "ACTOR_JOINED", Payload: map[string]any{
			"actor_id": id, "name": name,
		}}, nil
	})
	if err != nil {
		return JoinResult{}, err
	}
	return res, nil
}

// Attach resumes an existing actor by resume token and rotates the token,
// so a leaked token stops working after its next use.
func (w *World) Attach(ctx context.Context, token string) (JoinResult, error) {
	if token == "" {
		return JoinResult{}, reject(protocol.ErrBadRequest, "missing resume token")
	}
	next := newResumeToken()

	var res JoinResult
	_, err := w.Commit(ctx, "attach", func(s *WorldState) (*ChangeDraft, error) {
		ids := make([]string, 0, len(s.Actors))
		for id := range s.Actors {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			a := s.Actors[id]
			if a.ResumeToken == token {
				a.ResumeToken = next
				res = JoinResult{ActorID: a.ID, Name: a.Name, ResumeToken: next, Turn: s.Turn}
				return nil, nil
			}
		}
		return nil, reject(protocol.ErrNoPermission, "unknown resume token")
	})
	if err != nil {
		return JoinResult{}, err
	}
	return res, nil
}
