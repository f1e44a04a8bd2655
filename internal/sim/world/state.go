package world

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// WorldState is the single canonical aggregate. It is only ever mutated by
// a committed mutator running on the world loop goroutine; everything else
// sees immutable published values.
type WorldState struct {
	Turn uint64 `json:"turn"`

	// RandNonce feeds reducer-level randomness (gambling) so that rolls are
	// a pure function of state, keeping replay sound.
	RandNonce uint64 `json:"rand_nonce"`

	Actors   map[string]*Actor          `json:"actors"`
	Markets  map[string]*Market         `json:"markets"`
	Holdings map[string]*Holding        `json:"holdings"`
	Requests map[string]*PendingRequest `json:"requests"`
	Events   map[string]*ActiveEvent    `json:"events"`
	News     []NewsItem                 `json:"news"`
	Settings map[string]string          `json:"settings"`

	// Processed is the idempotency ledger. It only grows: a token present
	// here means its action's effects were applied exactly once.
	Processed map[string]struct{} `json:"processed"`

	Counters Counters `json:"counters"`
}

type Counters struct {
	NextActor   uint64 `json:"next_actor"`
	NextRequest uint64 `json:"next_request"`
	NextEvent   uint64 `json:"next_event"`
}

type Actor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ResumeToken string `json:"resume_token,omitempty"`
	CreatedTurn uint64 `json:"created_turn"`

	Cash int64 `json:"cash"`
	Bank int64 `json:"bank"`
	Debt int64 `json:"debt"`

	JobID         string `json:"job_id,omitempty"`
	HiredTurn     uint64 `json:"hired_turn,omitempty"`
	LastShiftTurn uint64 `json:"last_shift_turn,omitempty"`
	Reputation    int64  `json:"reputation"`

	Portfolio map[string]int64 `json:"portfolio,omitempty"`

	Inbox       []Message              `json:"inbox,omitempty"`
	RateWindows map[string]*RateWindow `json:"rate_windows,omitempty"`
}

type Message struct {
	From string `json:"from"`
	Text string `json:"text"`
	Turn uint64 `json:"turn"`
}

type RateWindow struct {
	StartTurn uint64 `json:"start_turn"`
	Count     int    `json:"count"`
}

// Market carries the mutable side of a tradable instrument; the static
// definition (name, floor, walk bounds) lives in the instrument catalog.
type Market struct {
	ID      string  `json:"id"`
	Price   int64   `json:"price"`
	History []int64 `json:"history,omitempty"`
}

// Holding records ownership of one catalog property. Properties are scarce:
// at most one holding exists per property id.
type Holding struct {
	PropertyID   string `json:"property_id"`
	OwnerID      string `json:"owner_id"`
	BoughtTurn   uint64 `json:"bought_turn"`
	LastRentTurn uint64 `json:"last_rent_turn"`
}

// PendingRequest is a submitted action that needs privileged approval
// before it takes effect (resolved via RESOLVE_REQUEST).
type PendingRequest struct {
	ID            string `json:"id"`
	ActorID       string `json:"actor_id"`
	Kind          string `json:"kind"`
	Amount        int64  `json:"amount,omitempty"`
	Note          string `json:"note,omitempty"`
	SubmittedTurn uint64 `json:"submitted_turn"`
}

// ActiveEvent is a time-boxed world effect spawned by the turn scheduler.
type ActiveEvent struct {
	ID         string `json:"id"`
	TemplateID string `json:"template_id"`
	StartTurn  uint64 `json:"start_turn"`
	EndTurn    uint64 `json:"end_turn"`
}

type NewsItem struct {
	Turn     uint64 `json:"turn"`
	Headline string `json:"headline"`
	Body     string `json:"body,omitempty"`
}

func newWorldState() *WorldState {
	return &WorldState{
		Actors:    map[string]*Actor{},
		Markets:   map[string]*Market{},
		Holdings:  map[string]*Holding{},
		Requests:  map[string]*PendingRequest{},
		Events:    map[string]*ActiveEvent{},
		Settings:  map[string]string{},
		Processed: map[string]struct{}{},
	}
}

// Clone deep-copies the aggregate. Commits mutate a clone, so a mutator
// that fails (or panics) can never leave a partially-updated canonical
// value behind.
func (s *WorldState) Clone() *WorldState {
	n := &WorldState{
		Turn:      s.Turn,
		RandNonce: s.RandNonce,
		Actors:    make(map[string]*Actor, len(s.Actors)),
		Markets:   make(map[string]*Market, len(s.Markets)),
		Holdings:  make(map[string]*Holding, len(s.Holdings)),
		Requests:  make(map[string]*PendingRequest, len(s.Requests)),
		Events:    make(map[string]*ActiveEvent, len(s.Events)),
		News:      append([]NewsItem(nil), s.News...),
		Settings:  make(map[string]string, len(s.Settings)),
		Processed: make(map[string]struct{}, len(s.Processed)),
		Counters:  s.Counters,
	}
	for id, a := range s.Actors {
		n.Actors[id] = a.clone()
	}
	for id, m := range s.Markets {
		cp := *m
		cp.History = append([]int64(nil), m.History...)
		n.Markets[id] = &cp
	}
	for id, h := range s.Holdings {
		cp := *h
		n.Holdings[id] = &cp
	}
	for id, r := range s.Requests {
		cp := *r
		n.Requests[id] = &cp
	}
	for id, e := range s.Events {
		cp := *e
		n.Events[id] = &cp
	}
	for k, v := range s.Settings {
		n.Settings[k] = v
	}
	for t := range s.Processed {
		n.Processed[t] = struct{}{}
	}
	return n
}

func (a *Actor) clone() *Actor {
	cp := *a
	if a.Portfolio != nil {
		cp.Portfolio = make(map[string]int64, len(a.Portfolio))
		for k, v := range a.Portfolio {
			cp.Portfolio[k] = v
		}
	}
	cp.Inbox = append([]Message(nil), a.Inbox...)
	if a.RateWindows != nil {
		cp.RateWindows = make(map[string]*RateWindow, len(a.RateWindows))
		for k, v := range a.RateWindows {
			w := *v
			cp.RateWindows[k] = &w
		}
	}
	return &cp
}

// Digest fingerprints the aggregate. encoding/json sorts map keys, so the
// digest is stable for equal states regardless of insertion order. Resume
// tokens are per-session secrets, not game state, and are excluded so that
// equal game states fingerprint identically across runs.
func (s *WorldState) Digest() string {
	cp := s.Clone()
	for _, a := range cp.Actors {
		a.ResumeToken = ""
	}
	b, err := json.Marshal(cp)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// rateAllow is the shared per-actor throttle used by chatty reducers.
// Windows are measured in turns, mirroring the turn-granular clock.
func (a *Actor) rateAllow(key string, turn uint64, windowTurns, max int) bool {
	if windowTurns <= 0 || max <= 0 {
		return true
	}
	if a.RateWindows == nil {
		a.RateWindows = map[string]*RateWindow{}
	}
	w := a.RateWindows[key]
	if w == nil || turn >= w.StartTurn+uint64(windowTurns) {
		a.RateWindows[key] = &RateWindow{StartTurn: turn, Count: 1}
		return true
	}
	if w.Count >= max {
		return false
	}
	w.Count++
	return true
}
