package world

// The idempotency ledger lives inside WorldState so it shares every
// commit's atomicity and is captured by snapshots. Tokens are opaque
// caller-supplied strings and are never removed.

func tokenSeen(s *WorldState, token string) bool {
	_, ok := s.Processed[token]
	return ok
}

func rememberToken(s *WorldState, token string) {
	s.Processed[token] = struct{}{}
}
