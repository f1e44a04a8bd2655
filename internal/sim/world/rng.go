package world

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand"
)

// All in-world randomness is derived from the world seed and counters
// carried in the state itself, so replaying the same commits against the
// same starting state reproduces the same rolls.

func mixSeed(parts ...int64) int64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint64(buf[:], uint64(p))
		h.Write(buf[:])
	}
	return int64(h.Sum64())
}

// turnSeed keys turn-scoped randomness (market walks, event spawns).
func turnSeed(seed int64, turn uint64) *rand.Rand {
	return rand.New(rand.NewSource(mixSeed(seed, int64(turn))))
}

// rollRand keys per-action randomness (gamble rolls). Each call bumps the
// nonce so two rolls in the same turn draw from distinct streams.
func rollRand(seed int64, s *WorldState) *rand.Rand {
	s.RandNonce++
	return rand.New(rand.NewSource(mixSeed(seed, int64(s.Turn), int64(s.RandNonce))))
}
