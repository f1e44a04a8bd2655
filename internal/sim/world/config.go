package world

import "time"

type Config struct {
	ID   string
	Seed int64

	// TurnEvery drives the internal turn ticker; zero disables it (turns
	// then only advance via AdvanceTurn).
	TurnEvery time.Duration
	// TurnCooldown is the minimum gap between successful turn advances.
	TurnCooldown time.Duration

	SnapshotEveryTurns int

	InterestPermille   int64
	EventSpawnPermille int64

	MaxNews       int
	MaxInbox      int
	ChangeRing    int
	SubscriberBuf int
	PriceHistory  int

	StarterCash int64
	StarterBank int64

	RateLimits RateLimitConfig
}

type RateLimitConfig struct {
	MessageWindowTurns int
	MessageMax         int
	GambleWindowTurns  int
	GambleMax          int
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.TurnCooldown <= 0 {
		cfg.TurnCooldown = 30 * time.Second
	}
	if cfg.MaxNews <= 0 {
		cfg.MaxNews = 200
	}
	if cfg.MaxInbox <= 0 {
		cfg.MaxInbox = 100
	}
	if cfg.ChangeRing <= 0 {
		cfg.ChangeRing = 4096
	}
	if cfg.SubscriberBuf <= 0 {
		cfg.SubscriberBuf = 64
	}
	if cfg.PriceHistory <= 0 {
		cfg.PriceHistory = 96
	}
	return cfg
}
