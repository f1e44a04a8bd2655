package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	// Turn scheduler.
	TurnEveryMS        int64 `yaml:"turn_every_ms"`
	TurnCooldownMS     int64 `yaml:"turn_cooldown_ms"`
	SnapshotEveryTurns int   `yaml:"snapshot_every_turns"`

	// World-wide economics applied on each turn.
	InterestPermille   int64 `yaml:"interest_permille"`
	EventSpawnPermille int64 `yaml:"event_spawn_permille"`

	// Bounded buffers.
	MaxNews       int `yaml:"max_news"`
	MaxInbox      int `yaml:"max_inbox"`
	ChangeRing    int `yaml:"change_ring"`
	SubscriberBuf int `yaml:"subscriber_buf"`
	PriceHistory  int `yaml:"price_history"`

	// Per-actor action throttles (window/turns, max per window).
	RateLimits RateLimits `yaml:"rate_limits"`

	// Starter grants for new actors.
	StarterCash int64 `yaml:"starter_cash"`
	StarterBank int64 `yaml:"starter_bank"`
}

type RateLimits struct {
	MessageWindowTurns int `yaml:"message_window_turns"`
	MessageMax         int `yaml:"message_max"`
	GambleWindowTurns  int `yaml:"gamble_window_turns"`
	GambleMax          int `yaml:"gamble_max"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TurnEveryMS:        60_000,
		TurnCooldownMS:     30_000,
		SnapshotEveryTurns: 10,
		InterestPermille:   15,
		EventSpawnPermille: 200,
		MaxNews:            200,
		MaxInbox:           100,
		ChangeRing:         4096,
		SubscriberBuf:      64,
		PriceHistory:       96,
		RateLimits: RateLimits{
			MessageWindowTurns: 1,
			MessageMax:         20,
			GambleWindowTurns:  1,
			GambleMax:          10,
		},
		StarterCash: 1_000,
		StarterBank: 0,
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}
