package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	if d.ProtocolVersion != "1.0" {
		t.Fatalf("protocol version = %s", d.ProtocolVersion)
	}
	if d.TurnCooldownMS != 30_000 || d.SnapshotEveryTurns != 10 {
		t.Fatalf("scheduler defaults = %+v", d)
	}
	if d.RateLimits.GambleMax != 10 || d.RateLimits.MessageMax != 20 {
		t.Fatalf("rate limits = %+v", d.RateLimits)
	}
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	body := `
turn_cooldown_ms: 5000
starter_cash: 2500
rate_limits:
  gamble_window_turns: 2
  gamble_max: 3
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.TurnCooldownMS != 5000 || got.StarterCash != 2500 {
		t.Fatalf("overrides not applied: %+v", got)
	}
	if got.RateLimits.GambleMax != 3 || got.RateLimits.GambleWindowTurns != 2 {
		t.Fatalf("rate limits = %+v", got.RateLimits)
	}
	// Untouched keys keep their defaults.
	if got.InterestPermille != 15 || got.MaxNews != 200 {
		t.Fatalf("defaults lost: %+v", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	got, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("err = %v", err)
	}
	// Defaults still come back so callers can fall through.
	if got.TurnCooldownMS != Defaults().TurnCooldownMS {
		t.Fatalf("got = %+v", got)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("turn_cooldown_ms: [nope"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("malformed yaml accepted")
	}
}
