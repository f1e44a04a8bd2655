package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Catalogs hold the pure lookup data reducers consult: job tables, the
// property register, tradable instruments and world-event templates. They
// are loaded once at startup and never mutated afterwards.
type Catalogs struct {
	Jobs        JobCatalog
	Properties  PropertyCatalog
	Instruments InstrumentCatalog
	Events      EventCatalog
}

type JobCatalog struct {
	ByID   map[string]JobDef
	IDs    []string
	Digest string
}

type JobDef struct {
	ID            string `yaml:"id"`
	Title         string `yaml:"title"`
	Salary        int64  `yaml:"salary"`
	ShiftPay      int64  `yaml:"shift_pay"`
	ShiftCooldown uint64 `yaml:"shift_cooldown_turns"`
	MinReputation int64  `yaml:"min_reputation,omitempty"`
}

type PropertyCatalog struct {
	ByID   map[string]PropertyDef
	IDs    []string
	Digest string
}

type PropertyDef struct {
	ID          string `yaml:"id"`
	Kind        string `yaml:"kind"` // "LAND","HOUSE","SHOP"
	Name        string `yaml:"name"`
	Price       int64  `yaml:"price"`
	RentPerTurn int64  `yaml:"rent_per_turn"`
}

type InstrumentCatalog struct {
	ByID   map[string]InstrumentDef
	IDs    []string
	Digest string
}

type InstrumentDef struct {
	ID         string `yaml:"id"`
	Kind       string `yaml:"kind"` // "STOCK","COIN"
	Name       string `yaml:"name"`
	StartPrice int64  `yaml:"start_price"`
	Floor      int64  `yaml:"floor"`
	RoundStep  int64  `yaml:"round_step"`
	// MaxWalkPermille bounds the per-turn random walk, e.g. 80 = +-8%.
	MaxWalkPermille int64 `yaml:"max_walk_permille"`
}

type EventCatalog struct {
	ByID   map[string]EventTemplate
	IDs    []string
	Digest string
}

// World-event effects recognized by the turn scheduler.
const (
	EffectMarketBoom  = "MARKET_BOOM"
	EffectMarketCrash = "MARKET_CRASH"
	EffectTaxHoliday  = "TAX_HOLIDAY"
	EffectCrimeWave   = "CRIME_WAVE"
)

type EventTemplate struct {
	ID            string `yaml:"id"`
	Title         string `yaml:"title"`
	Summary       string `yaml:"summary"`
	DurationTurns uint64 `yaml:"duration_turns"`
	BaseWeight    int64  `yaml:"base_weight"`
	// Effect names a world-wide modifier applied while the event is live,
	// e.g. "MARKET_BOOM", "MARKET_CRASH", "TAX_HOLIDAY", "CRIME_WAVE".
	Effect            string `yaml:"effect"`
	MagnitudePermille int64  `yaml:"magnitude_permille,omitempty"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadJobs(filepath.Join(configDir, "jobs.yaml"), &c.Jobs); err != nil {
		return nil, err
	}
	if err := loadProperties(filepath.Join(configDir, "properties.yaml"), &c.Properties); err != nil {
		return nil, err
	}
	if err := loadInstruments(filepath.Join(configDir, "instruments.yaml"), &c.Instruments); err != nil {
		return nil, err
	}
	if err := loadEvents(filepath.Join(configDir, "events.yaml"), &c.Events); err != nil {
		return nil, err
	}

	return &c, nil
}

// Digest is a combined fingerprint of all catalogs, reported in WELCOME so
// clients can detect a data change across reconnects.
func (c *Catalogs) Digest() string {
	h := sha256.New()
	for _, d := range []string{c.Jobs.Digest, c.Properties.Digest, c.Instruments.Digest, c.Events.Digest} {
		h.Write([]byte(d))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadJobs(path string, out *JobCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []JobDef
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("jobs.yaml: %w", err)
	}
	out.ByID = make(map[string]JobDef, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("jobs.yaml: job with empty id")
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("jobs.yaml: duplicate id %q", d.ID)
		}
		out.ByID[d.ID] = d
		out.IDs = append(out.IDs, d.ID)
	}
	sort.Strings(out.IDs)
	return nil
}

func loadProperties(path string, out *PropertyCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []PropertyDef
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("properties.yaml: %w", err)
	}
	out.ByID = make(map[string]PropertyDef, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("properties.yaml: property with empty id")
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("properties.yaml: duplicate id %q", d.ID)
		}
		out.ByID[d.ID] = d
		out.IDs = append(out.IDs, d.ID)
	}
	sort.Strings(out.IDs)
	return nil
}

func loadInstruments(path string, out *InstrumentCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []InstrumentDef
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("instruments.yaml: %w", err)
	}
	out.ByID = make(map[string]InstrumentDef, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("instruments.yaml: instrument with empty id")
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("instruments.yaml: duplicate id %q", d.ID)
		}
		if d.StartPrice <= 0 {
			return fmt.Errorf("instruments.yaml: %s: start_price must be positive", d.ID)
		}
		out.ByID[d.ID] = d
		out.IDs = append(out.IDs, d.ID)
	}
	sort.Strings(out.IDs)
	return nil
}

func loadEvents(path string, out *EventCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []EventTemplate
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("events.yaml: %w", err)
	}
	out.ByID = make(map[string]EventTemplate, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("events.yaml: event with empty id")
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("events.yaml: duplicate id %q", d.ID)
		}
		out.ByID[d.ID] = d
		out.IDs = append(out.IDs, d.ID)
	}
	sort.Strings(out.IDs)
	return nil
}
