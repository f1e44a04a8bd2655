package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Turn    uint64 `json:"turn"`
}

// StateV1 is the durable form of the world aggregate. The revision of the
// last published change rides along so the change feed stays monotonic
// across restarts.
type StateV1 struct {
	Header Header `json:"header"`

	Seed     int64  `json:"seed"`
	Revision uint64 `json:"revision"`

	RandNonce uint64 `json:"rand_nonce"`

	Actors   []ActorV1   `json:"actors"`
	Markets  []MarketV1  `json:"markets"`
	Holdings []HoldingV1 `json:"holdings"`
	Requests []RequestV1 `json:"requests"`
	Events   []EventV1   `json:"events"`
	News     []NewsV1    `json:"news,omitempty"`

	Settings  map[string]string `json:"settings,omitempty"`
	Processed []string          `json:"processed,omitempty"`

	Counters CountersV1 `json:"counters"`
}

type CountersV1 struct {
	NextActor   uint64 `json:"next_actor"`
	NextRequest uint64 `json:"next_request"`
	NextEvent   uint64 `json:"next_event"`
}

type ActorV1 struct {
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

	Inbox       []MessageV1             `json:"inbox,omitempty"`
	RateWindows map[string]RateWindowV1 `json:"rate_windows,omitempty"`
}

type MessageV1 struct {
	From string `json:"from"`
	Text string `json:"text"`
	Turn uint64 `json:"turn"`
}

type RateWindowV1 struct {
	StartTurn uint64 `json:"start_turn"`
	Count     int    `json:"count"`
}

type MarketV1 struct {
	ID      string  `json:"id"`
	Price   int64   `json:"price"`
	History []int64 `json:"history,omitempty"`
}

type HoldingV1 struct {
	PropertyID   string `json:"property_id"`
	OwnerID      string `json:"owner_id"`
	BoughtTurn   uint64 `json:"bought_turn"`
	LastRentTurn uint64 `json:"last_rent_turn"`
}

type RequestV1 struct {
	ID            string `json:"id"`
	ActorID       string `json:"actor_id"`
	Kind          string `json:"kind"`
	Amount        int64  `json:"amount,omitempty"`
	Note          string `json:"note,omitempty"`
	SubmittedTurn uint64 `json:"submitted_turn"`
}

type EventV1 struct {
	ID         string `json:"id"`
	TemplateID string `json:"template_id"`
	StartTurn  uint64 `json:"start_turn"`
	EndTurn    uint64 `json:"end_turn"`
}

type NewsV1 struct {
	Turn     uint64 `json:"turn"`
	Headline string `json:"headline"`
	Body     string `json:"body,omitempty"`
}

func WriteSnapshot(path string, snap StateV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 256*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (StateV1, error) {
	var snap StateV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line is for quick inspection; gob carries it too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}
