package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"capitolia.gg/internal/protocol"
)

// A tiny scripted client for poking at a running server: joins, then
// submits a random action every interval and prints what comes back.
func main() {
	var (
		url      = flag.String("url", "ws://127.0.0.1:8080/v1/ws", "server websocket url")
		name     = flag.String("name", "bot", "actor name")
		resume   = flag.String("resume", "", "resume token (optional)")
		interval = flag.Duration("interval", 2*time.Second, "delay between actions")
		count    = flag.Int("count", 0, "number of actions to send (0 = unlimited)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ActorName:       *name,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 256},
	}
	if *resume != "" {
		hello.Auth = &protocol.HelloAuth{Token: *resume}
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("hello: %v", err)
	}

	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil {
		logger.Fatalf("welcome: %v", err)
	}
	logger.Printf("joined actor=%s turn=%d rev=%d resume=%s",
		welcome.ActorID, welcome.WorldParams.Turn, welcome.WorldParams.Revision, welcome.ResumeToken)

	// Reader: print outcomes and changes.
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				logger.Printf("read: %v", err)
				os.Exit(1)
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			switch base.Type {
			case protocol.TypeOutcome:
				var o protocol.OutcomeMsg
				if json.Unmarshal(msg, &o) == nil {
					logger.Printf("outcome ref=%s status=%s code=%s msg=%s", o.Ref, o.Status, o.Code, o.Message)
				}
			case protocol.TypeChange:
				var c protocol.ChangeMsg
				if json.Unmarshal(msg, &c) == nil {
					logger.Printf("change rev=%d kind=%s", c.Revision, c.Kind)
				}
			}
		}
	}()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	sent := 0
	for *count == 0 || sent < *count {
		act := randomAct(rng)
		act.ActID = uuid.NewString()
		act.IdempotencyToken = uuid.NewString()
		if err := conn.WriteJSON(act); err != nil {
			logger.Fatalf("write: %v", err)
		}
		sent++
		time.Sleep(*interval)
	}
}

func randomAct(rng *rand.Rand) protocol.ActMsg {
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
	}
	switch rng.Intn(5) {
	case 0:
		act.Kind = "DEPOSIT"
		act.Amount = int64(10 + rng.Intn(100))
	case 1:
		act.Kind = "WITHDRAW"
		act.Amount = int64(10 + rng.Intn(100))
	case 2:
		act.Kind = "WORK_SHIFT"
	case 3:
		act.Kind = "COINFLIP"
		act.Amount = int64(5 + rng.Intn(50))
		guess := "HEADS"
		if rng.Intn(2) == 0 {
			guess = "TAILS"
		}
		act.Payload = map[string]any{"guess": guess}
	default:
		act.Kind = "TAKE_LOAN"
		act.Amount = int64(50 + rng.Intn(200))
	}
	return act
}
