package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"capitolia.gg/internal/protocol"
	"capitolia.gg/internal/sim/world"
)

type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	s := &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		join, hello, ok := s.handshake(conn)
		if !ok {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		buf := hello.Capabilities.MaxQueue
		if buf <= 0 {
			buf = 64
		}
		if buf > 1024 {
			buf = 1024
		}
		sub := s.world.Notifier().Subscribe(buf)
		defer s.world.Notifier().Unsubscribe(sub)

		out := make(chan []byte, buf)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Change forwarder: optional catch-up from the retained window, then
		// live events. lastRev suppresses the catch-up/live overlap.
		go func() {
			var lastRev uint64
			if since := hello.Capabilities.SinceRevision; since > 0 {
				for _, ev := range s.world.Notifier().Since(since, 1000) {
					lastRev = ev.Revision
					if !send(ctx, out, encodeChange(ev)) {
						return
					}
				}
			}
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-sub.C():
					if !ok {
						cancel()
						return
					}
					if ev.Revision <= lastRev {
						continue
					}
					lastRev = ev.Revision
					if !send(ctx, out, encodeChange(ev)) {
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if base.Type != protocol.TypeAct {
				continue
			}
			var act protocol.ActMsg
			if err := json.Unmarshal(msg, &act); err != nil {
				continue
			}
			if act.ProtocolVersion != protocol.Version {
				continue
			}

			outcome, err := s.world.Dispatch(ctx, world.ActionEnvelope{
				ActorID: join.ActorID,
				Kind:    act.Kind,
				Amount:  act.Amount,
				Payload: act.Payload,
				Token:   act.IdempotencyToken,
			})
			if err != nil && outcome.Status == "" {
				cancel()
				break
			}
			b, _ := json.Marshal(protocol.OutcomeMsg{
				Type:            protocol.TypeOutcome,
				ProtocolVersion: protocol.Version,
				Ref:             act.ActID,
				Status:          outcome.Status,
				Code:            outcome.Code,
				Message:         outcome.Message,
				Result:          outcome.Result,
			})
			if !send(ctx, out, b) {
				break
			}
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (world.JoinResult, protocol.HelloMsg, bool) {
	var none world.JoinResult
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return none, protocol.HelloMsg{}, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return none, protocol.HelloMsg{}, false
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return none, protocol.HelloMsg{}, false
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return none, protocol.HelloMsg{}, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var join world.JoinResult
	resumeToken := ""
	if hello.Auth != nil {
		resumeToken = strings.TrimSpace(hello.Auth.Token)
	}
	if resumeToken != "" {
		join, err = s.world.Attach(ctx, resumeToken)
		if err != nil {
			var rej *world.Rejection
			if !errors.As(err, &rej) {
				return none, protocol.HelloMsg{}, false
			}
			// Stale token: fall through to a fresh join.
		}
	}
	if join.ActorID == "" {
		join, err = s.world.Join(ctx, hello.ActorName)
		if err != nil {
			return none, protocol.HelloMsg{}, false
		}
	}

	cfg := s.world.Config()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ActorID:         join.ActorID,
		ResumeToken:     join.ResumeToken,
		WorldParams: protocol.WorldParams{
			WorldID:        cfg.ID,
			Turn:           s.world.CurrentTurn(),
			Revision:       s.world.Notifier().Revision(),
			TurnCooldownMS: cfg.TurnCooldown.Milliseconds(),
			Seed:           cfg.Seed,
			CatalogDigest:  s.world.Catalogs().Digest(),
		},
	}
	if err := writeJSON(conn, welcome); err != nil {
		return none, protocol.HelloMsg{}, false
	}
	return join, hello, true
}

func encodeChange(ev world.ChangeEvent) []byte {
	b, _ := json.Marshal(protocol.ChangeMsg{
		Type:            protocol.TypeChange,
		ProtocolVersion: protocol.Version,
		Kind:            ev.Kind,
		Revision:        ev.Revision,
		T:               ev.At.UnixMilli(),
		Payload:         ev.Payload,
	})
	return b
}

func send(ctx context.Context, out chan []byte, b []byte) bool {
	select {
	case out <- b:
		return true
	case <-ctx.Done():
		return false
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
