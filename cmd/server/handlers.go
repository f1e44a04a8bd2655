package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"capitolia.gg/internal/persistence/indexdb"
	"capitolia.gg/internal/protocol"
	"capitolia.gg/internal/sim/world"
	"capitolia.gg/internal/transport/ws"
)

type adminActionsRequest struct {
	Actions []protocol.ActionRequest `json:"actions"`
}

func buildMux(w *world.World, idx *indexdb.SQLiteIndex, worldID, schemaDir string, logger *log.Logger) (*http.ServeMux, error) {
	adminSchema, err := jsonschema.Compile(filepath.Join(schemaDir, "admin_actions.schema.json"))
	if err != nil {
		return nil, fmt.Errorf("compile admin schema: %w", err)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})

	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := w.Metrics()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP capitolia_world_turn Current world turn.\n")
		fmt.Fprintf(rw, "# TYPE capitolia_world_turn gauge\n")
		fmt.Fprintf(rw, "capitolia_world_turn{world=%q} %d\n", worldID, m.Turn)

		fmt.Fprintf(rw, "# HELP capitolia_world_revision Last published change revision.\n")
		fmt.Fprintf(rw, "# TYPE capitolia_world_revision gauge\n")
		fmt.Fprintf(rw, "capitolia_world_revision{world=%q} %d\n", worldID, m.Revision)

		fmt.Fprintf(rw, "# HELP capitolia_world_entities Entity counts by kind.\n")
		fmt.Fprintf(rw, "# TYPE capitolia_world_entities gauge\n")
		fmt.Fprintf(rw, "capitolia_world_entities{world=%q,kind=%q} %d\n", worldID, "actors", m.Actors)
		fmt.Fprintf(rw, "capitolia_world_entities{world=%q,kind=%q} %d\n", worldID, "markets", m.Markets)
		fmt.Fprintf(rw, "capitolia_world_entities{world=%q,kind=%q} %d\n", worldID, "holdings", m.Holdings)
		fmt.Fprintf(rw, "capitolia_world_entities{world=%q,kind=%q} %d\n", worldID, "requests", m.Requests)
		fmt.Fprintf(rw, "capitolia_world_entities{world=%q,kind=%q} %d\n", worldID, "events", m.Events)

		fmt.Fprintf(rw, "# HELP capitolia_world_subscribers Live change-feed subscribers.\n")
		fmt.Fprintf(rw, "# TYPE capitolia_world_subscribers gauge\n")
		fmt.Fprintf(rw, "capitolia_world_subscribers{world=%q} %d\n", worldID, m.Subscribers)

		fmt.Fprintf(rw, "# HELP capitolia_world_commit_queue_depth Pending commit backlog.\n")
		fmt.Fprintf(rw, "# TYPE capitolia_world_commit_queue_depth gauge\n")
		fmt.Fprintf(rw, "capitolia_world_commit_queue_depth{world=%q} %d\n", worldID, m.CommitQueue)

		fmt.Fprintf(rw, "# HELP capitolia_world_processed_tokens Idempotency ledger size.\n")
		fmt.Fprintf(rw, "# TYPE capitolia_world_processed_tokens gauge\n")
		fmt.Fprintf(rw, "capitolia_world_processed_tokens{world=%q} %d\n", worldID, m.ProcessedTokens)

		fmt.Fprintf(rw, "# HELP capitolia_world_step_ms Last commit step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE capitolia_world_step_ms gauge\n")
		fmt.Fprintf(rw, "capitolia_world_step_ms{world=%q} %.3f\n", worldID, m.LastStepMS)
	})

	mux.HandleFunc("/v1/actions", func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req protocol.ActionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONStatus(rw, http.StatusBadRequest, protocol.ActionResponse{
				Reason: "invalid json", Code: protocol.ErrProtoBadRequest,
			})
			return
		}
		outcome, err := w.Dispatch(r.Context(), world.ActionEnvelope{
			ActorID: req.ActorID,
			Kind:    req.Kind,
			Amount:  req.Amount,
			Payload: req.Payload,
			Token:   req.IdempotencyToken,
		})
		writeOutcome(rw, outcome, err, logger)
	})

	mux.HandleFunc("/v1/changes", func(rw http.ResponseWriter, r *http.Request) {
		since, _ := strconv.ParseUint(r.URL.Query().Get("since"), 10, 64)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 || limit > 1000 {
			limit = 100
		}

		changes := w.Notifier().Since(since, limit)
		if len(changes) == 0 && idx != nil && since < w.Notifier().Revision() {
			// The ring has rotated past the cursor; serve from the index.
			if rows, err := idx.ChangesSince(since, limit); err == nil {
				changes = rows
			}
		}
		writeJSONStatus(rw, http.StatusOK, map[string]any{
			"revision": w.Notifier().Revision(),
			"changes":  changes,
		})
	})

	mux.HandleFunc("/v1/state", func(rw http.ResponseWriter, r *http.Request) {
		s := w.View()
		resp := map[string]any{
			"world_id": worldID,
			"turn":     s.Turn,
			"revision": w.Notifier().Revision(),
			"markets":  s.Markets,
			"news":     s.News,
		}
		if actorID := r.URL.Query().Get("actor_id"); actorID != "" {
			if a, ok := s.Actors[actorID]; ok {
				resp["actor"] = a
			} else {
				writeJSONStatus(rw, http.StatusNotFound, map[string]any{
					"code": protocol.ErrInvalidTarget, "reason": "unknown actor",
				})
				return
			}
		}
		writeJSONStatus(rw, http.StatusOK, resp)
	})

	mux.HandleFunc("/v1/ws", ws.NewServer(w, logger).Handler())

	enableAdminHTTP := envBool("CAP_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("CAP_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			writeJSONStatus(rw, http.StatusOK, struct {
				WorldID string             `json:"world_id"`
				Turn    uint64             `json:"turn"`
				Metrics world.WorldMetrics `json:"metrics"`
			}{
				WorldID: worldID,
				Turn:    w.CurrentTurn(),
				Metrics: w.Metrics(),
			})
		})

		mux.HandleFunc("/admin/v1/turn", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			var body struct {
				Force bool `json:"force"`
			}
			if r.ContentLength > 0 {
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					writeJSONStatus(rw, http.StatusBadRequest, map[string]any{"code": protocol.ErrProtoBadRequest})
					return
				}
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 10*time.Second)
			defer cancel2()
			rep, err := w.AdvanceTurn(ctx2, body.Force)
			if err != nil {
				writeJSONStatus(rw, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
				return
			}
			status := http.StatusOK
			code := ""
			switch rep.Reason {
			case "busy":
				status = http.StatusConflict
				code = protocol.ErrTurnBusy
			case "cooldown":
				status = http.StatusConflict
				code = protocol.ErrTurnCooldown
			}
			writeJSONStatus(rw, status, map[string]any{
				"advanced": rep.Advanced,
				"turn":     rep.Turn,
				"reason":   rep.Reason,
				"code":     code,
			})
		})

		mux.HandleFunc("/admin/v1/actions", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			var raw any
			if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
				writeJSONStatus(rw, http.StatusBadRequest, map[string]any{"code": protocol.ErrProtoBadRequest, "reason": "invalid json"})
				return
			}
			if err := adminSchema.Validate(raw); err != nil {
				writeJSONStatus(rw, http.StatusBadRequest, map[string]any{"code": protocol.ErrProtoBadRequest, "reason": err.Error()})
				return
			}
			b, _ := json.Marshal(raw)
			var req adminActionsRequest
			_ = json.Unmarshal(b, &req)

			out := make([]protocol.ActionResponse, 0, len(req.Actions))
			for _, a := range req.Actions {
				outcome, err := w.DispatchAdmin(r.Context(), world.ActionEnvelope{
					ActorID: a.ActorID,
					Kind:    a.Kind,
					Amount:  a.Amount,
					Payload: a.Payload,
					Token:   a.IdempotencyToken,
				})
				if err != nil && outcome.Status == "" {
					writeJSONStatus(rw, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
					return
				}
				if err != nil {
					logger.Printf("admin action %s: %v", a.Kind, err)
				}
				out = append(out, toActionResponse(outcome))
			}
			writeJSONStatus(rw, http.StatusOK, map[string]any{"results": out})
		})

		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			turn, err := w.RequestSnapshot(ctx2)
			if err != nil {
				writeJSONStatus(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "turn": turn, "error": err.Error()})
				return
			}
			writeJSONStatus(rw, http.StatusOK, map[string]any{"ok": true, "turn": turn})
		})
	} else {
		logger.Printf("admin endpoints disabled (CAP_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	return mux, nil
}

func writeOutcome(rw http.ResponseWriter, outcome world.Outcome, err error, logger *log.Logger) {
	if err != nil && outcome.Status == "" {
		writeJSONStatus(rw, http.StatusServiceUnavailable, protocol.ActionResponse{
			Reason: err.Error(), Code: protocol.ErrInternal,
		})
		return
	}
	if err != nil {
		logger.Printf("commit failed: %v", err)
	}
	status := http.StatusOK
	if outcome.Status == protocol.StatusRejected {
		status = http.StatusUnprocessableEntity
		if outcome.Code == protocol.ErrInternal {
			status = http.StatusInternalServerError
		}
	}
	writeJSONStatus(rw, status, toActionResponse(outcome))
}

func toActionResponse(outcome world.Outcome) protocol.ActionResponse {
	return protocol.ActionResponse{
		// A suppressed duplicate still counts as applied: its effects exist
		// exactly once.
		Applied:          outcome.Applied() || outcome.AlreadyApplied(),
		AlreadyProcessed: outcome.AlreadyApplied(),
		Reason:           outcome.Message,
		Code:             outcome.Code,
		Result:           outcome.Result,
	}
}

func writeJSONStatus(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
