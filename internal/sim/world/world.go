package world

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"capitolia.gg/internal/persistence/snapshot"
	"capitolia.gg/internal/sim/catalogs"
)

// World owns the canonical aggregate and serializes every mutation.
// All commits execute one at a time on the loop goroutine; readers get
// immutable published values and never enter the serialized section.
type World struct {
	cfg  Config
	cats *catalogs.Catalogs

	canonical atomic.Pointer[WorldState]

	commits chan commitReq
	turns   chan turnReq
	snaps   chan snapReq
	stop    chan struct{}

	notifier *Notifier

	// Turn scheduler state: Idle/Advancing plus the cooldown watermark.
	advancing  atomic.Bool
	lastTurnAt atomic.Int64

	// Optional commit logger (may be nil). Implemented in internal/persistence/log.
	commitLog CommitLogger

	// Optional snapshot sink (may be nil). Snapshot writing happens off-thread.
	snapshotSink chan<- snapshot.StateV1

	stepNanos atomic.Int64
}

// ActionEnvelope is one inbound mutation request. It is consumed exactly
// once by Dispatch; only its idempotency token (if any) outlives it.
type ActionEnvelope struct {
	ActorID string
	Kind    string
	Amount  int64
	Payload map[string]any
	Token   string
}

// ChangeDraft describes the change event a successful mutator stages for
// the notifier. Publication happens after commit, never under the mutator.
type ChangeDraft struct {
	Kind    string
	Payload map[string]any
}

type CommitLogger interface {
	WriteCommit(entry CommitLogEntry) error
}

type CommitLogEntry struct {
	At       int64  `json:"at"`
	Label    string `json:"label"`
	Turn     uint64 `json:"turn"`
	Revision uint64 `json:"revision,omitempty"`
	Digest   string `json:"digest"`
}

type commitReq struct {
	ctx    context.Context
	label  string
	mutate func(*WorldState) (*ChangeDraft, error)
	resp   chan commitResp
}

type commitResp struct {
	state *WorldState
	err   error
}

type turnReq struct {
	force bool
	resp  chan TurnReport
}

type snapReq struct {
	resp chan snapResp
}

type snapResp struct {
	turn uint64
	err  error
}

// ErrStopped is returned for commits submitted after the world shut down.
var ErrStopped = errors.New("world stopped")

func New(cfg Config, cats *catalogs.Catalogs) (*World, error) {
	if cats == nil {
		return nil, errors.New("nil catalogs")
	}
	if err := validateReducerRegistry(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	st := newWorldState()
	for _, id := range cats.Instruments.IDs {
		def := cats.Instruments.ByID[id]
		st.Markets[id] = &Market{
			ID:      id,
			Price:   def.StartPrice,
			History: []int64{def.StartPrice},
		}
	}

	w := &World{
		cfg:      cfg,
		cats:     cats,
		commits:  make(chan commitReq, 1024),
		turns:    make(chan turnReq, 8),
		snaps:    make(chan snapReq, 8),
		stop:     make(chan struct{}),
		notifier: NewNotifier(cfg.ChangeRing),
	}
	w.canonical.Store(st)
	return w, nil
}

func (w *World) SetCommitLogger(l CommitLogger)             { w.commitLog = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.StateV1) { w.snapshotSink = ch }
func (w *World) Notifier() *Notifier                        { return w.notifier }
func (w *World) Catalogs() *catalogs.Catalogs               { return w.cats }
func (w *World) Config() Config                             { return w.cfg }

// View returns the latest published aggregate. It may be immediately stale
// and must be treated as read-only.
func (w *World) View() *WorldState { return w.canonical.Load() }

func (w *World) CurrentTurn() uint64 { return w.View().Turn }

// Run executes the serialization loop. It owns every commit and the timer
// driven turn advancement; it returns when ctx is done or Stop is called.
func (w *World) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if w.cfg.TurnEvery > 0 {
		t := time.NewTicker(w.cfg.TurnEvery)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.commits:
			w.applyCommit(req)
		case req := <-w.turns:
			req.resp <- w.runTurn(req.force)
		case <-tick:
			w.runTurn(false)
		case req := <-w.snaps:
			req.resp <- w.exportToSink()
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// Commit submits one atomic state transition and blocks until it has been
// applied (or rejected) in serialization order. The mutator receives a
// clone of the canonical value; on any error or panic the clone is
// discarded and the canonical value is untouched. A caller whose ctx ends
// before execution begins abandons the commit; once the mutator starts it
// runs to completion.
func (w *World) Commit(ctx context.Context, label string, mutate func(*WorldState) (*ChangeDraft, error)) (*WorldState, error) {
	req := commitReq{ctx: ctx, label: label, mutate: mutate, resp: make(chan commitResp, 1)}
	select {
	case w.commits <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.stop:
		return nil, ErrStopped
	}
	select {
	case resp := <-req.resp:
		return resp.state, resp.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// applyCommit runs on the loop goroutine only.
func (w *World) applyCommit(req commitReq) {
	if req.ctx != nil && req.ctx.Err() != nil {
		// Abandoned while queued; the mutator is never invoked.
		return
	}
	start := time.Now()

	cur := w.canonical.Load()
	next := cur.Clone()
	draft, err := runMutator(req.mutate, next)
	if err != nil {
		req.resp <- commitResp{state: cur, err: err}
		w.stepNanos.Store(int64(time.Since(start)))
		return
	}

	w.canonical.Store(next)

	var rev uint64
	if draft != nil {
		rev = w.notifier.Publish(draft.Kind, draft.Payload).Revision
	}
	if w.commitLog != nil {
		_ = w.commitLog.WriteCommit(CommitLogEntry{
			At:       time.Now().UnixMilli(),
			Label:    req.label,
			Turn:     next.Turn,
			Revision: rev,
			Digest:   next.Digest(),
		})
	}

	req.resp <- commitResp{state: next}
	w.stepNanos.Store(int64(time.Since(start)))
}

func runMutator(fn func(*WorldState) (*ChangeDraft, error), s *WorldState) (draft *ChangeDraft, err error) {
	defer func() {
		if r := recover(); r != nil {
			draft = nil
			err = fmt.Errorf("mutator panic: %v", r)
		}
	}()
	return fn(s)
}

// RequestSnapshot asks the loop to export the canonical state to the
// snapshot sink. It reports the exported turn.
func (w *World) RequestSnapshot(ctx context.Context) (uint64, error) {
	req := snapReq{resp: make(chan snapResp, 1)}
	select {
	case w.snaps <- req:
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-w.stop:
		return 0, ErrStopped
	}
	select {
	case resp := <-req.resp:
		return resp.turn, resp.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// exportToSink runs on the loop goroutine only.
func (w *World) exportToSink() snapResp {
	st := w.canonical.Load()
	if w.snapshotSink == nil {
		return snapResp{turn: st.Turn, err: errors.New("no snapshot sink configured")}
	}
	snap := w.exportState(st)
	select {
	case w.snapshotSink <- snap:
		return snapResp{turn: st.Turn}
	default:
		return snapResp{turn: st.Turn, err: errors.New("snapshot sink busy")}
	}
}
