package world

import (
	"context"
	"errors"
	"fmt"

	"capitolia.gg/internal/protocol"
)

// Reducer is the uniform contract behind every action kind: given the
// working clone and the envelope, it either mutates the clone into the
// full, self-consistent effect of the action and returns a result, or it
// returns a *Rejection and the clone is discarded. Partial application is
// therefore impossible by construction.
type Reducer func(w *World, s *WorldState, env ActionEnvelope) (map[string]any, *ChangeDraft, error)

// Rejection is an expected, user-visible domain failure (insufficient
// funds, missing entity, permission denied). It is not an operational
// error.
type Rejection struct {
	Code    string
	Message string
}

func (r *Rejection) Error() string { return r.Code + ": " + r.Message }

func reject(code, format string, args ...any) *Rejection {
	return &Rejection{Code: code, Message: fmt.Sprintf(format, args...)}
}

// errDuplicate marks the already-processed fast path: the mutator returns
// it to discard the (unchanged) clone without signalling a failure.
var errDuplicate = errors.New("duplicate token")

type Outcome struct {
	Status  string
	Code    string
	Message string
	Result  map[string]any
}

func (o Outcome) Applied() bool        { return o.Status == protocol.StatusApplied }
func (o Outcome) AlreadyApplied() bool { return o.Status == protocol.StatusAlreadyApplied }

// Dispatch routes one envelope to its reducer and executes it as a single
// commit. Unknown kinds and malformed envelopes are rejected before the
// serialized section is ever entered.
func (w *World) Dispatch(ctx context.Context, env ActionEnvelope) (Outcome, error) {
	return w.dispatch(ctx, env, reducerDispatch)
}

// DispatchAdmin additionally resolves privileged bulk kinds. Callers are
// trusted; gating access to this entry point is the transport's concern.
func (w *World) DispatchAdmin(ctx context.Context, env ActionEnvelope) (Outcome, error) {
	if _, ok := adminDispatch[env.Kind]; ok {
		return w.dispatch(ctx, env, adminDispatch)
	}
	return w.dispatch(ctx, env, reducerDispatch)
}

func (w *World) dispatch(ctx context.Context, env ActionEnvelope, registry map[string]Reducer) (Outcome, error) {
	if env.Kind == "" {
		return Outcome{Status: protocol.StatusRejected, Code: protocol.ErrBadRequest, Message: "missing kind"}, nil
	}
	if env.ActorID == "" {
		return Outcome{Status: protocol.StatusRejected, Code: protocol.ErrBadRequest, Message: "missing actor_id"}, nil
	}
	red := registry[env.Kind]
	if red == nil {
		return Outcome{Status: protocol.StatusRejected, Code: protocol.ErrUnknownAction, Message: "unknown action"}, nil
	}

	var out Outcome
	_, err := w.Commit(ctx, "action:"+env.Kind, func(s *WorldState) (*ChangeDraft, error) {
		// Idempotency guard: the check and the record live inside the same
		// mutator invocation as the business reducer, so there is no window
		// where effects exist without the token or vice versa.
		if env.Token != "" && tokenSeen(s, env.Token) {
			out = Outcome{Status: protocol.StatusAlreadyApplied}
			return nil, errDuplicate
		}
		result, draft, err := red(w, s, env)
		if err != nil {
			return nil, err
		}
		if env.Token != "" {
			rememberToken(s, env.Token)
		}
		out = Outcome{Status: protocol.StatusApplied, Result: result}
		return draft, nil
	})

	if err == nil {
		return out, nil
	}
	if errors.Is(err, errDuplicate) {
		return out, nil
	}
	var rej *Rejection
	if errors.As(err, &rej) {
		return Outcome{Status: protocol.StatusRejected, Code: rej.Code, Message: rej.Message}, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrStopped) {
		return Outcome{}, err
	}
	// Commit failure: the reducer errored or panicked. State is untouched;
	// surface the fault to the caller for logging.
	return Outcome{Status: protocol.StatusRejected, Code: protocol.ErrInternal, Message: "internal error"}, err
}

// SupportedKinds lists every action kind reachable through Dispatch.
func SupportedKinds() []string {
	out := make([]string, 0, len(supportedKinds))
	out = append(out, supportedKinds...)
	return out
}

var supportedKinds = []string{
	KindDeposit,
	KindWithdraw,
	KindTransfer,
	KindTakeLoan,
	KindRepayLoan,
	KindApplyJob,
	KindQuitJob,
	KindWorkShift,
	KindBuyProperty,
	KindSellProperty,
	KindCollectRent,
	KindBuyAsset,
	KindSellAsset,
	KindCoinflip,
	KindDice,
	KindSlots,
	KindSendMessage,
	KindPostNews,
	KindGiftCash,
	KindSubmitRequest,
	KindResolveRequest,
}

var supportedAdminKinds = []string{
	KindGrantCashAll,
	KindResetActor,
	KindSetSetting,
}

func validateReducerRegistry() error {
	if err := validateDispatchMap("reducerDispatch", reducerDispatch, supportedKinds); err != nil {
		return err
	}
	return validateDispatchMap("adminDispatch", adminDispatch, supportedAdminKinds)
}

func validateDispatchMap(name string, handlers map[string]Reducer, supported []string) error {
	allowed := make(map[string]struct{}, len(supported))
	for _, k := range supported {
		if k == "" {
			return fmt.Errorf("%s: empty supported key", name)
		}
		if _, ok := allowed[k]; ok {
			return fmt.Errorf("%s: duplicate supported key %q", name, k)
		}
		allowed[k] = struct{}{}
	}
	if len(handlers) != len(allowed) {
		return fmt.Errorf("%s size mismatch: got=%d want=%d", name, len(handlers), len(allowed))
	}
	for k := range handlers {
		if _, ok := allowed[k]; !ok {
			return fmt.Errorf("%s has unsupported key %q", name, k)
		}
	}
	for k := range allowed {
		if _, ok := handlers[k]; !ok {
			return fmt.Errorf("%s missing key %q", name, k)
		}
	}
	return nil
}
