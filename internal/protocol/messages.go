package protocol

// HelloMsg opens a websocket session. Auth is optional: a resume token
// reattaches an existing actor, otherwise a fresh actor is created.
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ActorName       string            `json:"actor_name,omitempty"`
	Auth            *HelloAuth        `json:"auth,omitempty"`
	Capabilities    HelloCapabilities `json:"capabilities,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

type HelloCapabilities struct {
	// MaxQueue bounds the per-subscriber change buffer. Subscribers that
	// fall further behind than this are dropped, not waited on.
	MaxQueue int `json:"max_queue,omitempty"`
	// SinceRevision requests catch-up delivery from the notifier's
	// retained window before live events.
	SinceRevision uint64 `json:"since_revision,omitempty"`
}

type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	ActorID         string      `json:"actor_id"`
	ResumeToken     string      `json:"resume_token"`
	WorldParams     WorldParams `json:"world_params"`
}

type WorldParams struct {
	WorldID        string `json:"world_id"`
	Turn           uint64 `json:"turn"`
	Revision       uint64 `json:"revision"`
	TurnCooldownMS int64  `json:"turn_cooldown_ms"`
	Seed           int64  `json:"seed"`
	CatalogDigest  string `json:"catalog_digest"`
}

// ActMsg is one client-submitted action. ActID is the client's reference
// for correlating the OUTCOME reply; IdempotencyToken, when set, suppresses
// duplicate effect application across retries.
type ActMsg struct {
	Type             string         `json:"type"`
	ProtocolVersion  string         `json:"protocol_version"`
	ActID            string         `json:"act_id,omitempty"`
	Kind             string         `json:"kind"`
	Amount           int64          `json:"amount,omitempty"`
	Payload          map[string]any `json:"payload,omitempty"`
	IdempotencyToken string         `json:"idempotency_token,omitempty"`
}

// Outcome status values.
const (
	StatusApplied        = "APPLIED"
	StatusRejected       = "REJECTED"
	StatusAlreadyApplied = "ALREADY_APPLIED"
)

type OutcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Ref             string         `json:"ref,omitempty"`
	Status          string         `json:"status"`
	Code            string         `json:"code,omitempty"`
	Message         string         `json:"message,omitempty"`
	Result          map[string]any `json:"result,omitempty"`
}

type ChangeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Kind            string         `json:"kind"`
	Revision        uint64         `json:"revision"`
	T               int64          `json:"t"`
	Payload         map[string]any `json:"payload,omitempty"`
}

// ActionRequest is the HTTP action-submission body (POST /v1/actions).
type ActionRequest struct {
	Kind             string         `json:"kind"`
	ActorID          string         `json:"actor_id"`
	Amount           int64          `json:"amount,omitempty"`
	Payload          map[string]any `json:"payload,omitempty"`
	IdempotencyToken string         `json:"idempotency_token,omitempty"`
}

type ActionResponse struct {
	Applied          bool           `json:"applied"`
	AlreadyProcessed bool           `json:"already_processed,omitempty"`
	Reason           string         `json:"reason,omitempty"`
	Code             string         `json:"code,omitempty"`
	Result           map[string]any `json:"result,omitempty"`
}
