package world

// WorldMetrics is a point-in-time sample for the /metrics endpoint.
type WorldMetrics struct {
	Turn            uint64
	Actors          int
	Markets         int
	Holdings        int
	Requests        int
	Events          int
	Revision        uint64
	Subscribers     int
	CommitQueue     int
	ProcessedTokens int
	LastStepMS      float64
	Advancing       bool
}

func (w *World) Metrics() WorldMetrics {
	s := w.View()
	return WorldMetrics{
		Turn:            s.Turn,
		Actors:          len(s.Actors),
		Markets:         len(s.Markets),
		Holdings:        len(s.Holdings),
		Requests:        len(s.Requests),
		Events:          len(s.Events),
		Revision:        w.notifier.Revision(),
		Subscribers:     w.notifier.subscriberCount(),
		CommitQueue:     len(w.commits),
		ProcessedTokens: len(s.Processed),
		LastStepMS:      float64(w.stepNanos.Load()) / 1e6,
		Advancing:       w.advancing.Load(),
	}
}
