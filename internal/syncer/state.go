package syncer

// State is the orchestrator's position in the per-target pipeline.
type State int32

const (
	StateIdle State = iota
	StateResolving
	StateFetching
	StateNormalizing
	StateCommitting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateFetching:
		return "fetching"
	case StateNormalizing:
		return "normalizing"
	case StateCommitting:
		return "committing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
