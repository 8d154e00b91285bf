package pipeline

// State is a position in the run state machine. Each state is reached only on
// success of the prior step; any step failure moves the run to StateFailed.
type State string

const (
	StateStart            State = "start"
	StateCheckedOut       State = "checked_out"
	StateToolchainReady   State = "toolchain_ready"
	StateCompiled         State = "compiled"
	StateArtifactCaptured State = "artifact_captured"
	StatePublished        State = "published"
	StateSkippedPublish   State = "skipped_publish"
	StateFailed           State = "failed"
)

var transitions = map[State][]State{
	StateStart:            {StateCheckedOut, StateFailed},
	StateCheckedOut:       {StateToolchainReady, StateFailed},
	StateToolchainReady:   {StateCompiled, StateFailed},
	StateCompiled:         {StateArtifactCaptured, StateFailed},
	StateArtifactCaptured: {StatePublished, StateSkippedPublish, StateFailed},
}

// CanTransition reports whether moving from s to next is a legal step.
func (s State) CanTransition(next State) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the run is finished in this state.
func (s State) Terminal() bool {
	switch s {
	case StatePublished, StateSkippedPublish, StateFailed:
		return true
	default:
		return false
	}
}
