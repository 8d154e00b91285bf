package pipeline

import "testing"

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{name: "start to checked out", from: StateStart, to: StateCheckedOut, want: true},
		{name: "checked out to toolchain", from: StateCheckedOut, to: StateToolchainReady, want: true},
		{name: "toolchain to compiled", from: StateToolchainReady, to: StateCompiled, want: true},
		{name: "compiled to captured", from: StateCompiled, to: StateArtifactCaptured, want: true},
		{name: "captured to published", from: StateArtifactCaptured, to: StatePublished, want: true},
		{name: "captured to skipped", from: StateArtifactCaptured, to: StateSkippedPublish, want: true},
		{name: "any step may fail", from: StateToolchainReady, to: StateFailed, want: true},
		{name: "no skipping compile", from: StateCheckedOut, to: StateCompiled, want: false},
		{name: "no publish before capture", from: StateCompiled, to: StatePublished, want: false},
		{name: "failed is terminal", from: StateFailed, to: StateCheckedOut, want: false},
		{name: "published is terminal", from: StatePublished, to: StateStart, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Fatalf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStateTerminal(t *testing.T) {
	terminal := []State{StatePublished, StateSkippedPublish, StateFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	active := []State{StateStart, StateCheckedOut, StateToolchainReady, StateCompiled, StateArtifactCaptured}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
