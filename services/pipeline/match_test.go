package pipeline

import "testing"

func TestDefinitionMatches(t *testing.T) {
	def := DefaultDefinition()

	tests := []struct {
		name string
		evt  TriggerEvent
		want bool
	}{
		{
			name: "push to master",
			evt:  TriggerEvent{Kind: TriggerPush, Ref: "master", RefType: RefBranch},
			want: true,
		},
		{
			name: "push to feature branch",
			evt:  TriggerEvent{Kind: TriggerPush, Ref: "feature/foo", RefType: RefBranch},
			want: false,
		},
		{
			name: "any tag",
			evt:  TriggerEvent{Kind: TriggerPush, Ref: "v1.2.3", RefType: RefTag},
			want: true,
		},
		{
			name: "pull request against master",
			evt:  TriggerEvent{Kind: TriggerPullRequest, Ref: "master", RefType: RefBranch},
			want: true,
		},
		{
			name: "pull request against other branch",
			evt:  TriggerEvent{Kind: TriggerPullRequest, Ref: "develop", RefType: RefBranch},
			want: false,
		},
		{
			name: "manual dispatch",
			evt:  TriggerEvent{Kind: TriggerManual, Ref: "master", RefType: RefBranch},
			want: true,
		},
		{
			name: "unknown kind",
			evt:  TriggerEvent{Kind: "schedule", Ref: "master", RefType: RefBranch},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := def.Matches(tt.evt); got != tt.want {
				t.Fatalf("Matches(%+v) = %v, want %v", tt.evt, got, tt.want)
			}
		})
	}
}

func TestMatchesTagPatterns(t *testing.T) {
	def := DefaultDefinition()
	def.Triggers.Push.Tags = []string{"v*"}

	if !def.Matches(TriggerEvent{Kind: TriggerPush, Ref: "v2.0.0", RefType: RefTag}) {
		t.Error("v2.0.0 should match v*")
	}
	if def.Matches(TriggerEvent{Kind: TriggerPush, Ref: "nightly", RefType: RefTag}) {
		t.Error("nightly should not match v*")
	}
}

func TestMatchesDispatchDisabled(t *testing.T) {
	def := DefaultDefinition()
	def.Triggers.Dispatch = false

	if def.Matches(TriggerEvent{Kind: TriggerManual, Ref: "master", RefType: RefBranch}) {
		t.Error("manual dispatch should not match when disabled")
	}
}
