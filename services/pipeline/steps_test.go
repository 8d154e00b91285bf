package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

// fakeRunner records commands and fails when the command line matches failOn.
type fakeRunner struct {
	commands []string
	failOn   string
	onRun    func(name string, args []string) error
}

func (f *fakeRunner) Run(ctx context.Context, dir string, w io.Writer, name string, args ...string) error {
	line := strings.Join(append([]string{name}, args...), " ")
	f.commands = append(f.commands, line)
	if f.onRun != nil {
		if err := f.onRun(name, args); err != nil {
			return err
		}
	}
	if f.failOn != "" && strings.HasPrefix(line, f.failOn) {
		return fmt.Errorf("%s: exit status 1", name)
	}
	return nil
}

type testStep struct {
	name string
	next State
	fn   func(exec *Execution) error
}

func (s testStep) Name() string { return s.name }
func (s testStep) Next() State  { return s.next }
func (s testStep) Run(ctx context.Context, exec *Execution) error {
	if s.fn != nil {
		return s.fn(exec)
	}
	return nil
}

func noopSteps() []Step {
	return []Step{
		testStep{name: "checkout", next: StateCheckedOut},
		testStep{name: "toolchain", next: StateToolchainReady},
		testStep{name: "compile", next: StateCompiled},
		testStep{name: "capture", next: StateArtifactCaptured},
	}
}

func newTestExecution(t *testing.T, evt TriggerEvent) *Execution {
	t.Helper()
	return NewExecution(uuid.New(), DefaultDefinition(), evt, t.TempDir(), nil)
}

func TestRunPipelineSkipsPublishForBranch(t *testing.T) {
	exec := newTestExecution(t, TriggerEvent{Kind: TriggerPush, Ref: "master", RefType: RefBranch})

	published := false
	publish := testStep{name: "publish", next: StatePublished, fn: func(*Execution) error {
		published = true
		return nil
	}}

	if err := runPipeline(context.Background(), exec, noopSteps(), publish, nil); err != nil {
		t.Fatalf("runPipeline() error = %v", err)
	}
	if exec.State != StateSkippedPublish {
		t.Errorf("state = %s, want %s", exec.State, StateSkippedPublish)
	}
	if published {
		t.Error("publish step ran for a branch ref")
	}
}

func TestRunPipelinePublishesForTag(t *testing.T) {
	exec := newTestExecution(t, TriggerEvent{Kind: TriggerPush, Ref: "v1.2.3", RefType: RefTag})

	published := false
	publish := testStep{name: "publish", next: StatePublished, fn: func(*Execution) error {
		published = true
		return nil
	}}

	if err := runPipeline(context.Background(), exec, noopSteps(), publish, nil); err != nil {
		t.Fatalf("runPipeline() error = %v", err)
	}
	if exec.State != StatePublished {
		t.Errorf("state = %s, want %s", exec.State, StatePublished)
	}
	if !published {
		t.Error("publish step did not run for a tag ref")
	}
}

func TestRunPipelineAbortsOnStepFailure(t *testing.T) {
	exec := newTestExecution(t, TriggerEvent{Kind: TriggerPush, Ref: "v1.2.3", RefType: RefTag})

	var ran []string
	steps := []Step{
		testStep{name: "checkout", next: StateCheckedOut, fn: func(*Execution) error {
			ran = append(ran, "checkout")
			return nil
		}},
		testStep{name: "toolchain", next: StateToolchainReady, fn: func(*Execution) error {
			ran = append(ran, "toolchain")
			return errors.New("rustup unavailable")
		}},
		testStep{name: "compile", next: StateCompiled, fn: func(*Execution) error {
			ran = append(ran, "compile")
			return nil
		}},
	}
	publish := testStep{name: "publish", next: StatePublished, fn: func(*Execution) error {
		ran = append(ran, "publish")
		return nil
	}}

	err := runPipeline(context.Background(), exec, steps, publish, nil)
	if err == nil {
		t.Fatal("expected error")
	}

	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("error type = %T, want *StepError", err)
	}
	if stepErr.Step != "toolchain" {
		t.Errorf("failed step = %q, want toolchain", stepErr.Step)
	}
	if exec.State != StateFailed {
		t.Errorf("state = %s, want %s", exec.State, StateFailed)
	}
	if want := []string{"checkout", "toolchain"}; strings.Join(ran, ",") != strings.Join(want, ",") {
		t.Errorf("ran = %v, want %v", ran, want)
	}
}

func TestRunPipelineOnAdvanceErrorIsFatal(t *testing.T) {
	exec := newTestExecution(t, TriggerEvent{Kind: TriggerPush, Ref: "master", RefType: RefBranch})

	onAdvance := func(*Execution) error { return errors.New("db down") }
	err := runPipeline(context.Background(), exec, noopSteps(), testStep{name: "publish", next: StatePublished}, onAdvance)
	if err == nil {
		t.Fatal("expected error")
	}
	if exec.State != StateFailed {
		t.Errorf("state = %s, want %s", exec.State, StateFailed)
	}
}

func TestCheckoutPrefersCommitSHA(t *testing.T) {
	runner := &fakeRunner{}
	exec := newTestExecution(t, TriggerEvent{
		Kind:      TriggerPush,
		Ref:       "master",
		RefType:   RefBranch,
		CommitSHA: "0a1b2c3d",
	})

	if err := (checkoutStep{runner: runner}).Run(context.Background(), exec); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{
		"git clone --no-checkout https://github.com/happyhavoc/satsuki .",
		"git checkout --detach 0a1b2c3d",
	}
	if len(runner.commands) != len(want) {
		t.Fatalf("commands = %v, want %v", runner.commands, want)
	}
	for i := range want {
		if runner.commands[i] != want[i] {
			t.Errorf("command[%d] = %q, want %q", i, runner.commands[i], want[i])
		}
	}
}

func TestCheckoutFallsBackToRef(t *testing.T) {
	runner := &fakeRunner{}
	exec := newTestExecution(t, TriggerEvent{Kind: TriggerPush, Ref: "v1.2.3", RefType: RefTag})

	if err := (checkoutStep{runner: runner}).Run(context.Background(), exec); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := runner.commands[len(runner.commands)-1]; got != "git checkout --detach v1.2.3" {
		t.Errorf("checkout command = %q", got)
	}
}

func TestToolchainDefaultCommands(t *testing.T) {
	runner := &fakeRunner{}
	exec := newTestExecution(t, TriggerEvent{Kind: TriggerManual, Ref: "master", RefType: RefBranch})

	if err := (toolchainStep{runner: runner}).Run(context.Background(), exec); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{
		"rustup toolchain install stable --profile minimal",
		"rustup target add x86_64-pc-windows-msvc --toolchain stable",
	}
	for i := range want {
		if runner.commands[i] != want[i] {
			t.Errorf("command[%d] = %q, want %q", i, runner.commands[i], want[i])
		}
	}
}

func TestToolchainCommandOverride(t *testing.T) {
	runner := &fakeRunner{}
	exec := newTestExecution(t, TriggerEvent{Kind: TriggerManual, Ref: "master", RefType: RefBranch})
	exec.Def.Toolchain.Commands = []string{"make toolchain"}

	if err := (toolchainStep{runner: runner}).Run(context.Background(), exec); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(runner.commands) != 1 || runner.commands[0] != "make toolchain" {
		t.Errorf("commands = %v", runner.commands)
	}
}

func TestCompileVerifiesOutput(t *testing.T) {
	exec := newTestExecution(t, TriggerEvent{Kind: TriggerPush, Ref: "master", RefType: RefBranch})
	output := filepath.Join(exec.WorkDir, filepath.FromSlash(exec.Def.Build.Output))

	runner := &fakeRunner{onRun: func(name string, args []string) error {
		if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
			return err
		}
		return os.WriteFile(output, []byte("MZbinary"), 0o755)
	}}

	if err := (compileStep{runner: runner}).Run(context.Background(), exec); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if exec.BinaryPath != output {
		t.Errorf("BinaryPath = %q, want %q", exec.BinaryPath, output)
	}
}

func TestCompileFailureRemovesPartialOutput(t *testing.T) {
	exec := newTestExecution(t, TriggerEvent{Kind: TriggerPush, Ref: "master", RefType: RefBranch})
	output := filepath.Join(exec.WorkDir, filepath.FromSlash(exec.Def.Build.Output))

	runner := &fakeRunner{
		failOn: "cargo",
		onRun: func(name string, args []string) error {
			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				return err
			}
			return os.WriteFile(output, []byte("partial"), 0o755)
		},
	}

	if err := (compileStep{runner: runner}).Run(context.Background(), exec); err == nil {
		t.Fatal("expected compile error")
	}
	if _, err := os.Stat(output); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("partial output still present: %v", err)
	}
	if exec.BinaryPath != "" {
		t.Errorf("BinaryPath = %q, want empty", exec.BinaryPath)
	}
}

func TestCompileMissingOutput(t *testing.T) {
	exec := newTestExecution(t, TriggerEvent{Kind: TriggerPush, Ref: "master", RefType: RefBranch})
	runner := &fakeRunner{}

	if err := (compileStep{runner: runner}).Run(context.Background(), exec); err == nil {
		t.Fatal("expected error for missing build output")
	}
}
