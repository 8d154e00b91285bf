package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Execution carries the mutable state of one run through the step sequence.
// It is owned by a single goroutine for the lifetime of the run.
type Execution struct {
	RunID   uuid.UUID
	Event   TriggerEvent
	Def     *Definition
	WorkDir string
	State   State

	// Set by the compile step.
	BinaryPath string
	// Set by the capture step.
	Artifact *CapturedArtifact
	// Set by the publish step when the trigger ref is a tag.
	Release *ReleaseRecord

	logBuf binarySafeBuffer
	logger *log.Logger
}

// NewExecution prepares an execution in the start state.
func NewExecution(runID uuid.UUID, def *Definition, evt TriggerEvent, workDir string, logger *log.Logger) *Execution {
	return &Execution{
		RunID:   runID,
		Event:   evt,
		Def:     def,
		WorkDir: workDir,
		State:   StateStart,
		logger:  logger,
	}
}

// Logf appends a line to the run log and mirrors it to the service logger.
func (x *Execution) Logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	fmt.Fprintln(&x.logBuf, line)
	if x.logger != nil {
		x.logger.Printf("INFO run=%s %s", x.RunID, line)
	}
}

// LogWriter exposes the run log as a writer for command output.
func (x *Execution) LogWriter() io.Writer { return &x.logBuf }

// Logs returns everything logged so far.
func (x *Execution) Logs() string { return x.logBuf.String() }

// binarySafeBuffer strips NUL bytes so command output can be stored in a text
// column.
type binarySafeBuffer struct {
	buf bytes.Buffer
}

func (b *binarySafeBuffer) Write(p []byte) (int, error) {
	cleaned := bytes.ReplaceAll(p, []byte{0}, nil)
	if _, err := b.buf.Write(cleaned); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (b *binarySafeBuffer) String() string { return b.buf.String() }

// Step is one stage of the pipeline. Next is the state reached when Run
// succeeds; any error is fatal to the run.
type Step interface {
	Name() string
	Next() State
	Run(ctx context.Context, exec *Execution) error
}

// StepError wraps a step failure with the step that caused it.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("step %s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

// runPipeline drives the execution through the ordered steps, then applies
// the publish guard: the publish step runs iff the trigger ref is a tag,
// otherwise the run ends in the skipped-publish state. The first step failure
// aborts everything after it. onAdvance, when set, is invoked after every
// state change so the caller can persist progress; its error is fatal too.
func runPipeline(ctx context.Context, exec *Execution, steps []Step, publish Step, onAdvance func(*Execution) error) error {
	for _, step := range steps {
		if err := advance(ctx, exec, step, onAdvance); err != nil {
			return err
		}
	}

	if exec.Event.RefType != RefTag {
		exec.Logf("ref %q is not a tag, skipping publish", exec.Event.Ref)
		exec.State = StateSkippedPublish
		return notifyAdvance(exec, onAdvance)
	}
	return advance(ctx, exec, publish, onAdvance)
}

func notifyAdvance(exec *Execution, onAdvance func(*Execution) error) error {
	if onAdvance == nil {
		return nil
	}
	if err := onAdvance(exec); err != nil {
		exec.State = StateFailed
		return err
	}
	return nil
}

func advance(ctx context.Context, exec *Execution, step Step, onAdvance func(*Execution) error) error {
	if from := exec.State; !from.CanTransition(step.Next()) {
		exec.State = StateFailed
		return &StepError{Step: step.Name(), Err: fmt.Errorf("illegal transition %s -> %s", from, step.Next())}
	}
	exec.Logf("step %s starting", step.Name())
	start := time.Now()
	if err := step.Run(ctx, exec); err != nil {
		exec.Logf("step %s failed: %v", step.Name(), err)
		exec.State = StateFailed
		return &StepError{Step: step.Name(), Err: err}
	}
	stepDuration.WithLabelValues(step.Name()).Observe(time.Since(start).Seconds())
	exec.State = step.Next()
	exec.Logf("step %s done", step.Name())
	return notifyAdvance(exec, onAdvance)
}

// CommandRunner executes an external command in a directory, streaming its
// combined output to w.
type CommandRunner interface {
	Run(ctx context.Context, dir string, w io.Writer, name string, args ...string) error
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, w io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = w
	cmd.Stderr = w
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// checkoutStep clones the repository and checks out the exact triggering
// revision.
type checkoutStep struct {
	runner CommandRunner
}

func (checkoutStep) Name() string { return "checkout" }
func (checkoutStep) Next() State  { return StateCheckedOut }

func (s checkoutStep) Run(ctx context.Context, exec *Execution) error {
	w := exec.LogWriter()
	if err := s.runner.Run(ctx, exec.WorkDir, w, "git", "clone", "--no-checkout", exec.Def.Repo, "."); err != nil {
		return err
	}
	rev := exec.Event.CommitSHA
	if rev == "" {
		rev = exec.Event.Ref
	}
	if rev == "" {
		return errors.New("trigger event has no ref or commit to check out")
	}
	return s.runner.Run(ctx, exec.WorkDir, w, "git", "checkout", "--detach", rev)
}

// toolchainStep installs the pinned channel and adds the target triple. The
// definition may override the commands entirely.
type toolchainStep struct {
	runner CommandRunner
}

func (toolchainStep) Name() string { return "toolchain" }
func (toolchainStep) Next() State  { return StateToolchainReady }

func (s toolchainStep) Run(ctx context.Context, exec *Execution) error {
	tc := exec.Def.Toolchain
	commands := tc.Commands
	if len(commands) == 0 {
		commands = []string{
			fmt.Sprintf("rustup toolchain install %s --profile minimal", tc.Channel),
			fmt.Sprintf("rustup target add %s --toolchain %s", tc.Target, tc.Channel),
		}
	}

	w := exec.LogWriter()
	for _, command := range commands {
		fields := strings.Fields(command)
		if len(fields) == 0 {
			continue
		}
		if err := s.runner.Run(ctx, exec.WorkDir, w, fields[0], fields[1:]...); err != nil {
			return err
		}
	}
	return nil
}

// compileStep runs the build command and verifies the output binary exists.
// Partial output is removed on failure so no artifact survives a failed
// compilation.
type compileStep struct {
	runner CommandRunner
}

func (compileStep) Name() string { return "compile" }
func (compileStep) Next() State  { return StateCompiled }

func (s compileStep) Run(ctx context.Context, exec *Execution) error {
	def := exec.Def
	command := def.Build.Command
	if command == "" {
		command = fmt.Sprintf("cargo +%s build --target %s %s",
			def.Toolchain.Channel, def.Toolchain.Target, profileFlag(def.Build.Profile))
	}

	output := filepath.Join(exec.WorkDir, filepath.FromSlash(def.Build.Output))

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return errors.New("empty build command")
	}
	if err := s.runner.Run(ctx, exec.WorkDir, exec.LogWriter(), fields[0], fields[1:]...); err != nil {
		if removeErr := os.Remove(output); removeErr == nil {
			exec.Logf("removed partial output %s", def.Build.Output)
		}
		return err
	}

	info, err := os.Stat(output)
	if err != nil {
		return fmt.Errorf("build output missing at %s: %w", def.Build.Output, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("build output %s is not a regular file", def.Build.Output)
	}

	exec.BinaryPath = output
	return nil
}

func profileFlag(profile string) string {
	if profile == "release" {
		return "--release"
	}
	return "--profile " + profile
}
