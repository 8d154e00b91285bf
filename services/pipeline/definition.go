package pipeline

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition describes one pipeline: what triggers it, which toolchain and
// target it builds with, and what artifact it captures. Loaded from YAML.
type Definition struct {
	Name      string        `yaml:"name"`
	Repo      string        `yaml:"repo"`
	Triggers  Triggers      `yaml:"triggers"`
	Toolchain Toolchain     `yaml:"toolchain"`
	Build     BuildSpec     `yaml:"build"`
	Artifact  ArtifactSpec  `yaml:"artifact"`
}

// Triggers declares which platform events start a run.
type Triggers struct {
	Push        PushTrigger        `yaml:"push"`
	PullRequest PullRequestTrigger `yaml:"pull_request"`
	Dispatch    bool               `yaml:"dispatch"`
}

// PushTrigger matches pushed branches by name and pushed tags by glob.
type PushTrigger struct {
	Branches []string `yaml:"branches"`
	Tags     []string `yaml:"tags"`
}

// PullRequestTrigger matches pull requests by target branch.
type PullRequestTrigger struct {
	Branches []string `yaml:"branches"`
}

// Toolchain pins the compiler channel and target triple. Commands override
// the default provisioning commands; each entry is split on whitespace with
// no shell quoting, so arguments cannot contain spaces.
type Toolchain struct {
	Channel  string   `yaml:"channel"`
	Target   string   `yaml:"target"`
	Commands []string `yaml:"commands"`
}

// BuildSpec pins the build profile, command, and output binary path relative
// to the working copy. Command is split on whitespace with no shell quoting.
type BuildSpec struct {
	Profile string `yaml:"profile"`
	Command string `yaml:"command"`
	Output  string `yaml:"output"`
}

// ArtifactSpec names the captured artifact.
type ArtifactSpec struct {
	Name string `yaml:"name"`
}

// Default values mirror the satsuki release pipeline.
const (
	defaultChannel      = "stable"
	defaultTarget       = "x86_64-pc-windows-msvc"
	defaultProfile      = "release"
	defaultBranch       = "master"
	defaultOutput       = "target/x86_64-pc-windows-msvc/release/satsuki.exe"
	defaultArtifactName = "win64-satsuki"
)

// DefaultDefinition returns the built-in satsuki pipeline: push to master or
// any tag, pull requests against master, and manual dispatch.
func DefaultDefinition() *Definition {
	return &Definition{
		Name: "satsuki",
		Repo: "https://github.com/happyhavoc/satsuki",
		Triggers: Triggers{
			Push: PushTrigger{
				Branches: []string{defaultBranch},
				Tags:     []string{"*"},
			},
			PullRequest: PullRequestTrigger{
				Branches: []string{defaultBranch},
			},
			Dispatch: true,
		},
		Toolchain: Toolchain{
			Channel: defaultChannel,
			Target:  defaultTarget,
		},
		Build: BuildSpec{
			Profile: defaultProfile,
			Output:  defaultOutput,
		},
		Artifact: ArtifactSpec{
			Name: defaultArtifactName,
		},
	}
}

// LoadDefinition reads and validates a pipeline definition from a YAML file,
// applying defaults for omitted toolchain and build fields.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}

	def.applyDefaults()
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

func (d *Definition) applyDefaults() {
	if d.Toolchain.Channel == "" {
		d.Toolchain.Channel = defaultChannel
	}
	if d.Toolchain.Target == "" {
		d.Toolchain.Target = defaultTarget
	}
	if d.Build.Profile == "" {
		d.Build.Profile = defaultProfile
	}
	if d.Artifact.Name == "" && d.Name != "" {
		d.Artifact.Name = d.Name
	}
}

// Validate reports the first problem that would prevent the definition from
// producing a deterministic run.
func (d *Definition) Validate() error {
	if d == nil {
		return errors.New("nil definition")
	}
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("definition: name is required")
	}
	if strings.TrimSpace(d.Repo) == "" {
		return errors.New("definition: repo is required")
	}
	if strings.TrimSpace(d.Build.Output) == "" {
		return errors.New("definition: build.output is required")
	}
	if strings.TrimSpace(d.Artifact.Name) == "" {
		return errors.New("definition: artifact.name is required")
	}
	if !hasTriggers(d.Triggers) {
		return errors.New("definition: at least one trigger is required")
	}
	for _, pattern := range d.Triggers.Push.Tags {
		if _, err := matchGlob(pattern, "probe"); err != nil {
			return fmt.Errorf("definition: bad tag pattern %q: %w", pattern, err)
		}
	}
	for _, command := range d.Toolchain.Commands {
		if err := validateCommand("toolchain.commands", command); err != nil {
			return err
		}
	}
	if err := validateCommand("build.command", d.Build.Command); err != nil {
		return err
	}
	return nil
}

// validateCommand rejects commands that would mis-tokenize: they are split on
// whitespace, so quoting has no effect and quoted arguments break apart.
func validateCommand(field, command string) error {
	if strings.ContainsAny(command, `"'`) {
		return fmt.Errorf("definition: %s: quotes are not supported, commands are split on whitespace: %q", field, command)
	}
	return nil
}

func hasTriggers(t Triggers) bool {
	return len(t.Push.Branches) > 0 || len(t.Push.Tags) > 0 ||
		len(t.PullRequest.Branches) > 0 || t.Dispatch
}

// BinaryName returns the file name of the build output.
func (d *Definition) BinaryName() string {
	out := d.Build.Output
	if idx := strings.LastIndexByte(out, '/'); idx >= 0 {
		return out[idx+1:]
	}
	return out
}
