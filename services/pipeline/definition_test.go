package pipeline

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDefinition(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write definition: %v", err)
	}
	return path
}

func TestLoadDefinitionDefaults(t *testing.T) {
	path := writeDefinition(t, `
name: satsuki
repo: https://github.com/happyhavoc/satsuki
triggers:
  push:
    branches: [master]
    tags: ["*"]
  pull_request:
    branches: [master]
  dispatch: true
build:
  output: target/x86_64-pc-windows-msvc/release/satsuki.exe
artifact:
  name: win64-satsuki
`)

	def, err := LoadDefinition(path)
	if err != nil {
		t.Fatalf("LoadDefinition() error = %v", err)
	}

	if def.Toolchain.Channel != "stable" {
		t.Errorf("channel = %q, want stable", def.Toolchain.Channel)
	}
	if def.Toolchain.Target != "x86_64-pc-windows-msvc" {
		t.Errorf("target = %q, want x86_64-pc-windows-msvc", def.Toolchain.Target)
	}
	if def.Build.Profile != "release" {
		t.Errorf("profile = %q, want release", def.Build.Profile)
	}
	if def.BinaryName() != "satsuki.exe" {
		t.Errorf("BinaryName() = %q, want satsuki.exe", def.BinaryName())
	}
}

func TestLoadDefinitionValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing name",
			content: `
repo: https://example.com/repo
triggers:
  dispatch: true
build:
  output: out/bin
artifact:
  name: bin
`,
		},
		{
			name: "missing repo",
			content: `
name: thing
triggers:
  dispatch: true
build:
  output: out/bin
artifact:
  name: bin
`,
		},
		{
			name: "no triggers",
			content: `
name: thing
repo: https://example.com/repo
build:
  output: out/bin
artifact:
  name: bin
`,
		},
		{
			name: "missing output",
			content: `
name: thing
repo: https://example.com/repo
triggers:
  dispatch: true
artifact:
  name: bin
`,
		},
		{
			name: "bad tag pattern",
			content: `
name: thing
repo: https://example.com/repo
triggers:
  push:
    tags: ["["]
build:
  output: out/bin
artifact:
  name: bin
`,
		},
		{
			name: "quoted toolchain command",
			content: `
name: thing
repo: https://example.com/repo
triggers:
  dispatch: true
toolchain:
  commands:
    - bash -c 'rustup toolchain install stable'
build:
  output: out/bin
artifact:
  name: bin
`,
		},
		{
			name: "quoted build command",
			content: `
name: thing
repo: https://example.com/repo
triggers:
  dispatch: true
build:
  command: sh -c "cargo build --release"
  output: out/bin
artifact:
  name: bin
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeDefinition(t, tt.content)
			if _, err := LoadDefinition(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDefaultDefinitionIsValid(t *testing.T) {
	def := DefaultDefinition()
	if err := def.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if def.Artifact.Name != "win64-satsuki" {
		t.Errorf("artifact name = %q, want win64-satsuki", def.Artifact.Name)
	}
}

func TestArtifactNameFallsBackToPipelineName(t *testing.T) {
	path := writeDefinition(t, `
name: thing
repo: https://example.com/repo
triggers:
  dispatch: true
build:
  output: out/bin
`)

	def, err := LoadDefinition(path)
	if err != nil {
		t.Fatalf("LoadDefinition() error = %v", err)
	}
	if def.Artifact.Name != "thing" {
		t.Errorf("artifact name = %q, want thing", def.Artifact.Name)
	}
}
