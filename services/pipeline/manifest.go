package pipeline

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest is the signed metadata included in captured artifact bundles. It
// pins the run that produced the binary so a bundle can be traced back to an
// exact revision.
type Manifest struct {
	Version          string             `yaml:"version"`
	CreatedAt        time.Time          `yaml:"created_at"`
	Pipeline         string             `yaml:"pipeline"`
	RunID            string             `yaml:"run_id"`
	Ref              string             `yaml:"ref"`
	RefType          string             `yaml:"ref_type"`
	CommitSHA        string             `yaml:"commit_sha,omitempty"`
	Target           string             `yaml:"target"`
	Signer           string             `yaml:"signer,omitempty"`
	SigningPublicKey string             `yaml:"signing_public_key,omitempty"`
	Signature        string             `yaml:"signature,omitempty"`
	Artifacts        []ManifestArtifact `yaml:"artifacts"`
}

// ManifestArtifact describes a single file within the bundle.
type ManifestArtifact struct {
	Path   string `yaml:"path"`
	Kind   string `yaml:"kind"`
	Size   int64  `yaml:"size"`
	SHA256 string `yaml:"sha256"`
}

// SigningBytes marshals the manifest without its signature for signing and
// verification.
func (m Manifest) SigningBytes() ([]byte, error) {
	clone := m
	clone.Signature = ""
	return yaml.Marshal(clone)
}
