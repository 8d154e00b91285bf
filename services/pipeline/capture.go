package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ObjectStore is the subset of the S3 client the capture step needs.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, sha256 string) error
}

// captureStep wraps the compiled binary with a signed manifest into a tar.zst
// bundle and uploads it to the artifact store. The captured artifact persists
// regardless of what later steps do.
type captureStep struct {
	store  ObjectStore
	bucket string
	signer *Signer
	now    func() time.Time
}

func (captureStep) Name() string { return "capture" }
func (captureStep) Next() State  { return StateArtifactCaptured }

func (s captureStep) Run(ctx context.Context, exec *Execution) error {
	if exec.BinaryPath == "" {
		return errors.New("no compiled binary to capture")
	}
	if s.store == nil {
		return errors.New("artifact store not configured")
	}
	if s.signer == nil {
		return errors.New("signer not configured")
	}
	now := s.now
	if now == nil {
		now = time.Now
	}

	binaryName := exec.Def.BinaryName()
	binarySHA, binarySize, err := hashFile(exec.BinaryPath)
	if err != nil {
		return fmt.Errorf("hash binary: %w", err)
	}

	manifest := &Manifest{
		Version:          "1",
		CreatedAt:        now().UTC().Truncate(time.Second),
		Pipeline:         exec.Def.Name,
		RunID:            exec.RunID.String(),
		Ref:              exec.Event.Ref,
		RefType:          string(exec.Event.RefType),
		CommitSHA:        exec.Event.CommitSHA,
		Target:           exec.Def.Toolchain.Target,
		Signer:           s.signer.Recipient(),
		SigningPublicKey: s.signer.PublicKeyBase64(),
		Artifacts: []ManifestArtifact{
			{Path: binaryName, Kind: "binary", Size: binarySize, SHA256: binarySHA},
		},
	}

	payload, err := manifest.SigningBytes()
	if err != nil {
		return fmt.Errorf("marshal manifest for signing: %w", err)
	}
	sig, err := s.signer.Sign(payload)
	if err != nil {
		return fmt.Errorf("sign manifest: %w", err)
	}
	manifest.Signature = sig

	artifactName := exec.Def.Artifact.Name
	bundlePath := filepath.Join(exec.WorkDir, artifactName+".tar.zst")
	if err := WriteBundle(bundlePath, manifest, map[string]string{binaryName: exec.BinaryPath}); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}

	bundleSHA, bundleSize, err := hashFile(bundlePath)
	if err != nil {
		return fmt.Errorf("hash bundle: %w", err)
	}

	artifactID := uuid.New()
	key := fmt.Sprintf("bundles/%s/%s/%s.tar.zst", artifactName, exec.RunID, artifactName)

	bundle, err := os.Open(bundlePath)
	if err != nil {
		return fmt.Errorf("open bundle: %w", err)
	}
	defer bundle.Close()

	if err := s.store.PutObject(ctx, s.bucket, key, bundle, bundleSize, bundleSHA); err != nil {
		return fmt.Errorf("upload bundle: %w", err)
	}

	exec.Artifact = &CapturedArtifact{
		ID:         artifactID,
		Name:       artifactName,
		Kind:       "bundle",
		BinaryName: binaryName,
		SHA256:     binarySHA,
		Size:       binarySize,
		URL:        fmt.Sprintf("s3://%s/%s", s.bucket, key),
	}
	exec.Logf("captured %s (%d bytes, sha256 %s)", artifactName, binarySize, binarySHA)
	return nil
}

func hashFile(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	hash := sha256.New()
	size, err := io.Copy(hash, file)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hash.Sum(nil)), size, nil
}
