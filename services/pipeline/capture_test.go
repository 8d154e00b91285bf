package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

type fakeObjectStore struct {
	bucket string
	key    string
	data   []byte
	sha256 string
}

func (f *fakeObjectStore) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, sha string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.bucket = bucket
	f.key = key
	f.data = data
	f.sha256 = sha
	return nil
}

func TestCaptureStep(t *testing.T) {
	signer := newTestSigner(t)
	store := &fakeObjectStore{}

	exec := newTestExecution(t, TriggerEvent{
		Kind:      TriggerPush,
		Ref:       "v1.2.3",
		RefType:   RefTag,
		CommitSHA: "0a1b2c3d",
	})
	exec.State = StateCompiled

	binary := []byte("MZ fake windows binary")
	exec.BinaryPath = filepath.Join(exec.WorkDir, "satsuki.exe")
	if err := os.WriteFile(exec.BinaryPath, binary, 0o755); err != nil {
		t.Fatalf("write binary: %v", err)
	}

	step := captureStep{store: store, bucket: "artifacts", signer: signer}
	if err := step.Run(context.Background(), exec); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	art := exec.Artifact
	if art == nil {
		t.Fatal("no captured artifact")
	}
	if art.Name != "win64-satsuki" {
		t.Errorf("name = %q, want win64-satsuki", art.Name)
	}
	if art.BinaryName != "satsuki.exe" {
		t.Errorf("binary name = %q, want satsuki.exe", art.BinaryName)
	}

	wantSHA := sha256.Sum256(binary)
	if art.SHA256 != hex.EncodeToString(wantSHA[:]) {
		t.Errorf("sha256 = %q, want digest of binary", art.SHA256)
	}
	if art.Size != int64(len(binary)) {
		t.Errorf("size = %d, want %d", art.Size, len(binary))
	}
	if !strings.HasPrefix(art.URL, "s3://artifacts/bundles/win64-satsuki/") {
		t.Errorf("url = %q", art.URL)
	}
	if store.key == "" || !strings.HasSuffix(store.key, "win64-satsuki.tar.zst") {
		t.Errorf("uploaded key = %q", store.key)
	}

	// The uploaded object digest must match what was sent.
	uploadedSHA := sha256.Sum256(store.data)
	if store.sha256 != hex.EncodeToString(uploadedSHA[:]) {
		t.Error("uploaded sha256 does not match uploaded bytes")
	}
}

func TestCaptureBundleRoundTrip(t *testing.T) {
	signer := newTestSigner(t)
	store := &fakeObjectStore{}

	exec := newTestExecution(t, TriggerEvent{Kind: TriggerPush, Ref: "v1.2.3", RefType: RefTag})
	exec.State = StateCompiled
	exec.BinaryPath = filepath.Join(exec.WorkDir, "satsuki.exe")
	if err := os.WriteFile(exec.BinaryPath, []byte("binary contents"), 0o755); err != nil {
		t.Fatalf("write binary: %v", err)
	}

	step := captureStep{store: store, bucket: "artifacts", signer: signer}
	if err := step.Run(context.Background(), exec); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Re-read the uploaded bundle and verify manifest signature and digests.
	bundlePath := filepath.Join(t.TempDir(), "bundle.tar.zst")
	if err := os.WriteFile(bundlePath, store.data, 0o644); err != nil {
		t.Fatalf("write bundle copy: %v", err)
	}

	manifest, entries, err := ReadBundle(bundlePath)
	if err != nil {
		t.Fatalf("ReadBundle() error = %v", err)
	}
	if manifest.Pipeline != "satsuki" {
		t.Errorf("manifest pipeline = %q", manifest.Pipeline)
	}
	if manifest.RunID != exec.RunID.String() {
		t.Errorf("manifest run id = %q, want %s", manifest.RunID, exec.RunID)
	}
	if manifest.Target != "x86_64-pc-windows-msvc" {
		t.Errorf("manifest target = %q", manifest.Target)
	}
	if len(entries) != 1 || entries[0].Path != "satsuki.exe" {
		t.Fatalf("entries = %+v", entries)
	}

	if err := VerifyBundle(manifest, entries, signer); err != nil {
		t.Fatalf("VerifyBundle() error = %v", err)
	}

	// Flipping a manifest field must break the signature.
	manifest.Ref = "v9.9.9"
	if err := VerifyBundle(manifest, entries, signer); err == nil {
		t.Fatal("expected verification failure for altered manifest")
	}
}

func TestCaptureRequiresBinary(t *testing.T) {
	exec := newTestExecution(t, TriggerEvent{Kind: TriggerPush, Ref: "master", RefType: RefBranch})
	step := captureStep{store: &fakeObjectStore{}, bucket: "artifacts", signer: newTestSigner(t)}
	if err := step.Run(context.Background(), exec); err == nil {
		t.Fatal("expected error without compiled binary")
	}
}

func TestWriteBundleCreatesParentDir(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "payload.bin")
	if err := os.WriteFile(src, bytes.Repeat([]byte{0xAB}, 64), 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}

	out := filepath.Join(dir, "nested", "out.tar.zst")
	manifest := &Manifest{Version: "1", Pipeline: "satsuki", RunID: uuid.New().String()}
	if err := WriteBundle(out, manifest, map[string]string{"payload.bin": src}); err != nil {
		t.Fatalf("WriteBundle() error = %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("bundle not written: %v", err)
	}
}
