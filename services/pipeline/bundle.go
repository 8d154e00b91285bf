package pipeline

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

const (
	manifestFileName   = "manifest.yaml"
	artifactsTarPrefix = "artifacts"
)

// WriteBundle writes a tar.zst bundle containing the marshalled manifest
// followed by the named files under the artifacts/ prefix. files maps bundle
// paths (slash separated) to local paths.
func WriteBundle(output string, manifest *Manifest, files map[string]string) error {
	if manifest == nil {
		return errors.New("nil manifest")
	}

	manifestBytes, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	dir := filepath.Dir(output)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil && !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer file.Close()

	encoder, err := zstd.NewWriter(file)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	defer encoder.Close()

	tw := tar.NewWriter(encoder)
	defer tw.Close()

	manifestHeader := &tar.Header{
		Name:     manifestFileName,
		Mode:     0o644,
		Size:     int64(len(manifestBytes)),
		ModTime:  time.Now().UTC(),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(manifestHeader); err != nil {
		return fmt.Errorf("write manifest header: %w", err)
	}
	if _, err := tw.Write(manifestBytes); err != nil {
		return fmt.Errorf("write manifest body: %w", err)
	}

	for bundlePath, localPath := range files {
		info, err := os.Stat(localPath)
		if err != nil {
			return fmt.Errorf("stat %q: %w", bundlePath, err)
		}
		src, err := os.Open(localPath)
		if err != nil {
			return fmt.Errorf("open %q: %w", bundlePath, err)
		}

		header := &tar.Header{
			Name:     artifactsTarPrefix + "/" + strings.TrimPrefix(bundlePath, "/"),
			Mode:     int64(info.Mode().Perm()),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(header); err != nil {
			src.Close()
			return fmt.Errorf("write header for %q: %w", bundlePath, err)
		}
		if _, err := io.Copy(tw, src); err != nil {
			src.Close()
			return fmt.Errorf("copy %q: %w", bundlePath, err)
		}
		src.Close()
	}

	return nil
}

// BundleEntry is one file found inside a bundle, with its digest computed
// while reading.
type BundleEntry struct {
	Path   string
	Size   int64
	SHA256 string
}

// ReadBundle opens a tar.zst bundle and returns its manifest and entries.
// It streams each entry through sha256 so callers can check the digests
// against the manifest without extracting anything.
func ReadBundle(path string) (*Manifest, []BundleEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open bundle: %w", err)
	}
	defer file.Close()

	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer decoder.Close()

	tr := tar.NewReader(decoder)

	var (
		manifest *Manifest
		entries  []BundleEntry
	)

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read tar entry: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.ToSlash(filepath.Clean(header.Name))
		if name == manifestFileName {
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, nil, fmt.Errorf("read manifest: %w", err)
			}
			var m Manifest
			if err := yaml.Unmarshal(data, &m); err != nil {
				return nil, nil, fmt.Errorf("unmarshal manifest: %w", err)
			}
			manifest = &m
			continue
		}

		if !strings.HasPrefix(name, artifactsTarPrefix+"/") {
			continue
		}

		hash := sha256.New()
		size, err := io.Copy(hash, tr)
		if err != nil {
			return nil, nil, fmt.Errorf("hash %q: %w", name, err)
		}
		entries = append(entries, BundleEntry{
			Path:   strings.TrimPrefix(name, artifactsTarPrefix+"/"),
			Size:   size,
			SHA256: hex.EncodeToString(hash.Sum(nil)),
		})
	}

	if manifest == nil {
		return nil, nil, errors.New("bundle missing manifest.yaml")
	}
	return manifest, entries, nil
}

// VerifyBundle checks the manifest signature and every entry digest against
// the manifest. The signer may carry only a public key.
func VerifyBundle(manifest *Manifest, entries []BundleEntry, signer *Signer) error {
	if manifest == nil {
		return errors.New("nil manifest")
	}
	if manifest.Version != "1" {
		return fmt.Errorf("unsupported manifest version %q", manifest.Version)
	}
	if manifest.Signature == "" {
		return errors.New("manifest missing signature")
	}

	payload, err := manifest.SigningBytes()
	if err != nil {
		return fmt.Errorf("marshal manifest for verification: %w", err)
	}
	if err := signer.Verify(payload, manifest.Signature, manifest.SigningPublicKey); err != nil {
		return fmt.Errorf("verify manifest signature: %w", err)
	}

	byPath := make(map[string]BundleEntry, len(entries))
	for _, entry := range entries {
		byPath[entry.Path] = entry
	}
	for _, art := range manifest.Artifacts {
		entry, ok := byPath[art.Path]
		if !ok {
			return fmt.Errorf("artifact %q missing from archive", art.Path)
		}
		if entry.Size != art.Size {
			return fmt.Errorf("size mismatch for %q: expected %d got %d", art.Path, art.Size, entry.Size)
		}
		if !strings.EqualFold(entry.SHA256, art.SHA256) {
			return fmt.Errorf("sha256 mismatch for %q", art.Path)
		}
	}
	return nil
}
