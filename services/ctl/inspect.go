package ctl

import (
	"errors"
	"fmt"
	"io"
	"time"

	"shipd/services/pipeline"
)

// InspectConfig drives a bundle inspection. Signer is optional; without it the
// manifest signature is reported but not checked.
type InspectConfig struct {
	BundlePath string
	Signer     *pipeline.Signer
	Stdout     io.Writer
}

// Inspect reads a bundle, prints its manifest and contents, and verifies the
// signature and per-file digests when a signer is configured.
func Inspect(cfg InspectConfig) error {
	if cfg.BundlePath == "" {
		return errors.New("bundle path is required")
	}
	if cfg.Stdout == nil {
		return errors.New("stdout writer is required")
	}

	manifest, entries, err := pipeline.ReadBundle(cfg.BundlePath)
	if err != nil {
		return fmt.Errorf("read bundle: %w", err)
	}

	fmt.Fprintf(cfg.Stdout, "pipeline:   %s\n", manifest.Pipeline)
	fmt.Fprintf(cfg.Stdout, "run:        %s\n", manifest.RunID)
	fmt.Fprintf(cfg.Stdout, "ref:        %s/%s\n", manifest.RefType, manifest.Ref)
	if manifest.CommitSHA != "" {
		fmt.Fprintf(cfg.Stdout, "commit:     %s\n", manifest.CommitSHA)
	}
	fmt.Fprintf(cfg.Stdout, "target:     %s\n", manifest.Target)
	fmt.Fprintf(cfg.Stdout, "created:    %s\n", manifest.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(cfg.Stdout, "signed by:  %s\n", manifest.Signer)

	for _, entry := range entries {
		fmt.Fprintf(cfg.Stdout, "  %s\t%d\t%s\n", entry.Path, entry.Size, entry.SHA256)
	}

	if cfg.Signer == nil {
		fmt.Fprintln(cfg.Stdout, "signature:  not verified (no key configured)")
		return nil
	}

	if err := pipeline.VerifyBundle(manifest, entries, cfg.Signer); err != nil {
		return fmt.Errorf("verify bundle: %w", err)
	}
	fmt.Fprintln(cfg.Stdout, "signature:  ok")
	return nil
}
