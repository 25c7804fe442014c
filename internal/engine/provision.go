package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ggufMagic is the artifact header written by every GGUF export.
var ggufMagic = []byte("GGUF")

// minArtifactSize guards against truncated downloads. Even the smallest
// quantized models are far larger than this.
const minArtifactSize = 16 << 20 // 16MB

// Provisioner locates and validates the on-device model artifact.
type Provisioner struct {
	dir  string
	name string
}

// NewProvisioner creates a provisioner searching dir for an artifact matching
// the model name.
func NewProvisioner(dir, name string) *Provisioner {
	return &Provisioner{dir: dir, name: name}
}

// EnsureModel returns the filesystem path of a valid model artifact, or a
// descriptive error when none can be located.
func (p *Provisioner) EnsureModel(ctx context.Context) (string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return "", fmt.Errorf("%w: read model dir %s: %v", ErrModelNotFound, p.dir, err)
	}

	var candidates []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".gguf") {
			continue
		}
		// Prefer an artifact named after the configured model.
		if strings.Contains(strings.ToLower(entry.Name()), strings.ToLower(p.name)) {
			candidates = append([]string{entry.Name()}, candidates...)
		} else {
			candidates = append(candidates, entry.Name())
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: no .gguf artifact in %s", ErrModelNotFound, p.dir)
	}

	var lastErr error
	for _, name := range candidates {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		path := filepath.Join(p.dir, name)
		if err := validateArtifact(path); err != nil {
			lastErr = err
			continue
		}
		return path, nil
	}
	return "", fmt.Errorf("%w: %v", ErrModelInvalid, lastErr)
}

func validateArtifact(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() < minArtifactSize {
		return fmt.Errorf("%s: size %d below minimum %d", path, info.Size(), minArtifactSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	header := make([]byte, len(ggufMagic))
	if _, err := io.ReadFull(f, header); err != nil {
		return fmt.Errorf("read header %s: %w", path, err)
	}
	if !bytes.Equal(header, ggufMagic) {
		return fmt.Errorf("%s: bad magic %q", path, header)
	}
	return nil
}
