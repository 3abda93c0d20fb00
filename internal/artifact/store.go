// Package artifact stores notice PDFs on the local filesystem. Every
// processed entry ends with exactly one file under the store root, grouped
// by category (and by product for recalls).
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Store implements notices.ArtifactStore rooted at a directory. Put returns
// the absolute path of the written file.
type Store struct {
	root   string
	logger *zap.Logger
}

// New creates the store, making the root directory if needed.
func New(root string, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("artifact root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact root %s: %w", root, err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact root %s: %w", root, err)
	}
	return &Store{root: abs, logger: logger}, nil
}

// Root returns the absolute store root.
func (s *Store) Root() string {
	return s.root
}

// Put writes data under the store root and returns the absolute path.
// relPath is slash-separated; writes outside the root are rejected.
func (s *Store) Put(ctx context.Context, relPath string, _ string, data []byte) (string, error) {
	if strings.TrimSpace(relPath) == "" {
		return "", fmt.Errorf("artifact path is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full := filepath.Clean(filepath.Join(s.root, filepath.FromSlash(relPath)))
	if !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact path %q escapes the store root", relPath)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	s.logger.Debug("artifact written",
		zap.String("path", full),
		zap.Int("bytes", len(data)))
	return full, nil
}
