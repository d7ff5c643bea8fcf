// Package artifact persists best-effort diagnostic files (screenshots, HTML
// dumps) written by backends into the shared working directory. Failures here
// are logged and never abort a fetch.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Mirror receives a copy of every saved artifact. Implementations must be
// safe for concurrent use.
type Mirror interface {
	Put(ctx context.Context, name, contentType string, data []byte) error
}

// Config captures the parameters for the artifact store.
type Config struct {
	// Dir is the working directory artifacts are written into.
	Dir string
	// Mirror optionally replicates artifacts to remote storage.
	Mirror Mirror
	Logger *zap.Logger
}

// Store writes artifacts to the local filesystem, mirroring them when a
// Mirror is configured. Filenames derive from target nicknames, so callers
// must keep nicknames unique per concurrent fetch.
type Store struct {
	dir    string
	mirror Mirror
	logger *zap.Logger
}

// NewStore creates the working directory if absent and returns a Store.
func NewStore(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("artifact directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Store{dir: cfg.Dir, mirror: cfg.Mirror, logger: cfg.Logger}, nil
}

// Dir returns the directory artifacts are written into.
func (s *Store) Dir() string {
	return s.dir
}

// SaveHTML writes an HTML dump keyed by nickname and returns its path.
func (s *Store) SaveHTML(ctx context.Context, nickname string, body []byte) (string, error) {
	return s.save(ctx, nickname, ".html", "text/html; charset=utf-8", body)
}

// SavePNG writes a screenshot keyed by nickname and returns its path.
func (s *Store) SavePNG(ctx context.Context, nickname string, data []byte) (string, error) {
	return s.save(ctx, nickname, ".png", "image/png", data)
}

func (s *Store) save(ctx context.Context, nickname, ext, contentType string, data []byte) (string, error) {
	name, err := SafeName(nickname)
	if err != nil {
		return "", fmt.Errorf("artifact name from nickname %q: %w", nickname, err)
	}
	path := filepath.Join(s.dir, name+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if s.mirror != nil {
		if err := s.mirror.Put(ctx, name+ext, contentType, data); err != nil {
			s.logger.Warn("artifact mirror failed",
				zap.String("name", name+ext),
				zap.Error(err))
		}
	}
	return path, nil
}

// SafeName sanitizes a nickname into a filename component. Runes outside
// [A-Za-z0-9._-] become underscores and leading dots are stripped, so the
// result can never escape the artifact directory. Nicknames that sanitize to
// nothing are rejected.
func SafeName(nickname string) (string, error) {
	trimmed := strings.TrimSpace(nickname)
	var b strings.Builder
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := strings.TrimLeft(b.String(), ".")
	if name == "" || strings.Trim(name, "._-") == "" {
		return "", fmt.Errorf("nickname has no usable characters")
	}
	return name, nil
}
