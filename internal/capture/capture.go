// Package capture appends extracted (tenant, token) pairs to a durable,
// append-only text file and reads them back.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Record markers of the capture file format.
const (
	TenantMarker = "tenantId"
	BearerMarker = "bearer"
	Separator    = "---"
)

// ErrIncompletePair is returned by Validate when either half of a pair is missing.
var ErrIncompletePair = errors.New("capture pair requires both tenant id and token")

// Pair is one extracted credential set. URL is provenance for logs; it is not
// part of the file record.
type Pair struct {
	TenantID string
	Token    string
	URL      string
}

// Validate reports ErrIncompletePair when the pair cannot be written.
func (p Pair) Validate() error {
	if p.TenantID == "" || p.Token == "" {
		return ErrIncompletePair
	}
	return nil
}

// Block renders the six-line record for the pair.
func (p Pair) Block() string {
	return strings.Join([]string{TenantMarker, p.TenantID, BearerMarker, p.Token, Separator, "", ""}, "\n")
}

// Sink is anything that durably stores captured pairs.
type Sink interface {
	Capture(ctx context.Context, p Pair) (bool, error)
}

// FileSink appends pairs to a file. It never truncates, rewrites or
// deduplicates; repeated captures of the same pair accumulate.
type FileSink struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewFileSink resolves path against the working directory.
func NewFileSink(path string, logger *zap.Logger) (*FileSink, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve capture file path %q: %w", path, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSink{path: abs, logger: logger.Named("capture")}, nil
}

// Path returns the absolute path of the capture file.
func (s *FileSink) Path() string { return s.path }

// Capture appends one block. Incomplete pairs are skipped and report false
// with a nil error.
func (s *FileSink) Capture(ctx context.Context, p Pair) (bool, error) {
	if err := p.Validate(); err != nil {
		s.logger.Debug("Skipping incomplete pair", zap.String("url", p.URL),
			zap.Bool("has_tenant", p.TenantID != ""), zap.Bool("has_token", p.Token != ""))
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return false, fmt.Errorf("failed to open capture file: %w", err)
	}

	if _, err := f.WriteString(p.Block()); err != nil {
		_ = f.Close()
		return false, fmt.Errorf("failed to append capture: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("failed to close capture file: %w", err)
	}

	s.logger.Info("Captured tenant/token pair", zap.String("path", s.path), zap.String("url", p.URL))
	return true, nil
}
