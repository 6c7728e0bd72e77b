package parser

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/db-query-assistant/backend/internal/metrics"
	"github.com/db-query-assistant/backend/internal/models"
	"github.com/db-query-assistant/backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// ErrUnsupportedFormat is returned for extensions without a Source.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Registry maps file extensions to the Source that interprets them.
type Registry struct {
	sources map[string]Source
}

// NewRegistry builds the SQL, JSON and CSV sources from opts.
func NewRegistry(opts Options) *Registry {
	r := &Registry{sources: make(map[string]Source, 3)}
	r.Register(".sql", NewSQLSource(opts))
	r.Register(".json", NewJSONSource(opts))
	r.Register(".csv", NewCSVSource(opts))
	return r
}

// Register binds ext (with or without leading dot) to src.
func (r *Registry) Register(ext string, src Source) {
	r.sources[normalizeExt(ext)] = src
}

// Resolve returns the Source for a file name or bare extension.
func (r *Registry) Resolve(name string) (Source, error) {
	ext := filepath.Ext(name)
	if ext == "" {
		ext = name
	}
	src, ok := r.sources[normalizeExt(ext)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	return src, nil
}

// Interpret dispatches file to its Source and records the outcome.
func (r *Registry) Interpret(ctx context.Context, file *models.UploadedFile) (string, models.SourceFormat, error) {
	ext := file.Ext
	if ext == "" {
		ext = file.Name
	}
	src, err := r.Resolve(ext)
	if err != nil {
		return "", "", err
	}

	format := src.Format()
	log := logger.FromContext(ctx).With(
		zap.String("file", file.Name),
		zap.String("format", string(format)),
		zap.Int64("size", file.Size),
	)

	start := time.Now()
	text, err := src.Interpret(ctx, file)
	elapsed := time.Since(start)
	metrics.ObserveInterpret(string(format), err == nil, elapsed)

	if err != nil {
		log.Warn("interpretation failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return "", format, err
	}
	log.Info("interpreted upload", zap.Int("summary_bytes", len(text)), zap.Duration("elapsed", elapsed))
	return text, format, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
