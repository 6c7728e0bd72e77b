// Package upload turns an incoming file into an in-memory models.UploadedFile.
// Nothing is written to disk.
package upload

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/db-query-assistant/backend/internal/config"
	"github.com/db-query-assistant/backend/internal/models"
)

// EncodingGzip marks a gzip-compressed upload body.
const EncodingGzip = "gzip"

var (
	ErrNoFile              = errors.New("no file uploaded")
	ErrExtensionNotAllowed = errors.New("file type not allowed")
	ErrTooLarge            = errors.New("file too large")
	ErrNotGzip             = errors.New("not a gzip file")
)

// Intake validates and reads uploads.
type Intake struct {
	maxSize int64
	allowed map[string]bool
}

// NewIntake creates an Intake from the upload section of the config.
func NewIntake(cfg config.UploadConfig) *Intake {
	allowed := make(map[string]bool, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = true
	}
	return &Intake{maxSize: cfg.MaxSizeBytes, allowed: allowed}
}

// Allowed reports whether name carries an accepted extension.
func (in *Intake) Allowed(name string) bool {
	return in.allowed[strings.ToLower(filepath.Ext(name))]
}

// Extensions lists the accepted extensions, for the file picker.
func (in *Intake) Extensions() []string {
	out := make([]string, 0, len(in.allowed))
	for _, ext := range []string{".sql", ".json", ".csv"} {
		if in.allowed[ext] {
			out = append(out, ext)
		}
	}
	for ext := range in.allowed {
		if ext != ".sql" && ext != ".json" && ext != ".csv" {
			out = append(out, ext)
		}
	}
	return out
}

// FromMultipart reads one multipart file part.
func (in *Intake) FromMultipart(fh *multipart.FileHeader, encoding string) (*models.UploadedFile, error) {
	if fh == nil {
		return nil, ErrNoFile
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	return in.Read(fh.Filename, f, encoding)
}

// Read validates name and reads r. A ".gz" suffix on name implies gzip.
// The size limit applies to the decoded bytes.
func (in *Intake) Read(name string, r io.Reader, encoding string) (*models.UploadedFile, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." {
		return nil, ErrNoFile
	}

	if strings.EqualFold(filepath.Ext(name), ".gz") {
		name = strings.TrimSuffix(name, filepath.Ext(name))
		encoding = EncodingGzip
	}
	if !in.Allowed(name) {
		return nil, fmt.Errorf("%w: %s", ErrExtensionNotAllowed, name)
	}

	if strings.EqualFold(encoding, EncodingGzip) {
		zr, err := gzipReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	}

	var src io.Reader = r
	if in.maxSize > 0 {
		src = io.LimitReader(r, in.maxSize+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if in.maxSize > 0 && int64(len(data)) > in.maxSize {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, in.maxSize)
	}

	return &models.UploadedFile{
		Name: name,
		Ext:  strings.ToLower(filepath.Ext(name)),
		Size: int64(len(data)),
		Data: data,
	}, nil
}

func gzipReader(r io.Reader) (*gzip.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil || magic[0] != 0x1f || magic[1] != 0x8b {
		return nil, ErrNotGzip
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotGzip, err)
	}
	return zr, nil
}
