package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/db-query-assistant/backend/internal/models"
	"github.com/db-query-assistant/backend/internal/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// JSONSource pretty-prints a JSON document with two-space indentation.
// Key order and number literals are kept as written.
type JSONSource struct {
	jsonLines bool
}

// NewJSONSource creates a JSON source. With opts.JSONLines set, mongoexport
// style Extended JSON (one document per line) is accepted as well.
func NewJSONSource(opts Options) *JSONSource {
	return &JSONSource{jsonLines: opts.JSONLines}
}

func (s *JSONSource) Format() models.SourceFormat { return models.FormatJSON }

func (s *JSONSource) Interpret(ctx context.Context, file *models.UploadedFile) (string, error) {
	if !utf8.Valid(file.Data) {
		return "", newParseError(models.FormatJSON, file, "JSON Error", errInvalidUTF8)
	}

	data := bytes.TrimSpace(file.Data)
	if json.Valid(data) {
		var out bytes.Buffer
		if err := json.Indent(&out, data, "", "  "); err != nil {
			return "", newParseError(models.FormatJSON, file, "JSON Error", err)
		}
		return out.String(), nil
	}

	// Recover the decoder's message for the notification.
	var decoded any
	syntaxErr := json.Unmarshal(data, &decoded)
	if syntaxErr == nil {
		syntaxErr = fmt.Errorf("invalid JSON document")
	}

	if s.jsonLines {
		text, n, err := extJSONLines(data)
		if err == nil {
			logger.FromContext(ctx).Debug("decoded extended json lines", zap.Int("documents", n))
			return text, nil
		}
	}

	return "", newParseError(models.FormatJSON, file, "JSON Error", syntaxErr)
}

// extJSONLines decodes one Extended JSON document per non-blank line and
// renders them as an indented array in relaxed Extended JSON.
func extJSONLines(data []byte) (string, int, error) {
	var docs [][]byte
	for i, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var doc bson.D
		if err := bson.UnmarshalExtJSON(line, false, &doc); err != nil {
			return "", 0, fmt.Errorf("line %d: %w", i+1, err)
		}
		raw, err := bson.MarshalExtJSON(doc, false, false)
		if err != nil {
			return "", 0, fmt.Errorf("line %d: %w", i+1, err)
		}
		docs = append(docs, raw)
	}
	if len(docs) == 0 {
		return "", 0, fmt.Errorf("no documents")
	}

	compact := append(append([]byte{'['}, bytes.Join(docs, []byte{','})...), ']')
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return "", 0, err
	}
	return out.String(), len(docs), nil
}
