package models

import "time"

// SourceFormat is the declared format of an uploaded database export.
type SourceFormat string

const (
	FormatSQL  SourceFormat = "sql"
	FormatJSON SourceFormat = "json"
	FormatCSV  SourceFormat = "csv"
)

// DatabaseSummary is the plain-text rendering of an uploaded data source.
// Text is passed verbatim into every prompt.
type DatabaseSummary struct {
	Text       string       `json:"text"`
	SourceName string       `json:"sourceName"`
	Format     SourceFormat `json:"format"`
	LoadedAt   time.Time    `json:"loadedAt"`
}
