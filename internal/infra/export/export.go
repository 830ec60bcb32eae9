// Package export writes batch results to a file as {results, stats}.
package export

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"research-scrapers/internal/domain/entity"
)

// Format is a results serialization format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatGob  Format = "gob"
)

// ErrUnknownFormat is returned for a format other than json, yaml or gob.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat maps a format name to a Format. "yml" is accepted for YAML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "gob":
		return FormatGob, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Document is the exported file content.
type Document[T, R any] struct {
	Results []entity.ExecutionResult[T, R] `json:"results" yaml:"results"`
	Stats   entity.ExecutionStats          `json:"stats" yaml:"stats"`
}

// Encode serializes results and stats in format.
//
// JSON and YAML use the checkpoint field names. Gob keeps Go field names and is
// only meant to be read back by Decode; interface-typed items or results need
// their concrete types registered with gob.Register.
func Encode[T, R any](format Format, results []entity.ExecutionResult[T, R], stats entity.ExecutionStats) ([]byte, error) {
	if results == nil {
		results = []entity.ExecutionResult[T, R]{}
	}
	doc := Document[T, R]{Results: results, Stats: stats}

	switch format {
	case FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	case FormatYAML:
		return yaml.Marshal(doc)
	case FormatGob:
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(doc); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Decode reads a document written by Encode. YAML documents are not decoded
// because their timestamps and durations are one-way renderings.
func Decode[T, R any](format Format, data []byte) (Document[T, R], error) {
	var doc Document[T, R]
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	case FormatGob:
		err = gob.NewDecoder(bytes.NewReader(data)).Decode(&doc)
	default:
		err = fmt.Errorf("%w: cannot decode %q", ErrUnknownFormat, format)
	}
	return doc, err
}

// Save writes results and stats to path, creating parent directories.
func Save[T, R any](path string, format Format, results []entity.ExecutionResult[T, R], stats entity.ExecutionStats) error {
	data, err := Encode(format, results, stats)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

// Load reads a file written by Save.
func Load[T, R any](path string, format Format) (Document[T, R], error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is supplied by the operator
	if err != nil {
		return Document[T, R]{}, fmt.Errorf("read results: %w", err)
	}
	return Decode[T, R](format, data)
}
