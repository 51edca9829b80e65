// Package dataset reads, writes and updates the data.js benchmark history file.
package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/loredb-bench/tracker/types"
)

// ErrEmpty is returned when the input holds no payload
var ErrEmpty = errors.New("empty benchmark data")

// New returns an empty dataset for the given repository
func New(repoURL string) *types.Dataset {
	return &types.Dataset{
		RepoURL: repoURL,
		Entries: make(map[string][]types.Entry),
	}
}

// Parse decodes the content of a data.js file. Plain JSON without the global
// assignment is accepted as well.
func Parse(data []byte) (*types.Dataset, error) {
	payload, err := StripPrefix(data)
	if err != nil {
		return nil, err
	}

	var ds types.Dataset
	if err := json.Unmarshal(payload, &ds); err != nil {
		return nil, fmt.Errorf("failed to decode benchmark data: %w", err)
	}
	if ds.Entries == nil {
		ds.Entries = make(map[string][]types.Entry)
	}
	return &ds, nil
}

// StripPrefix returns the JSON payload of a data.js file
func StripPrefix(data []byte) ([]byte, error) {
	s := strings.TrimSpace(string(data))
	if s == "" {
		return nil, ErrEmpty
	}

	prefix := strings.TrimSpace(types.BenchmarkDataPrefix)
	if strings.HasPrefix(s, "window.BENCHMARK_DATA") {
		idx := strings.Index(s, "=")
		if idx < 0 {
			return nil, fmt.Errorf("malformed assignment, expected %q", prefix)
		}
		s = strings.TrimSpace(s[idx+1:])
	}
	s = strings.TrimSuffix(s, ";")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmpty
	}
	return []byte(s), nil
}

// Encode renders the dataset as a data.js file
func Encode(ds *types.Dataset) ([]byte, error) {
	if ds.Entries == nil {
		ds.Entries = make(map[string][]types.Entry)
	}

	var buf bytes.Buffer
	buf.WriteString(types.BenchmarkDataPrefix)

	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ds); err != nil {
		return nil, fmt.Errorf("failed to encode benchmark data: %w", err)
	}
	return buf.Bytes(), nil
}
