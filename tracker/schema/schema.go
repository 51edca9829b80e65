// Package schema validates benchmark documents against embedded JSON schemas.
package schema

import (
	"embed"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/loredb-bench/tracker/dataset"
)

// Schema names
const (
	Dataset         = "dataset"
	GoogleBenchmark = "googlecpp"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	// Cache for compiled schemas
	schemaCache     = make(map[string]*gojsonschema.Schema)
	schemaCacheLock sync.RWMutex
)

// Load returns the compiled schema with the given name
func Load(name string) (*gojsonschema.Schema, error) {
	schemaCacheLock.RLock()
	s, ok := schemaCache[name]
	schemaCacheLock.RUnlock()
	if ok {
		return s, nil
	}

	schemaCacheLock.Lock()
	defer schemaCacheLock.Unlock()

	if s, ok := schemaCache[name]; ok {
		return s, nil
	}

	data, err := schemaFS.ReadFile("schemas/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("unknown schema %q: %w", name, err)
	}

	s, err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	schemaCache[name] = s
	return s, nil
}

// Validate checks a JSON document against the named schema. It returns the
// list of violations; an error is only returned when validation could not run.
func Validate(name string, doc []byte) ([]string, error) {
	s, err := Load(name)
	if err != nil {
		return nil, err
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	violations := make([]string, len(result.Errors()))
	for i, e := range result.Errors() {
		violations[i] = e.String()
	}
	return violations, nil
}

// ValidateDataset validates a data.js file, with or without the assignment prefix
func ValidateDataset(raw []byte) ([]string, error) {
	doc, err := dataset.StripPrefix(raw)
	if err != nil {
		return nil, err
	}
	return Validate(Dataset, doc)
}

// ValidateGoogleBenchmark validates google-benchmark JSON output
func ValidateGoogleBenchmark(raw []byte) ([]string, error) {
	return Validate(GoogleBenchmark, raw)
}
