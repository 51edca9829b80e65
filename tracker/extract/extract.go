// Package extract turns benchmark tool output into data.js benches.
package extract

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/loredb-bench/tracker/types"
)

// Supported tools
const (
	ToolGoogleCPP             = "googlecpp"
	ToolGo                    = "go"
	ToolCustomSmallerIsBetter = "customSmallerIsBetter"
	ToolCustomBiggerIsBetter  = "customBiggerIsBetter"
)

// ErrNoBenchmarks is returned when the tool output holds no usable result
var ErrNoBenchmarks = errors.New("no benchmark result found")

// ErrDuplicateBench is returned when two benches of one result share a name
var ErrDuplicateBench = errors.New("duplicate bench name")

// Extractor parses the output of one tool
type Extractor func(r io.Reader) ([]types.Bench, error)

var extractors = map[string]Extractor{
	ToolGoogleCPP:             ExtractGoogleCPP,
	ToolGo:                    ExtractGo,
	ToolCustomSmallerIsBetter: ExtractCustom,
	ToolCustomBiggerIsBetter:  ExtractCustom,
}

// Tools returns the supported tool names
func Tools() []string {
	names := make([]string, 0, len(extractors))
	for name := range extractors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsSupported reports whether tool can be extracted
func IsSupported(tool string) bool {
	_, ok := extractors[tool]
	return ok
}

// BiggerIsBetter reports whether larger values of the tool's benches are improvements
func BiggerIsBetter(tool string) bool {
	return tool == ToolCustomBiggerIsBetter
}

// Extract parses r with the extractor registered for tool
func Extract(tool string, r io.Reader) ([]types.Bench, error) {
	fn, ok := extractors[tool]
	if !ok {
		return nil, fmt.Errorf("unsupported tool %q", tool)
	}
	benches, err := fn(r)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s output: %w", tool, err)
	}
	if len(benches) == 0 {
		return nil, ErrNoBenchmarks
	}
	if err := CheckNames(benches); err != nil {
		return nil, err
	}
	return benches, nil
}

// CheckNames fails on a nameless bench or a name used twice
func CheckNames(benches []types.Bench) error {
	seen := make(map[string]bool, len(benches))
	for i, b := range benches {
		if b.Name == "" {
			return fmt.Errorf("bench %d has no name", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateBench, b.Name)
		}
		seen[b.Name] = true
	}
	return nil
}
