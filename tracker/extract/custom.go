package extract

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/loredb-bench/tracker/types"
)

// ExtractCustom reads a JSON array of benches as written by custom tooling
func ExtractCustom(r io.Reader) ([]types.Bench, error) {
	var benches []types.Bench
	if err := json.NewDecoder(r).Decode(&benches); err != nil {
		return nil, fmt.Errorf("failed to decode custom benchmark json: %w", err)
	}
	for i, b := range benches {
		if b.Name == "" {
			return nil, fmt.Errorf("bench %d has no name", i)
		}
		if b.Unit == "" {
			return nil, fmt.Errorf("bench %q has no unit", b.Name)
		}
	}
	return benches, nil
}
