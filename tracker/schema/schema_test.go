package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDatasetFixture(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "dataset", "testdata", "data.js"))
	require.NoError(t, err)

	violations, err := ValidateDataset(raw)
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestValidateDatasetViolations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "missing entries", doc: `{"lastUpdate": 1, "repoUrl": "r"}`},
		{name: "string value", doc: `{"lastUpdate": 1, "repoUrl": "r", "entries": {"s": [{"commit": {"id": "a", "message": "m", "timestamp": "t", "url": "u"}, "date": 1, "tool": "go", "benches": [{"name": "b", "value": "fast"}]}]}}`},
		{name: "entries not object", doc: `window.BENCHMARK_DATA = {"lastUpdate": 1, "repoUrl": "r", "entries": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations, err := ValidateDataset([]byte(tt.doc))
			require.NoError(t, err)
			assert.NotEmpty(t, violations)
		})
	}
}

func TestValidateDatasetEmpty(t *testing.T) {
	_, err := ValidateDataset([]byte("  "))
	assert.Error(t, err)
}

func TestValidateGoogleBenchmark(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "extract", "testdata", "googlecpp.json"))
	require.NoError(t, err)

	violations, err := ValidateGoogleBenchmark(raw)
	require.NoError(t, err)
	assert.Empty(t, violations)

	violations, err = ValidateGoogleBenchmark([]byte(`{"benchmarks": [{"name": "x", "time_unit": "fortnight"}]}`))
	require.NoError(t, err)
	assert.Len(t, violations, 1)
}

func TestLoadCachesSchemas(t *testing.T) {
	a, err := Load(Dataset)
	require.NoError(t, err)
	b, err := Load(Dataset)
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = Load("openrpc")
	assert.Error(t, err)
}
