package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("BENCH_DB_HOST", "db.internal")
	t.Setenv("BENCH_SUITE", "Benchmark")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "simple substitution", input: "host: ${BENCH_DB_HOST}", expected: "host: db.internal"},
		{name: "multiple substitutions", input: "${BENCH_SUITE}@${BENCH_DB_HOST}", expected: "Benchmark@db.internal"},
		{name: "unset variable", input: "value: ${BENCH_UNSET_VAR}", expected: "value: "},
		{name: "default used", input: "port: ${BENCH_DB_PORT:-5432}", expected: "port: 5432"},
		{name: "default ignored", input: "host: ${BENCH_DB_HOST:-localhost}", expected: "host: db.internal"},
		{name: "default with colon", input: "dsn: ${BENCH_DSN:-postgres://localhost:5432/db}", expected: "dsn: postgres://localhost:5432/db"},
		{name: "escaped", input: "literal: $${BENCH_DB_HOST}", expected: "literal: ${BENCH_DB_HOST}"},
		{name: "unterminated", input: "broken: ${BENCH_DB_HOST", expected: "broken: ${BENCH_DB_HOST"},
		{name: "plain dollar", input: "cost: $5", expected: "cost: $5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := SubstituteEnvVars(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSubstituteEnvVarsRequired(t *testing.T) {
	t.Setenv("BENCH_TOKEN", "secret")

	result, err := SubstituteEnvVars("token: ${BENCH_TOKEN:?token required}")
	require.NoError(t, err)
	assert.Equal(t, "token: secret", result)

	_, err = SubstituteEnvVars("a: ${BENCH_MISSING_A:?need A}\nb: ${BENCH_MISSING_B:?}")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "need A")
	assert.Contains(t, err.Error(), "required environment variable BENCH_MISSING_B is not set")
}
