package extract

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/loredb-bench/tracker/types"
)

// BenchmarkName-8   	  1000	      1234 ns/op	  56 B/op	  2 allocs/op
var goBenchLine = regexp.MustCompile(`^(Benchmark\S*?)(?:-(\d+))?\s+(\d+)\s+(.+)$`)

// ExtractGo parses `go test -bench` text output. The first metric of a row is
// recorded under the benchmark name; further metrics get a " - <unit>" suffix.
func ExtractGo(r io.Reader) ([]types.Bench, error) {
	var benches []types.Bench

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		m := goBenchLine.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if m == nil {
			continue
		}

		name := m[1]
		procs := 1
		if m[2] != "" {
			p, err := strconv.Atoi(m[2])
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid procs %q: %w", lineNum, m[2], err)
			}
			procs = p
		}
		iterations, err := strconv.ParseInt(m[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid iterations %q: %w", lineNum, m[3], err)
		}

		fields := strings.Fields(m[4])
		if len(fields)%2 != 0 {
			return nil, fmt.Errorf("line %d: unbalanced value/unit pairs", lineNum)
		}

		extra := fmt.Sprintf("iterations: %d\nthreads: %d", iterations, procs)
		for i := 0; i < len(fields); i += 2 {
			value, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid value %q: %w", lineNum, fields[i], err)
			}
			unit := fields[i+1]

			benchName := name
			if i > 0 {
				benchName = name + " - " + unit
			}
			benches = append(benches, types.Bench{
				Name:  benchName,
				Value: value,
				Unit:  unit,
				Extra: extra,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading go bench output: %w", err)
	}

	return benches, nil
}
