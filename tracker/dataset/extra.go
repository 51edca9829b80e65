package dataset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/loredb-bench/tracker/types"
)

// ParseExtra parses the free-text extra field of a bench:
//
//	iterations: 232257
//	cpu: 2911.408060898057 ns
//	threads: 1
//
// Unknown lines are ignored.
func ParseExtra(s string) (types.Extra, error) {
	var extra types.Extra
	for _, line := range strings.Split(s, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "iterations":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return extra, fmt.Errorf("invalid iterations %q: %w", value, err)
			}
			extra.Iterations = n
		case "cpu":
			fields := strings.Fields(value)
			if len(fields) == 0 {
				return extra, fmt.Errorf("empty cpu value")
			}
			f, err := strconv.ParseFloat(fields[0], 64)
			if err != nil {
				return extra, fmt.Errorf("invalid cpu time %q: %w", value, err)
			}
			extra.CPUTime = f
			if len(fields) > 1 {
				extra.CPUUnit = fields[1]
			}
		case "threads":
			n, err := strconv.Atoi(value)
			if err != nil {
				return extra, fmt.Errorf("invalid threads %q: %w", value, err)
			}
			extra.Threads = n
		}
	}
	return extra, nil
}

// FormatExtra renders extra in the layout ParseExtra reads
func FormatExtra(extra types.Extra) string {
	unit := extra.CPUUnit
	if unit == "" {
		unit = "ns"
	}
	return fmt.Sprintf("iterations: %d\ncpu: %s %s\nthreads: %d",
		extra.Iterations, FormatNumber(extra.CPUTime), unit, extra.Threads)
}

// FormatNumber prints a float the shortest way that round-trips
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
