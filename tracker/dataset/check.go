package dataset

import (
	"fmt"

	"github.com/loredb-bench/tracker/types"
)

// Check reports structural problems the JSON schema cannot express. An empty
// result means the dataset is consistent.
func Check(ds *types.Dataset) []string {
	var problems []string
	for _, suite := range Suites(ds) {
		var prevDate int64
		for i, e := range ds.Entries[suite] {
			where := fmt.Sprintf("%s[%d]", suite, i)
			if e.Commit.ID == "" {
				problems = append(problems, where+": commit id is empty")
			}
			if e.Date <= 0 {
				problems = append(problems, where+": date is not set")
			} else if e.Date < prevDate {
				problems = append(problems, where+": recorded before the previous entry")
			}
			prevDate = e.Date

			seen := make(map[string]bool, len(e.Benches))
			for _, b := range e.Benches {
				if b.Name == "" {
					problems = append(problems, where+": bench without a name")
					continue
				}
				if seen[b.Name] {
					problems = append(problems, fmt.Sprintf("%s: bench %q appears twice", where, b.Name))
				}
				seen[b.Name] = true
				if b.Extra == "" {
					continue
				}
				if _, err := ParseExtra(b.Extra); err != nil {
					problems = append(problems, fmt.Sprintf("%s: bench %q: %v", where, b.Name, err))
				}
			}
		}
	}
	return problems
}
