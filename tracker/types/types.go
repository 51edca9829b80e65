package types

// BenchmarkDataPrefix is the global assignment that precedes the JSON payload in data.js
const BenchmarkDataPrefix = "window.BENCHMARK_DATA = "

// Person identifies a commit author or committer
type Person struct {
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Commit is the commit descriptor a benchmark entry belongs to
type Commit struct {
	Author    Person `json:"author"`
	Committer Person `json:"committer"`
	Distinct  *bool  `json:"distinct,omitempty"`
	ID        string `json:"id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	TreeID    string `json:"tree_id,omitempty"`
	URL       string `json:"url"`
}

// ShortID returns the first seven characters of the commit id
func (c Commit) ShortID() string {
	if len(c.ID) > 7 {
		return c.ID[:7]
	}
	return c.ID
}

// Bench is one named measurement
type Bench struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
	Range string  `json:"range,omitempty"`
	Extra string  `json:"extra,omitempty"`
}

// Entry is the result of one benchmark run for a commit
type Entry struct {
	Commit  Commit  `json:"commit"`
	Date    int64   `json:"date"` // unix milliseconds
	Tool    string  `json:"tool"`
	Benches []Bench `json:"benches"`
}

// Bench returns the bench with the given name, or nil
func (e *Entry) Bench(name string) *Bench {
	for i := range e.Benches {
		if e.Benches[i].Name == name {
			return &e.Benches[i]
		}
	}
	return nil
}

// Dataset is the whole content assigned to window.BENCHMARK_DATA
type Dataset struct {
	LastUpdate int64              `json:"lastUpdate"` // unix milliseconds
	RepoURL    string             `json:"repoUrl"`
	Entries    map[string][]Entry `json:"entries"`
}

// Extra is the parsed form of a bench's extra field
type Extra struct {
	Iterations int64   `json:"iterations"`
	CPUTime    float64 `json:"cpu_time"`
	CPUUnit    string  `json:"cpu_unit,omitempty"`
	Threads    int     `json:"threads"`
}
