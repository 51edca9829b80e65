package extract

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/loredb-bench/tracker/dataset"
	"github.com/loredb-bench/tracker/types"
)

// GoogleBenchmarkOutput is the document written by --benchmark_format=json
type GoogleBenchmarkOutput struct {
	Context    GoogleBenchmarkContext `json:"context"`
	Benchmarks []GoogleBenchmark      `json:"benchmarks"`
}

// GoogleBenchmarkContext describes the machine and library build
type GoogleBenchmarkContext struct {
	Date              string  `json:"date"`
	HostName          string  `json:"host_name"`
	Executable        string  `json:"executable"`
	NumCPUs           int     `json:"num_cpus"`
	MhzPerCPU         float64 `json:"mhz_per_cpu"`
	CPUScalingEnabled bool    `json:"cpu_scaling_enabled"`
	LibraryBuildType  string  `json:"library_build_type"`
}

// GoogleBenchmark is one row of google-benchmark output
type GoogleBenchmark struct {
	Name          string  `json:"name"`
	RunName       string  `json:"run_name"`
	RunType       string  `json:"run_type"`
	AggregateName string  `json:"aggregate_name"`
	Iterations    int64   `json:"iterations"`
	RealTime      float64 `json:"real_time"`
	CPUTime       float64 `json:"cpu_time"`
	TimeUnit      string  `json:"time_unit"`
	Threads       int     `json:"threads"`
	ErrorOccurred bool    `json:"error_occurred"`
	ErrorMessage  string  `json:"error_message"`
}

// ParseGoogleBenchmark decodes google-benchmark JSON output
func ParseGoogleBenchmark(r io.Reader) (*GoogleBenchmarkOutput, error) {
	var out GoogleBenchmarkOutput
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode google benchmark json: %w", err)
	}
	return &out, nil
}

// ExtractGoogleCPP converts google-benchmark rows into benches. The bench
// value is the wall time per iteration; cpu time goes into extra.
func ExtractGoogleCPP(r io.Reader) ([]types.Bench, error) {
	out, err := ParseGoogleBenchmark(r)
	if err != nil {
		return nil, err
	}
	return GoogleBenches(out), nil
}

// GoogleBenches converts already decoded output. Repetitions of one run
// (--benchmark_repetitions) collapse into a single bench holding their mean.
func GoogleBenches(out *GoogleBenchmarkOutput) []types.Bench {
	log := logrus.WithField("component", "extract")

	allAggregates := len(out.Benchmarks) > 0
	repetitions := make(map[string]int)
	means := make(map[string]GoogleBenchmark)
	for _, b := range out.Benchmarks {
		if b.RunType != "aggregate" {
			allAggregates = false
			if !b.ErrorOccurred {
				repetitions[b.runName()]++
			}
			continue
		}
		if b.AggregateName == "mean" {
			means[b.runName()] = b
		}
	}

	var benches []types.Bench
	collapsed := make(map[string]bool)
	for _, b := range out.Benchmarks {
		if b.ErrorOccurred {
			log.WithFields(logrus.Fields{
				"bench": b.Name,
				"error": b.ErrorMessage,
			}).Warn("Skipping failed benchmark")
			continue
		}
		if allAggregates {
			benches = append(benches, googleBench(b.Name, b))
			continue
		}
		if b.RunType == "aggregate" {
			continue
		}

		name := b.runName()
		if repetitions[name] < 2 {
			benches = append(benches, googleBench(b.Name, b))
			continue
		}
		if collapsed[name] {
			continue
		}
		collapsed[name] = true

		mean, ok := means[name]
		if !ok {
			mean = averageRepetitions(out.Benchmarks, name)
		}
		log.WithFields(logrus.Fields{
			"bench":       name,
			"repetitions": repetitions[name],
		}).Debug("Collapsed repetitions into their mean")
		benches = append(benches, googleBench(name, mean))
	}
	return benches
}

func (b GoogleBenchmark) runName() string {
	if b.RunName != "" {
		return b.RunName
	}
	return b.Name
}

// averageRepetitions is the mean of the successful iteration rows of one run
func averageRepetitions(rows []GoogleBenchmark, name string) GoogleBenchmark {
	var mean GoogleBenchmark
	n := 0
	for _, b := range rows {
		if b.RunType == "aggregate" || b.ErrorOccurred || b.runName() != name {
			continue
		}
		if n == 0 {
			mean = b
			mean.RealTime, mean.CPUTime, mean.Iterations = 0, 0, 0
		}
		mean.RealTime += b.RealTime
		mean.CPUTime += b.CPUTime
		mean.Iterations += b.Iterations
		n++
	}
	if n > 0 {
		mean.RealTime /= float64(n)
		mean.CPUTime /= float64(n)
		mean.Iterations /= int64(n)
	}
	return mean
}

func googleBench(name string, b GoogleBenchmark) types.Bench {
	unit := b.TimeUnit
	if unit == "" {
		unit = "ns"
	}
	threads := b.Threads
	if threads == 0 {
		threads = 1
	}
	return types.Bench{
		Name:  name,
		Value: b.RealTime,
		Unit:  unit + "/iter",
		Extra: dataset.FormatExtra(types.Extra{
			Iterations: b.Iterations,
			CPUTime:    b.CPUTime,
			CPUUnit:    unit,
			Threads:    threads,
		}),
	}
}
