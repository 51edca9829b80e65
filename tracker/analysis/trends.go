package analysis

import (
	"fmt"
	"math"
	"slices"

	"github.com/loredb-bench/tracker/types"
)

// Trend directions
const (
	TrendImproving = "improving"
	TrendDegrading = "degrading"
	TrendStable    = "stable"
)

// outlierZScore is the |modified z-score| above which a point is reported.
// A mean/stddev z-score is bounded by (n-1)/sqrt(n) and never passes 3 for n <= 10.
const outlierZScore = 3.5

// LinearRegression is a least squares fit over the point index
type LinearRegression struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"r_squared"`
	Equation  string  `json:"equation"`
}

// Outlier is a point far from the median of its series
type Outlier struct {
	Index    int     `json:"index"`
	CommitID string  `json:"commit_id"`
	Value    float64 `json:"value"`
	ZScore   float64 `json:"z_score"`
}

// Trend summarises the history of one bench
type Trend struct {
	Bench         string           `json:"bench"`
	Unit          string           `json:"unit"`
	Count         int              `json:"count"`
	Mean          float64          `json:"mean"`
	StdDev        float64          `json:"std_dev"`
	Min           float64          `json:"min"`
	Max           float64          `json:"max"`
	ChangePercent float64          `json:"change_percent"`
	Regression    LinearRegression `json:"regression"`
	Direction     string           `json:"direction"`
	Outliers      []Outlier        `json:"outliers,omitempty"`
	MovingAverage []float64        `json:"moving_average,omitempty"`
}

// AnalyzeTrend computes statistics for a bench series in recording order
func AnalyzeTrend(bench string, points []types.BenchPoint, biggerIsBetter bool, window int) *Trend {
	t := &Trend{Bench: bench, Count: len(points), Direction: TrendStable}
	if len(points) == 0 {
		return t
	}
	t.Unit = points[len(points)-1].Unit

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}

	t.Mean = mean(values)
	t.StdDev = stdDev(values, t.Mean)
	t.Min, t.Max = values[0], values[0]
	for _, v := range values[1:] {
		t.Min = math.Min(t.Min, v)
		t.Max = math.Max(t.Max, v)
	}
	if first := values[0]; first != 0 {
		t.ChangePercent = (values[len(values)-1] - first) / first * 100
	}

	t.Regression = linearRegression(values)
	t.Direction = trendDirection(t.Regression.Slope, t.Mean, biggerIsBetter)

	for i, z := range modifiedZScores(values) {
		if math.Abs(z) > outlierZScore {
			t.Outliers = append(t.Outliers, Outlier{
				Index:    i,
				CommitID: points[i].CommitID,
				Value:    values[i],
				ZScore:   z,
			})
		}
	}

	if window > 0 {
		t.MovingAverage = MovingAverage(values, window)
	}
	return t
}

// MovingAverage returns the trailing mean of each point over up to window values
func MovingAverage(values []float64, window int) []float64 {
	if window < 1 {
		window = 1
	}
	out := make([]float64, len(values))
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		n := i + 1
		if n > window {
			n = window
		}
		out[i] = sum / float64(n)
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sample standard deviation
func stdDev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sumSquares float64
	for _, v := range values {
		sumSquares += (v - mean) * (v - mean)
	}
	return math.Sqrt(sumSquares / float64(len(values)-1))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// modifiedZScores scores each value by 0.6745*(x-median)/MAD. When more than
// half the values equal the median the MAD is zero and the mean absolute
// deviation scaled by 1.253314 stands in for it.
func modifiedZScores(values []float64) []float64 {
	if len(values) < 3 {
		return nil
	}
	med := median(values)
	deviations := make([]float64, len(values))
	for i, v := range values {
		deviations[i] = math.Abs(v - med)
	}

	scores := make([]float64, len(values))
	if mad := median(deviations); mad > 0 {
		for i, v := range values {
			scores[i] = 0.6745 * (v - med) / mad
		}
		return scores
	}
	meanAD := mean(deviations)
	if meanAD == 0 {
		return nil
	}
	for i, v := range values {
		scores[i] = (v - med) / (1.253314 * meanAD)
	}
	return scores
}

func linearRegression(values []float64) LinearRegression {
	n := float64(len(values))
	if n < 2 {
		return LinearRegression{}
	}

	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}

	denominator := n*sumX2 - sumX*sumX
	if denominator == 0 {
		return LinearRegression{}
	}
	slope := (n*sumXY - sumX*sumY) / denominator
	intercept := (sumY - slope*sumX) / n

	meanY := sumY / n
	var ssRes, ssTot float64
	for i, y := range values {
		predicted := slope*float64(i) + intercept
		ssRes += (y - predicted) * (y - predicted)
		ssTot += (y - meanY) * (y - meanY)
	}
	var rSquared float64
	if ssTot > 0 {
		rSquared = 1 - ssRes/ssTot
	}

	return LinearRegression{
		Slope:     slope,
		Intercept: intercept,
		RSquared:  rSquared,
		Equation:  fmt.Sprintf("y = %.4fx + %.4f", slope, intercept),
	}
}

// slopes under 1% of the mean per entry count as stable
func trendDirection(slope, mean float64, biggerIsBetter bool) string {
	if mean == 0 || math.Abs(slope/mean) < 0.01 {
		return TrendStable
	}
	if (slope > 0) == biggerIsBetter {
		return TrendImproving
	}
	return TrendDegrading
}
