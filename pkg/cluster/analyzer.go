// Package cluster partitions student behavioral records with k-means and
// answers descriptive queries over the fitted clusters.
package cluster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// FeatureNames is the fixed feature order used for clustering.
var FeatureNames = []string{"Gender", "Grade", "Arrests", "Suspended", "Expelled"}

// Record is one row of the clustering input. Inputs are immutable: fitting
// only assigns a label, it never mutates source rows.
type Record struct {
	StudentID int
	Gender    int // 0 = female, 1 = male
	Grade     int
	Arrests   int
	Suspended int
	Expelled  int
}

func (r Record) features() []float64 {
	return []float64{
		float64(r.Gender),
		float64(r.Grade),
		float64(r.Arrests),
		float64(r.Suspended),
		float64(r.Expelled),
	}
}

// ClusterSummary holds the descriptive statistics of one fitted cluster.
type ClusterSummary struct {
	Cluster      int
	Size         int
	AvgArrests   float64
	AvgGrade     float64
	PctSuspended float64
	PctExpelled  float64
	PctFemale    float64
	PctMale      float64
}

// DataError reports invalid clustering input, such as missing columns.
type DataError struct {
	Msg string
}

func (e *DataError) Error() string { return e.Msg }

// ErrStudentNotFound is returned when a post-fit lookup names a student id
// absent from the loaded dataset.
var ErrStudentNotFound = errors.New("student not found")

// ErrNotFitted is returned by post-fit queries before Fit has run.
var ErrNotFitted = errors.New("model not fitted")

// Analyzer runs seeded k-means over loaded records. State progresses
// unloaded -> loaded -> fitted; refitting with a different k fully replaces
// the prior labels.
type Analyzer struct {
	seed     int64
	restarts int

	records []Record
	labels  []int
	k       int

	// Standardization parameters retained from the last fit, so assigning a
	// future record to the existing clusters stays well-defined.
	means []float64
	stds  []float64

	// Centroids in standardized feature space.
	centroids [][]float64
	fitted    bool
}

// NewAnalyzer creates an analyzer with a fixed seed. The seed makes every
// fit, and every query over it, fully deterministic.
func NewAnalyzer(seed int64) *Analyzer {
	return &Analyzer{seed: seed, restarts: 10}
}

// Load replaces the analyzer's dataset and resets any previous fit.
func (a *Analyzer) Load(records []Record) error {
	if len(records) == 0 {
		return &DataError{Msg: "no records to load"}
	}
	a.records = append([]Record(nil), records...)
	a.labels = nil
	a.centroids = nil
	a.fitted = false
	return nil
}

// LoadCSV loads records from a CSV file with a header row naming at least
// the required columns (any order, case-insensitive). Missing or
// unparseable numeric values are imputed to 0; rows are never dropped for
// missingness.
func (a *Analyzer) LoadCSV(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open dataset %s: %w", path, err)
	}
	defer f.Close()
	return a.loadCSV(f)
}

func (a *Analyzer) loadCSV(r io.Reader) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return &DataError{Msg: fmt.Sprintf("read dataset header: %v", err)}
	}

	required := []string{"StudentID", "Gender", "Grade", "Arrests", "Suspended", "Expelled"}
	index := make(map[string]int)
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(col))] = i
	}

	cols := make(map[string]int, len(required))
	var missing []string
	for _, col := range required {
		i, ok := index[strings.ToLower(col)]
		if !ok {
			missing = append(missing, col)
			continue
		}
		cols[col] = i
	}
	if len(missing) > 0 {
		return &DataError{Msg: "missing required columns: " + strings.Join(missing, ", ")}
	}

	field := func(row []string, col string) int {
		i := cols[col]
		if i >= len(row) {
			return 0
		}
		v, err := strconv.Atoi(strings.TrimSpace(row[i]))
		if err != nil {
			return 0
		}
		return v
	}

	var records []Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &DataError{Msg: fmt.Sprintf("read dataset row: %v", err)}
		}
		records = append(records, Record{
			StudentID: field(row, "StudentID"),
			Gender:    field(row, "Gender"),
			Grade:     field(row, "Grade"),
			Arrests:   field(row, "Arrests"),
			Suspended: field(row, "Suspended"),
			Expelled:  field(row, "Expelled"),
		})
	}
	return a.Load(records)
}

// Fit standardizes the feature matrix and partitions it into k clusters.
// Requires loaded data; k must be in [1, row count].
func (a *Analyzer) Fit(k int) error {
	if len(a.records) == 0 {
		return &DataError{Msg: "no data loaded"}
	}
	if k < 1 || k > len(a.records) {
		return &DataError{Msg: fmt.Sprintf("k=%d out of range for %d records", k, len(a.records))}
	}

	points := make([][]float64, len(a.records))
	for i, r := range a.records {
		points[i] = r.features()
	}
	a.means, a.stds = columnStats(points)
	standardized := standardize(points, a.means, a.stds)

	result := runKMeans(standardized, k, a.seed, a.restarts)
	a.k = k
	a.labels = result.labels
	a.centroids = result.centroids
	a.fitted = true
	return nil
}

// columnStats computes per-feature mean and standard deviation. A constant
// feature gets a unit deviation so standardizing it stays finite.
func columnStats(points [][]float64) (means, stds []float64) {
	nFeatures := len(points[0])
	means = make([]float64, nFeatures)
	stds = make([]float64, nFeatures)

	col := make([]float64, len(points))
	for j := 0; j < nFeatures; j++ {
		for i := range points {
			col[i] = points[i][j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		if std == 0 || len(points) < 2 {
			std = 1
		}
		means[j] = mean
		stds[j] = std
	}
	return means, stds
}

func standardize(points [][]float64, means, stds []float64) [][]float64 {
	out := make([][]float64, len(points))
	for i, p := range points {
		row := make([]float64, len(p))
		for j, v := range p {
			row[j] = (v - means[j]) / stds[j]
		}
		out[i] = row
	}
	return out
}

// K returns the number of clusters of the current fit.
func (a *Analyzer) K() int { return a.k }

// Records returns the loaded records in load order.
func (a *Analyzer) Records() []Record { return a.records }

// Labels returns the per-record cluster labels of the current fit.
func (a *Analyzer) Labels() ([]int, error) {
	if !a.fitted {
		return nil, ErrNotFitted
	}
	return a.labels, nil
}

// ClusterSizes returns the member count of each cluster, keyed by cluster id.
func (a *Analyzer) ClusterSizes() (map[int]int, error) {
	if !a.fitted {
		return nil, ErrNotFitted
	}
	sizes := make(map[int]int, a.k)
	for c := 0; c < a.k; c++ {
		sizes[c] = 0
	}
	for _, label := range a.labels {
		sizes[label]++
	}
	return sizes, nil
}

// LargestClusterSize returns the size of the most populated cluster.
func (a *Analyzer) LargestClusterSize() (int, error) {
	sizes, err := a.ClusterSizes()
	if err != nil {
		return 0, err
	}
	largest := 0
	for _, n := range sizes {
		if n > largest {
			largest = n
		}
	}
	return largest, nil
}

// StudentCluster returns the cluster id of the given student.
func (a *Analyzer) StudentCluster(studentID int) (int, error) {
	if !a.fitted {
		return 0, ErrNotFitted
	}
	for i, r := range a.records {
		if r.StudentID == studentID {
			return a.labels[i], nil
		}
	}
	return 0, fmt.Errorf("student %d: %w", studentID, ErrStudentNotFound)
}

// ArrestRates returns the mean arrest count of each cluster.
func (a *Analyzer) ArrestRates() (map[int]float64, error) {
	if !a.fitted {
		return nil, ErrNotFitted
	}
	sums := make([]float64, a.k)
	counts := make([]int, a.k)
	for i, r := range a.records {
		sums[a.labels[i]] += float64(r.Arrests)
		counts[a.labels[i]]++
	}
	rates := make(map[int]float64, a.k)
	for c := 0; c < a.k; c++ {
		if counts[c] > 0 {
			rates[c] = sums[c] / float64(counts[c])
		} else {
			rates[c] = 0
		}
	}
	return rates, nil
}

// CriticalRiskCluster identifies the cluster with the maximum mean arrest
// count. Ties break toward the smallest cluster id.
func (a *Analyzer) CriticalRiskCluster() (int, float64, error) {
	rates, err := a.ArrestRates()
	if err != nil {
		return 0, 0, err
	}
	best, bestRate := 0, rates[0]
	for c := 1; c < a.k; c++ {
		if rates[c] > bestRate {
			best, bestRate = c, rates[c]
		}
	}
	return best, bestRate, nil
}

// GenderDistribution returns female and male counts for one cluster.
func (a *Analyzer) GenderDistribution(cluster int) (female, male int, err error) {
	if !a.fitted {
		return 0, 0, ErrNotFitted
	}
	for i, r := range a.records {
		if a.labels[i] != cluster {
			continue
		}
		if r.Gender == 0 {
			female++
		} else {
			male++
		}
	}
	return female, male, nil
}

// SuspensionProportion returns the fraction of a cluster's members that were
// suspended, in [0, 1].
func (a *Analyzer) SuspensionProportion(cluster int) (float64, error) {
	if !a.fitted {
		return 0, ErrNotFitted
	}
	total, suspended := 0, 0
	for i, r := range a.records {
		if a.labels[i] != cluster {
			continue
		}
		total++
		if r.Suspended == 1 {
			suspended++
		}
	}
	if total == 0 {
		return 0, nil
	}
	return float64(suspended) / float64(total), nil
}

// ExpulsionsInCluster returns the student ids in a cluster that were
// expelled.
func (a *Analyzer) ExpulsionsInCluster(cluster int) ([]int, error) {
	if !a.fitted {
		return nil, ErrNotFitted
	}
	var ids []int
	for i, r := range a.records {
		if a.labels[i] == cluster && r.Expelled == 1 {
			ids = append(ids, r.StudentID)
		}
	}
	return ids, nil
}

// AverageArrests returns the mean arrest count of one cluster.
func (a *Analyzer) AverageArrests(cluster int) (float64, error) {
	rates, err := a.ArrestRates()
	if err != nil {
		return 0, err
	}
	rate, ok := rates[cluster]
	if !ok {
		return 0, fmt.Errorf("cluster %d out of range", cluster)
	}
	return rate, nil
}

// MiddleRiskClusters returns the ids of clusters whose mean arrest count
// falls within the closed interval [low, high], in ascending id order.
func (a *Analyzer) MiddleRiskClusters(low, high float64) ([]int, error) {
	rates, err := a.ArrestRates()
	if err != nil {
		return nil, err
	}
	var middle []int
	for c := 0; c < a.k; c++ {
		if rates[c] >= low && rates[c] <= high {
			middle = append(middle, c)
		}
	}
	return middle, nil
}

// MiddleRiskStudentCount counts students across the given clusters.
func (a *Analyzer) MiddleRiskStudentCount(clusters []int) (int, error) {
	if !a.fitted {
		return 0, ErrNotFitted
	}
	wanted := make(map[int]bool, len(clusters))
	for _, c := range clusters {
		wanted[c] = true
	}
	count := 0
	for _, label := range a.labels {
		if wanted[label] {
			count++
		}
	}
	return count, nil
}

// Summaries computes the per-cluster descriptive statistics, one entry per
// cluster in id order. Percentages are 0-100.
func (a *Analyzer) Summaries() ([]ClusterSummary, error) {
	if !a.fitted {
		return nil, ErrNotFitted
	}

	summaries := make([]ClusterSummary, a.k)
	for c := 0; c < a.k; c++ {
		summaries[c].Cluster = c
	}

	for i, r := range a.records {
		s := &summaries[a.labels[i]]
		s.Size++
		s.AvgArrests += float64(r.Arrests)
		s.AvgGrade += float64(r.Grade)
		s.PctSuspended += float64(r.Suspended)
		s.PctExpelled += float64(r.Expelled)
		if r.Gender == 0 {
			s.PctFemale++
		} else {
			s.PctMale++
		}
	}

	for c := range summaries {
		s := &summaries[c]
		if s.Size == 0 {
			continue
		}
		n := float64(s.Size)
		s.AvgArrests /= n
		s.AvgGrade /= n
		s.PctSuspended = s.PctSuspended / n * 100
		s.PctExpelled = s.PctExpelled / n * 100
		s.PctFemale = s.PctFemale / n * 100
		s.PctMale = s.PctMale / n * 100
	}
	return summaries, nil
}

// Centroids returns the cluster centers converted back to original feature
// units, one row per cluster in FeatureNames order.
func (a *Analyzer) Centroids() ([][]float64, error) {
	if !a.fitted {
		return nil, ErrNotFitted
	}
	out := make([][]float64, len(a.centroids))
	for c, centroid := range a.centroids {
		row := make([]float64, len(centroid))
		for j, v := range centroid {
			row[j] = v*a.stds[j] + a.means[j]
		}
		out[c] = row
	}
	return out, nil
}
