package cluster

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// threeGroupRoster returns 12 students split evenly into three obviously
// separated groups by arrest count (0, 2 and 5).
func threeGroupRoster() []Record {
	var records []Record
	for i := 0; i < 4; i++ {
		records = append(records, Record{
			StudentID: 100 + i, Gender: i % 2, Grade: 12,
		})
	}
	for i := 0; i < 4; i++ {
		records = append(records, Record{
			StudentID: 200 + i, Gender: i % 2, Grade: 10,
			Arrests: 2, Suspended: 1,
		})
	}
	for i := 0; i < 4; i++ {
		records = append(records, Record{
			StudentID: 300 + i, Gender: 1, Grade: 9,
			Arrests: 5, Suspended: 1, Expelled: 1,
		})
	}
	return records
}

func fitted(t *testing.T, records []Record, k int, seed int64) *Analyzer {
	t.Helper()
	a := NewAnalyzer(seed)
	require.NoError(t, a.Load(records))
	require.NoError(t, a.Fit(k))
	return a
}

func TestFitRequiresLoadedData(t *testing.T) {
	a := NewAnalyzer(42)

	var dataErr *DataError
	require.ErrorAs(t, a.Fit(3), &dataErr)

	_, err := a.ClusterSizes()
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestFitRejectsOutOfRangeK(t *testing.T) {
	a := NewAnalyzer(42)
	require.NoError(t, a.Load(threeGroupRoster()))

	var dataErr *DataError
	require.ErrorAs(t, a.Fit(0), &dataErr)
	require.ErrorAs(t, a.Fit(13), &dataErr)
}

func TestPartitionCompleteness(t *testing.T) {
	a := fitted(t, threeGroupRoster(), 3, 42)

	labels, err := a.Labels()
	require.NoError(t, err)
	require.Len(t, labels, 12)
	for _, label := range labels {
		assert.GreaterOrEqual(t, label, 0)
		assert.Less(t, label, 3)
	}

	sizes, err := a.ClusterSizes()
	require.NoError(t, err)
	total := 0
	for _, n := range sizes {
		total += n
	}
	assert.Equal(t, 12, total)
}

func TestThreeSeparatedGroups(t *testing.T) {
	a := fitted(t, threeGroupRoster(), 3, 42)

	sizes, err := a.ClusterSizes()
	require.NoError(t, err)
	require.Len(t, sizes, 3)
	for c, n := range sizes {
		assert.Equal(t, 4, n, "cluster %d", c)
	}

	rates, err := a.ArrestRates()
	require.NoError(t, err)
	got := make(map[float64]bool)
	for _, rate := range rates {
		got[rate] = true
	}
	assert.Equal(t, map[float64]bool{0: true, 2: true, 5: true}, got)
}

func TestCriticalRiskClusterRule(t *testing.T) {
	a := fitted(t, threeGroupRoster(), 3, 42)

	critical, rate, err := a.CriticalRiskCluster()
	require.NoError(t, err)
	assert.Equal(t, 5.0, rate)

	// The critical cluster is exactly the arrests=5 group.
	for _, id := range []int{300, 301, 302, 303} {
		c, err := a.StudentCluster(id)
		require.NoError(t, err)
		assert.Equal(t, critical, c)
	}
}

func TestDeterminism(t *testing.T) {
	records := SampleData(200, 7)

	a := fitted(t, records, 4, 42)
	b := fitted(t, records, 4, 42)

	labelsA, err := a.Labels()
	require.NoError(t, err)
	labelsB, err := b.Labels()
	require.NoError(t, err)
	assert.Equal(t, labelsA, labelsB)

	summariesA, err := a.Summaries()
	require.NoError(t, err)
	summariesB, err := b.Summaries()
	require.NoError(t, err)
	assert.Equal(t, summariesA, summariesB)

	centroidsA, err := a.Centroids()
	require.NoError(t, err)
	centroidsB, err := b.Centroids()
	require.NoError(t, err)
	assert.Equal(t, centroidsA, centroidsB)
}

func TestRefitReplacesLabels(t *testing.T) {
	a := fitted(t, threeGroupRoster(), 3, 42)
	require.NoError(t, a.Fit(2))

	assert.Equal(t, 2, a.K())
	labels, err := a.Labels()
	require.NoError(t, err)
	for _, label := range labels {
		assert.Less(t, label, 2)
	}
}

func TestStudentClusterNotFound(t *testing.T) {
	a := fitted(t, threeGroupRoster(), 3, 42)

	_, err := a.StudentCluster(999)
	assert.ErrorIs(t, err, ErrStudentNotFound)
}

func TestMiddleRiskClassification(t *testing.T) {
	a := fitted(t, threeGroupRoster(), 3, 42)

	middle, err := a.MiddleRiskClusters(0.5, 2.0)
	require.NoError(t, err)
	require.Len(t, middle, 1)

	rate, err := a.AverageArrests(middle[0])
	require.NoError(t, err)
	assert.Equal(t, 2.0, rate)

	count, err := a.MiddleRiskStudentCount(middle)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	// Closed interval includes the bounds.
	middle, err = a.MiddleRiskClusters(2.0, 5.0)
	require.NoError(t, err)
	assert.Len(t, middle, 2)

	none, err := a.MiddleRiskClusters(6.0, 9.0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestClusterProfileQueries(t *testing.T) {
	a := fitted(t, threeGroupRoster(), 3, 42)

	critical, _, err := a.CriticalRiskCluster()
	require.NoError(t, err)

	female, male, err := a.GenderDistribution(critical)
	require.NoError(t, err)
	assert.Equal(t, 0, female)
	assert.Equal(t, 4, male)

	susp, err := a.SuspensionProportion(critical)
	require.NoError(t, err)
	assert.Equal(t, 1.0, susp)

	expelled, err := a.ExpulsionsInCluster(critical)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{300, 301, 302, 303}, expelled)
}

// Centroids converted back to original units must agree with the plain mean
// of each cluster's raw member rows.
func TestCentroidInvertibilityRoundTrip(t *testing.T) {
	a := fitted(t, threeGroupRoster(), 3, 42)

	labels, err := a.Labels()
	require.NoError(t, err)
	centroids, err := a.Centroids()
	require.NoError(t, err)

	for c := 0; c < a.K(); c++ {
		want := make([]float64, len(FeatureNames))
		count := 0
		for i, r := range a.Records() {
			if labels[i] != c {
				continue
			}
			for j, v := range r.features() {
				want[j] += v
			}
			count++
		}
		require.Greater(t, count, 0)
		for j := range want {
			want[j] /= float64(count)
			assert.InDelta(t, want[j], centroids[c][j], 1e-9,
				"cluster %d feature %s", c, FeatureNames[j])
		}
	}
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "students.csv")
	content := strings.Join([]string{
		"StudentID,Gender,Grade,Arrests,Suspended,Expelled",
		"1,0,10,0,0,0",
		"2,1,9,3,1,",   // missing Expelled imputed to 0
		"3,1,11,x,0,0", // unparseable Arrests imputed to 0
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	a := NewAnalyzer(42)
	require.NoError(t, a.LoadCSV(path))

	records := a.Records()
	require.Len(t, records, 3, "rows are never dropped for missingness")
	assert.Equal(t, 0, records[1].Expelled)
	assert.Equal(t, 0, records[2].Arrests)
}

func TestLoadCSVMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "students.csv")
	require.NoError(t, os.WriteFile(path, []byte("StudentID,Gender\n1,0\n"), 0o644))

	a := NewAnalyzer(42)
	err := a.LoadCSV(path)

	var dataErr *DataError
	require.ErrorAs(t, err, &dataErr)
	assert.Contains(t, dataErr.Error(), "Grade")
	assert.Contains(t, dataErr.Error(), "Expelled")
}

func TestSampleDataIsDeterministic(t *testing.T) {
	a := SampleData(100, 42)
	b := SampleData(100, 42)
	assert.Equal(t, a, b)
	assert.Len(t, a, 100)

	// Critical-risk tail carries the arrests.
	assert.GreaterOrEqual(t, a[99].Arrests, 3)
	assert.Equal(t, 0, a[0].Arrests)
}
