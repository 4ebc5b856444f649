package cluster

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
)

// Report renders a fitted analyzer into a human-readable text report. Same
// input, k and seed produce a byte-identical report.
func Report(a *Analyzer, riskLow, riskHigh float64) (string, error) {
	sizes, err := a.ClusterSizes()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	rule := strings.Repeat("=", 70)
	section := strings.Repeat("-", 70)

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "K-MEANS CLUSTERING ANALYSIS REPORT")
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "1. CLUSTER SIZES")
	fmt.Fprintln(&b, section)
	ids := make([]int, 0, len(sizes))
	for c := range sizes {
		ids = append(ids, c)
	}
	sort.Ints(ids)
	for _, c := range ids {
		fmt.Fprintf(&b, "   Cluster %d: %d students\n", c, sizes[c])
	}
	largest, _ := a.LargestClusterSize()
	fmt.Fprintf(&b, "\n   Largest Cluster Size: %d students\n\n", largest)

	fmt.Fprintln(&b, "2. CRITICAL RISK CLUSTER (Highest Mean Arrests)")
	fmt.Fprintln(&b, section)
	critical, rate, _ := a.CriticalRiskCluster()
	fmt.Fprintf(&b, "   Cluster %d - Average Arrests: %.2f\n\n", critical, rate)

	fmt.Fprintln(&b, "3. MIDDLE-RISK CLUSTER CLASSIFICATION")
	fmt.Fprintln(&b, section)
	middle, _ := a.MiddleRiskClusters(riskLow, riskHigh)
	middleCount, _ := a.MiddleRiskStudentCount(middle)
	fmt.Fprintf(&b, "   Interval: [%.2f, %.2f] mean arrests\n", riskLow, riskHigh)
	fmt.Fprintf(&b, "   Middle-Risk Clusters: %v\n", middle)
	fmt.Fprintf(&b, "   Total Students in Middle-Risk Clusters: %d\n\n", middleCount)

	fmt.Fprintln(&b, "4. PER-CLUSTER PROFILE")
	fmt.Fprintln(&b, section)
	for _, c := range ids {
		female, male, _ := a.GenderDistribution(c)
		susp, _ := a.SuspensionProportion(c)
		expelled, _ := a.ExpulsionsInCluster(c)
		fmt.Fprintf(&b, "   Cluster %d:\n", c)
		fmt.Fprintf(&b, "     Females: %d, Males: %d\n", female, male)
		fmt.Fprintf(&b, "     Proportion Suspended: %.4f\n", susp)
		fmt.Fprintf(&b, "     Expulsions: %d\n", len(expelled))
	}
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "5. GRADE RISK INTERPRETATION")
	fmt.Fprintln(&b, section)
	fmt.Fprint(&b, gradeRiskInterpretation(a))
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "6. CLUSTER SUMMARY")
	fmt.Fprintln(&b, section)
	summaries, _ := a.Summaries()
	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLUSTER\tSIZE\tAVG ARRESTS\tAVG GRADE\tPCT SUSPENDED\tPCT EXPELLED\tPCT FEMALE\tPCT MALE")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%d\t%d\t%.2f\t%.2f\t%.1f\t%.1f\t%.1f\t%.1f\n",
			s.Cluster, s.Size, s.AvgArrests, s.AvgGrade,
			s.PctSuspended, s.PctExpelled, s.PctFemale, s.PctMale)
	}
	tw.Flush()
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "7. CLUSTER CENTROIDS (original feature units)")
	fmt.Fprintln(&b, section)
	centroids, _ := a.Centroids()
	tw = tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLUSTER\t"+strings.ToUpper(strings.Join(FeatureNames, "\t")))
	for c, centroid := range centroids {
		cells := make([]string, len(centroid))
		for j, v := range centroid {
			cells[j] = fmt.Sprintf("%.3f", v)
		}
		fmt.Fprintf(tw, "%d\t%s\n", c, strings.Join(cells, "\t"))
	}
	tw.Flush()

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, rule)
	return b.String(), nil
}

func gradeRiskInterpretation(a *Analyzer) string {
	summaries, err := a.Summaries()
	if err != nil || len(summaries) == 0 {
		return ""
	}

	high, low := summaries[0], summaries[0]
	for _, s := range summaries[1:] {
		if s.AvgArrests > high.AvgArrests {
			high = s
		}
		if s.AvgArrests < low.AvgArrests {
			low = s
		}
	}

	pattern := "No clear grade-risk relationship"
	if high.AvgGrade < low.AvgGrade {
		pattern = "Higher grades associated with lower risk"
	} else if high.AvgGrade > low.AvgGrade {
		pattern = "Lower grades associated with lower risk"
	}

	return fmt.Sprintf(`   High-Risk Cluster (Cluster %d): Avg Grade %.2f, Avg Arrests %.2f
   Low-Risk Cluster (Cluster %d): Avg Grade %.2f, Avg Arrests %.2f
   Pattern: %s
`, high.Cluster, high.AvgGrade, high.AvgArrests,
		low.Cluster, low.AvgGrade, low.AvgArrests, pattern)
}

// Artifact file names written by WriteArtifacts.
const (
	LabeledDataFile = "student_data_with_clusters.csv"
	SummaryFile     = "cluster_summary.csv"
	CentroidsFile   = "cluster_centroids.csv"
)

// WriteArtifacts writes the three CSV artifacts of a fitted analyzer into
// dir: the input rows with a trailing cluster column, the per-cluster
// summary statistics, and the centroids in original feature units.
func WriteArtifacts(a *Analyzer, dir string) error {
	labels, err := a.Labels()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir %s: %w", dir, err)
	}

	if err := writeCSV(filepath.Join(dir, LabeledDataFile), func(w *csv.Writer) error {
		if err := w.Write([]string{"StudentID", "Gender", "Grade", "Arrests", "Suspended", "Expelled", "cluster"}); err != nil {
			return err
		}
		for i, r := range a.Records() {
			row := []string{
				strconv.Itoa(r.StudentID), strconv.Itoa(r.Gender), strconv.Itoa(r.Grade),
				strconv.Itoa(r.Arrests), strconv.Itoa(r.Suspended), strconv.Itoa(r.Expelled),
				strconv.Itoa(labels[i]),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	summaries, err := a.Summaries()
	if err != nil {
		return err
	}
	if err := writeCSV(filepath.Join(dir, SummaryFile), func(w *csv.Writer) error {
		if err := w.Write([]string{"Cluster", "Size", "Avg_Arrests", "Avg_Grade", "Pct_Suspended", "Pct_Expelled", "Pct_Female", "Pct_Male"}); err != nil {
			return err
		}
		for _, s := range summaries {
			row := []string{
				strconv.Itoa(s.Cluster), strconv.Itoa(s.Size),
				formatFloat(s.AvgArrests), formatFloat(s.AvgGrade),
				formatFloat(s.PctSuspended), formatFloat(s.PctExpelled),
				formatFloat(s.PctFemale), formatFloat(s.PctMale),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	centroids, err := a.Centroids()
	if err != nil {
		return err
	}
	return writeCSV(filepath.Join(dir, CentroidsFile), func(w *csv.Writer) error {
		if err := w.Write(append([]string{"Cluster"}, FeatureNames...)); err != nil {
			return err
		}
		for c, centroid := range centroids {
			row := make([]string, 0, len(centroid)+1)
			row = append(row, strconv.Itoa(c))
			for _, v := range centroid {
				row = append(row, formatFloat(v))
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeCSV(path string, fill func(*csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := fill(w); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
