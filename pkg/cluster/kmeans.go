package cluster

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

type kmeansResult struct {
	labels    []int
	centroids [][]float64
	inertia   float64
}

const maxKMeansIterations = 300

// runKMeans partitions points into k clusters by Lloyd iteration from a
// k-means++ style seeded initialization. restarts independent runs share one
// seeded rand stream and the lowest within-cluster sum of squares wins, so
// the result is a pure function of (points, k, seed).
func runKMeans(points [][]float64, k int, seed int64, restarts int) kmeansResult {
	rng := rand.New(rand.NewSource(seed))

	best := kmeansResult{inertia: math.Inf(1)}
	for r := 0; r < restarts; r++ {
		result := lloyd(points, k, rng)
		if result.inertia < best.inertia {
			best = result
		}
	}

	// Relabel clusters by first appearance so cluster ids are stable across
	// runs regardless of which restart won.
	return canonicalize(best, k)
}

func lloyd(points [][]float64, k int, rng *rand.Rand) kmeansResult {
	centroids := seedCentroids(points, k, rng)
	labels := make([]int, len(points))

	for iter := 0; iter < maxKMeansIterations; iter++ {
		changed := false
		for i, p := range points {
			c := nearest(centroids, p)
			if c != labels[i] {
				labels[i] = c
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}
		recenter(points, labels, centroids)
	}

	inertia := 0.0
	for i, p := range points {
		d := floats.Distance(p, centroids[labels[i]], 2)
		inertia += d * d
	}
	return kmeansResult{labels: labels, centroids: centroids, inertia: inertia}
}

// seedCentroids picks k starting centers: the first uniformly, the rest
// weighted by squared distance to the nearest already-chosen center.
func seedCentroids(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	first := points[rng.Intn(len(points))]
	centroids = append(centroids, append([]float64(nil), first...))

	dist2 := make([]float64, len(points))
	for len(centroids) < k {
		total := 0.0
		for i, p := range points {
			d := floats.Distance(p, centroids[len(centroids)-1], 2)
			d2 := d * d
			if len(centroids) == 1 || d2 < dist2[i] {
				dist2[i] = d2
			}
			total += dist2[i]
		}

		var next []float64
		if total == 0 {
			next = points[rng.Intn(len(points))]
		} else {
			target := rng.Float64() * total
			acc := 0.0
			next = points[len(points)-1]
			for i, p := range points {
				acc += dist2[i]
				if acc >= target {
					next = p
					break
				}
			}
		}
		centroids = append(centroids, append([]float64(nil), next...))
	}
	return centroids
}

// nearest returns the index of the closest centroid, lowest index on ties.
func nearest(centroids [][]float64, p []float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := floats.Distance(p, centroid, 2); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// recenter moves each centroid to the mean of its members. An emptied
// cluster is reseeded with the point farthest from its centroid's former
// position, keeping every cluster non-empty.
func recenter(points [][]float64, labels []int, centroids [][]float64) {
	nFeatures := len(points[0])
	counts := make([]int, len(centroids))
	sums := make([][]float64, len(centroids))
	for c := range sums {
		sums[c] = make([]float64, nFeatures)
	}

	for i, p := range points {
		counts[labels[i]]++
		floats.Add(sums[labels[i]], p)
	}

	for c := range centroids {
		if counts[c] == 0 {
			far, farDist := 0, -1.0
			for i, p := range points {
				if d := floats.Distance(p, centroids[c], 2); d > farDist {
					far, farDist = i, d
				}
			}
			copy(centroids[c], points[far])
			continue
		}
		for j := 0; j < nFeatures; j++ {
			centroids[c][j] = sums[c][j] / float64(counts[c])
		}
	}
}

// canonicalize renumbers clusters in order of first appearance in the label
// slice.
func canonicalize(result kmeansResult, k int) kmeansResult {
	mapping := make([]int, k)
	for i := range mapping {
		mapping[i] = -1
	}
	next := 0
	for _, label := range result.labels {
		if mapping[label] == -1 {
			mapping[label] = next
			next++
		}
	}
	// Clusters absent from labels keep their relative order at the end.
	for old := range mapping {
		if mapping[old] == -1 {
			mapping[old] = next
			next++
		}
	}

	labels := make([]int, len(result.labels))
	for i, label := range result.labels {
		labels[i] = mapping[label]
	}
	centroids := make([][]float64, k)
	for old, renumbered := range mapping {
		centroids[renumbered] = result.centroids[old]
	}
	return kmeansResult{labels: labels, centroids: centroids, inertia: result.inertia}
}
