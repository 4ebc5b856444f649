package cluster

import "math/rand"

// SampleData generates a deterministic synthetic roster for demo runs and
// tests: roughly 40% low-risk, 30% moderate, 20% higher, 10% critical-risk
// profiles, ordered by ascending student id.
func SampleData(n int, seed int64) []Record {
	rng := rand.New(rand.NewSource(seed))

	pick := func(choices []int, weights []float64) int {
		r := rng.Float64()
		acc := 0.0
		for i, w := range weights {
			acc += w
			if r < acc {
				return choices[i]
			}
		}
		return choices[len(choices)-1]
	}

	nLow := n * 40 / 100
	nModerate := n * 30 / 100
	nHigh := n * 20 / 100

	records := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		r := Record{StudentID: i + 1}
		switch {
		case i < nLow:
			r.Gender = rng.Intn(2)
			r.Grade = pick([]int{10, 11, 12}, []float64{0.3, 0.35, 0.35})
		case i < nLow+nModerate:
			r.Gender = rng.Intn(2)
			r.Grade = pick([]int{9, 10, 11}, []float64{0.4, 0.4, 0.2})
			r.Arrests = pick([]int{0, 1, 2}, []float64{0.5, 0.3, 0.2})
			r.Suspended = pick([]int{0, 1}, []float64{0.6, 0.4})
		case i < nLow+nModerate+nHigh:
			r.Gender = pick([]int{0, 1}, []float64{0.3, 0.7})
			r.Grade = pick([]int{9, 10}, []float64{0.6, 0.4})
			r.Arrests = pick([]int{1, 2, 3, 4}, []float64{0.3, 0.3, 0.2, 0.2})
			r.Suspended = 1
			r.Expelled = pick([]int{0, 1}, []float64{0.8, 0.2})
		default:
			r.Gender = pick([]int{0, 1}, []float64{0.2, 0.8})
			r.Grade = 9
			r.Arrests = pick([]int{3, 4, 5, 6}, []float64{0.3, 0.3, 0.2, 0.2})
			r.Suspended = 1
			r.Expelled = pick([]int{0, 1}, []float64{0.5, 0.5})
		}
		records = append(records, r)
	}
	return records
}
