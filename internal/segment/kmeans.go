package segment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"github.com/chainsight-ai/chainsight-backend/pkg/config"
	"golang.org/x/sync/errgroup"
)

// Assignment places one point in a cluster.
type Assignment struct {
	Index     int
	ClusterID int
	Distance  float64
}

// Result is the outcome of one clustering run. Cluster IDs are run-local;
// cross-run identity comes from centroid reconciliation in the profiler.
type Result struct {
	Centroids    [][]float64
	Assignments  []Assignment
	MemberCounts []int
	Converged    bool
	Iterations   int
	Inertia      float64
	// InertiaHistory records total within-cluster squared distance after
	// each iteration; it is non-increasing until convergence or the cap.
	InertiaHistory []float64
	DaviesBouldin  float64
	Silhouette     float64
}

// Run clusters standardized points with Lloyd's algorithm. Initialization
// draws K distinct points using the seeded generator, so identical input and
// seed reproduce identical centroids and assignments. Each iteration is a
// parallel nearest-centroid map followed by a sequential centroid reduce; the
// iteration cap bounds the loop even without tolerance convergence.
func Run(ctx context.Context, points [][]float64, cfg config.SegmentConfig) (Result, error) {
	if len(points) == 0 {
		return Result{}, errors.New("no points to cluster")
	}
	k := cfg.Clusters
	if k > len(points) {
		return Result{}, fmt.Errorf("cannot form %d clusters from %d points", k, len(points))
	}
	dims := len(points[0])

	rng := rand.New(rand.NewSource(cfg.Seed))
	centroids := initialCentroids(rng, points, k)

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	result := Result{
		Assignments: make([]Assignment, len(points)),
	}

	for iter := 0; iter < cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		if err := assignAll(ctx, points, centroids, result.Assignments, workers); err != nil {
			return Result{}, err
		}

		next := make([][]float64, k)
		counts := make([]int, k)
		for i := range next {
			next[i] = make([]float64, dims)
		}
		for _, a := range result.Assignments {
			counts[a.ClusterID]++
			for d, v := range points[a.Index] {
				next[a.ClusterID][d] += v
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				// An emptied cluster keeps its previous centroid.
				copy(next[c], centroids[c])
				continue
			}
			for d := 0; d < dims; d++ {
				next[c][d] /= float64(counts[c])
			}
		}

		movement := 0.0
		for c := 0; c < k; c++ {
			if move := euclidean(centroids[c], next[c]); move > movement {
				movement = move
			}
		}
		centroids = next
		result.Iterations = iter + 1

		inertia := 0.0
		for _, a := range result.Assignments {
			d := euclidean(points[a.Index], centroids[a.ClusterID])
			inertia += d * d
		}
		result.InertiaHistory = append(result.InertiaHistory, inertia)
		result.Inertia = inertia

		if movement < cfg.ConvergenceTolerance {
			result.Converged = true
			break
		}
	}

	// Final assignments against the settled centroids. Member counts and
	// inertia are derived from these, so every published count agrees with
	// the published assignments even when the iteration cap cut the loop
	// short of a settled labeling.
	if err := assignAll(ctx, points, centroids, result.Assignments, workers); err != nil {
		return Result{}, err
	}

	counts := make([]int, k)
	inertia := 0.0
	for _, a := range result.Assignments {
		counts[a.ClusterID]++
		inertia += a.Distance * a.Distance
	}
	result.MemberCounts = counts
	result.Inertia = inertia
	if n := len(result.InertiaHistory); n > 0 {
		// Reassignment against fixed centroids can only lower the last
		// in-loop measurement, so the history stays non-increasing.
		result.InertiaHistory[n-1] = inertia
	}

	result.Centroids = centroids
	result.DaviesBouldin = daviesBouldin(points, result)
	result.Silhouette = silhouette(points, result)
	return result, nil
}

func initialCentroids(rng *rand.Rand, points [][]float64, k int) [][]float64 {
	perm := rng.Perm(len(points))
	centroids := make([][]float64, k)
	for i := 0; i < k; i++ {
		src := points[perm[i]]
		centroids[i] = make([]float64, len(src))
		copy(centroids[i], src)
	}
	return centroids
}

// assignAll is the parallel map phase: each worker labels a contiguous chunk
// with its nearest centroid.
func assignAll(ctx context.Context, points, centroids [][]float64, out []Assignment, workers int) error {
	group, _ := errgroup.WithContext(ctx)
	chunk := (len(points) + workers - 1) / workers

	for start := 0; start < len(points); start += chunk {
		start := start
		end := start + chunk
		if end > len(points) {
			end = len(points)
		}
		group.Go(func() error {
			for i := start; i < end; i++ {
				cluster, dist := nearestCentroid(points[i], centroids)
				out[i] = Assignment{Index: i, ClusterID: cluster, Distance: dist}
			}
			return nil
		})
	}
	return group.Wait()
}

func nearestCentroid(point []float64, centroids [][]float64) (int, float64) {
	best := 0
	bestDist := math.Inf(1)
	for c, centroid := range centroids {
		if d := euclidean(point, centroid); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best, bestDist
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// daviesBouldin scores cluster separation; lower is better. Reported for run
// observability, never used to pick K.
func daviesBouldin(points [][]float64, result Result) float64 {
	k := len(result.Centroids)
	if k < 2 {
		return 0
	}

	scatter := make([]float64, k)
	counts := make([]int, k)
	for _, a := range result.Assignments {
		scatter[a.ClusterID] += a.Distance
		counts[a.ClusterID]++
	}
	for c := 0; c < k; c++ {
		if counts[c] > 0 {
			scatter[c] /= float64(counts[c])
		}
	}

	var sum float64
	active := 0
	for i := 0; i < k; i++ {
		if counts[i] == 0 {
			continue
		}
		active++
		worst := 0.0
		for j := 0; j < k; j++ {
			if i == j || counts[j] == 0 {
				continue
			}
			separation := euclidean(result.Centroids[i], result.Centroids[j])
			if separation == 0 {
				continue
			}
			if ratio := (scatter[i] + scatter[j]) / separation; ratio > worst {
				worst = ratio
			}
		}
		sum += worst
	}
	if active == 0 {
		return 0
	}
	return sum / float64(active)
}

// silhouette is the mean silhouette coefficient over all points; it ranges in
// [-1, 1] and higher is better. Like Davies-Bouldin it is reported for run
// observability only. Singleton-cluster points score zero.
func silhouette(points [][]float64, result Result) float64 {
	k := len(result.Centroids)
	if k < 2 || len(points) < 2 {
		return 0
	}

	members := make([][]int, k)
	for _, a := range result.Assignments {
		members[a.ClusterID] = append(members[a.ClusterID], a.Index)
	}

	var total float64
	for _, a := range result.Assignments {
		own := members[a.ClusterID]
		if len(own) < 2 {
			continue
		}

		var cohesion float64
		for _, idx := range own {
			if idx != a.Index {
				cohesion += euclidean(points[a.Index], points[idx])
			}
		}
		cohesion /= float64(len(own) - 1)

		separation := math.Inf(1)
		for c, other := range members {
			if c == a.ClusterID || len(other) == 0 {
				continue
			}
			var dist float64
			for _, idx := range other {
				dist += euclidean(points[a.Index], points[idx])
			}
			if dist /= float64(len(other)); dist < separation {
				separation = dist
			}
		}
		if math.IsInf(separation, 1) {
			continue
		}

		if widest := math.Max(cohesion, separation); widest > 0 {
			total += (separation - cohesion) / widest
		}
	}
	return total / float64(len(points))
}
