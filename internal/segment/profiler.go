package segment

import "math"

// Archetype names. Labels come from matching centroids against descriptor
// profiles in standardized space; a centroid too far from every descriptor
// falls back to the mixed label.
const (
	ArchetypePremiumStable   = "Premium-Stable"
	ArchetypePremiumVolatile = "Premium-Volatile"
	ArchetypeSeasonalSpiky   = "Seasonal-Spiky"
	ArchetypeSteadyMover     = "Steady-Mover"
	ArchetypeGrowthRiser     = "Growth-Riser"
	ArchetypeDecliningTail   = "Declining-Tail"
	ArchetypeStockoutProne   = "Stockout-Prone"
	ArchetypeLongTailErratic = "Long-Tail-Erratic"
	ArchetypeMixedProfile    = "Mixed-Profile"
)

// descriptor is a reference point in standardized feature space:
// [annual revenue, demand CV, seasonality, trend slope, stockout freq,
// supplier reliability].
type descriptor struct {
	name    string
	profile []float64
}

var descriptors = []descriptor{
	{ArchetypePremiumStable, []float64{1.5, -1.0, -0.5, 0, -0.5, 0.5}},
	{ArchetypePremiumVolatile, []float64{1.5, 1.2, 0, 0, 0, 0}},
	{ArchetypeSeasonalSpiky, []float64{0, 1.0, 1.5, 0, 0, 0}},
	{ArchetypeSteadyMover, []float64{0, -1.0, -0.5, 0, -0.5, 0.5}},
	{ArchetypeGrowthRiser, []float64{0.5, 0, 0, 1.5, 0, 0}},
	{ArchetypeDecliningTail, []float64{-1.0, 0, 0, -1.5, 0, 0}},
	{ArchetypeStockoutProne, []float64{0, 0.5, 0, 0, 1.5, -1.0}},
	{ArchetypeLongTailErratic, []float64{-1.0, 1.5, 0, 0, 0.5, 0}},
}

// Archetypes lists every nameable profile, excluding the fallback.
func Archetypes() []string {
	names := make([]string, len(descriptors))
	for i, d := range descriptors {
		names[i] = d.name
	}
	return names
}

// Profiler labels cluster centroids with business archetypes.
type Profiler struct {
	// closeness caps the distance at which a centroid can still claim an
	// archetype; beyond it the label is Mixed-Profile.
	closeness float64
}

func NewProfiler(closeness float64) *Profiler {
	return &Profiler{closeness: closeness}
}

// Label names one standardized centroid by its nearest descriptor. Multiple
// centroids may share an archetype; a centroid outside the closeness radius of
// every descriptor gets the fallback label.
func (p *Profiler) Label(centroid []float64) string {
	best := ArchetypeMixedProfile
	bestDist := math.Inf(1)
	for _, d := range descriptors {
		if dist := euclidean(centroid, d.profile); dist < bestDist {
			best = d.name
			bestDist = dist
		}
	}
	if bestDist > p.closeness {
		return ArchetypeMixedProfile
	}
	return best
}

// LabelAll names each centroid independently.
func (p *Profiler) LabelAll(centroids [][]float64) []string {
	labels := make([]string, len(centroids))
	for i, c := range centroids {
		labels[i] = p.Label(c)
	}
	return labels
}

// Reconcile carries labels across runs by greedy nearest-centroid matching:
// the closest (previous, current) centroid pair inherits the previous label,
// then the next closest among the unmatched, until one side is exhausted.
// Current centroids with no previous counterpart are labeled fresh. This keeps
// archetype names stable when cluster geometry drifts only slightly between
// runs.
func (p *Profiler) Reconcile(prev, curr [][]float64, prevLabels []string) []string {
	labels := make([]string, len(curr))
	if len(prev) == 0 || len(prevLabels) != len(prev) {
		return p.LabelAll(curr)
	}

	type pair struct {
		prev, curr int
		dist       float64
	}
	pairs := make([]pair, 0, len(prev)*len(curr))
	for i := range prev {
		for j := range curr {
			pairs = append(pairs, pair{i, j, euclidean(prev[i], curr[j])})
		}
	}
	// Selection by repeated minimum keeps this simple; K is at most 12.
	prevUsed := make([]bool, len(prev))
	currUsed := make([]bool, len(curr))
	matched := 0
	limit := len(prev)
	if len(curr) < limit {
		limit = len(curr)
	}
	for matched < limit {
		bestIdx := -1
		bestDist := math.Inf(1)
		for idx, pr := range pairs {
			if prevUsed[pr.prev] || currUsed[pr.curr] {
				continue
			}
			if pr.dist < bestDist {
				bestDist = pr.dist
				bestIdx = idx
			}
		}
		if bestIdx < 0 {
			break
		}
		pr := pairs[bestIdx]
		prevUsed[pr.prev] = true
		currUsed[pr.curr] = true
		labels[pr.curr] = prevLabels[pr.prev]
		matched++
	}

	for j := range curr {
		if !currUsed[j] {
			labels[j] = p.Label(curr[j])
		}
	}
	return labels
}
