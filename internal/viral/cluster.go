package viral

import "github.com/atlasmedia/pulse/internal/domain"

// Cluster groups signals connected by sufficient keyword overlap. Clusters
// are ephemeral: they exist only within one build pass.
type Cluster struct {
	Signals  []domain.Signal
	Keywords map[string]struct{}
}

// ClusterSignals groups signals into connected components of the overlap
// graph: two signals are cluster-mates when their keyword sets share at
// least minOverlap entries, and membership is the transitive closure of
// that relation (union-find, not naive pairwise grouping).
func ClusterSignals(signals []domain.Signal, minOverlap int) []Cluster {
	if len(signals) == 0 {
		return nil
	}
	if minOverlap < 1 {
		minOverlap = 1
	}

	keywordSets := make([]map[string]struct{}, len(signals))
	for i, s := range signals {
		keywordSets[i] = ExtractKeywords(s.Title + " " + s.RawExcerpt)
	}

	parent := make([]int, len(signals))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	for i := 0; i < len(signals); i++ {
		for j := i + 1; j < len(signals); j++ {
			if CountOverlap(keywordSets[i], keywordSets[j]) >= minOverlap {
				union(i, j)
			}
		}
	}

	byRoot := make(map[int]*Cluster)
	order := make([]int, 0, len(signals))
	for i, s := range signals {
		root := find(i)
		c, ok := byRoot[root]
		if !ok {
			c = &Cluster{Keywords: make(map[string]struct{})}
			byRoot[root] = c
			order = append(order, root)
		}
		c.Signals = append(c.Signals, s)
		for k := range keywordSets[i] {
			c.Keywords[k] = struct{}{}
		}
	}

	// Preserve input order of first members so builds stay deterministic.
	out := make([]Cluster, 0, len(byRoot))
	for _, root := range order {
		out = append(out, *byRoot[root])
	}
	return out
}
