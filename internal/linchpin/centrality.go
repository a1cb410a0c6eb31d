package linchpin

import (
	"math/rand"
	"sort"

	"smartchimera/internal/types"
)

// Snapshot is a per-request, read-only view of the collaboration graph.
type Snapshot struct {
	Nodes []string
	Names map[string]string
	Edges []types.CollaborationEdge
}

// adjacency builds a sorted, deduplicated neighbour list per node. Endpoints
// missing from Nodes are added; self loops are dropped.
func (s Snapshot) adjacency() ([]string, map[string][]string) {
	adj := make(map[string]map[string]struct{}, len(s.Nodes))
	for _, n := range s.Nodes {
		adj[n] = make(map[string]struct{})
	}
	for _, e := range s.Edges {
		if e.A == e.B {
			continue
		}
		for _, n := range []string{e.A, e.B} {
			if _, ok := adj[n]; !ok {
				adj[n] = make(map[string]struct{})
			}
		}
		adj[e.A][e.B] = struct{}{}
		adj[e.B][e.A] = struct{}{}
	}

	nodes := make([]string, 0, len(adj))
	out := make(map[string][]string, len(adj))
	for n, set := range adj {
		nodes = append(nodes, n)
		nbrs := make([]string, 0, len(set))
		for m := range set {
			nbrs = append(nbrs, m)
		}
		sort.Strings(nbrs)
		out[n] = nbrs
	}
	sort.Strings(nodes)
	return nodes, out
}

// Betweenness computes normalized betweenness centrality over the unweighted
// undirected graph using Brandes' algorithm. Shortest-path ties split credit
// by path counts. When the graph has more than cfg.ApproxNodeThreshold nodes
// (and the threshold is positive) only cfg.SamplePivots seeded sources are
// used and the result is scaled by n/k; approximate reports whether that
// happened.
func Betweenness(snap Snapshot, cfg Config) (scores map[string]float64, approximate bool) {
	nodes, adj := snap.adjacency()
	n := len(nodes)
	scores = make(map[string]float64, n)
	for _, v := range nodes {
		scores[v] = 0
	}
	if n < 3 {
		return scores, false
	}

	sources := nodes
	if cfg.ApproxNodeThreshold > 0 && n > cfg.ApproxNodeThreshold && cfg.SamplePivots > 0 && cfg.SamplePivots < n {
		rng := rand.New(rand.NewSource(cfg.Seed))
		perm := rng.Perm(n)[:cfg.SamplePivots]
		sort.Ints(perm)
		sources = make([]string, len(perm))
		for i, idx := range perm {
			sources[i] = nodes[idx]
		}
		approximate = true
	}

	// Reused per-source buffers.
	sigma := make(map[string]float64, n)
	dist := make(map[string]int, n)
	delta := make(map[string]float64, n)
	preds := make(map[string][]string, n)
	stack := make([]string, 0, n)
	queue := make([]string, 0, n)

	for _, s := range sources {
		for _, v := range nodes {
			sigma[v] = 0
			dist[v] = -1
			delta[v] = 0
			preds[v] = preds[v][:0]
		}
		sigma[s] = 1
		dist[s] = 0
		stack = stack[:0]
		queue = append(queue[:0], s)

		for head := 0; head < len(queue); head++ {
			v := queue[head]
			stack = append(stack, v)
			for _, w := range adj[v] {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}

		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				scores[w] += delta[w]
			}
		}
	}

	// Each unordered pair was counted from both ends; normalize by the
	// (n-1)(n-2)/2 pairs that exclude the node itself.
	scale := 1.0 / float64((n-1)*(n-2))
	if approximate {
		scale *= float64(n) / float64(len(sources))
	}
	for v := range scores {
		scores[v] *= scale
	}
	return scores, approximate
}
