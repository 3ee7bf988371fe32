package query

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/blockstat/forensics/internal/graph"
	"github.com/blockstat/forensics/internal/risk"
)

// ErrNodeNotFound is returned for lookups of an id absent from the dataset.
var ErrNodeNotFound = errors.New("query: node not found")

// DefaultNeighborhoodCap bounds Neighborhood results when no cap is given.
const DefaultNeighborhoodCap = 500

// Index is a read-only adjacency view of one dataset. It is safe for
// concurrent use because the dataset is never mutated after construction.
type Index struct {
	d      *graph.Dataset
	nodes  map[string]int          // id -> position in d.Nodes
	adjOut map[string][]graph.Link // outgoing links per wallet
	adjIn  map[string][]graph.Link // incoming links per wallet
	flags  map[string][]int        // wallet -> red flag positions
	infl   map[string]int          // wallet -> influencer position

	queryCount atomic.Int64
}

// NewIndex builds the adjacency index in one pass over the dataset.
func NewIndex(d *graph.Dataset) *Index {
	idx := &Index{
		d:      d,
		nodes:  make(map[string]int, len(d.Nodes)),
		adjOut: make(map[string][]graph.Link),
		adjIn:  make(map[string][]graph.Link),
		flags:  make(map[string][]int),
		infl:   make(map[string]int, len(d.TopInfluentialWallets)),
	}
	for i, n := range d.Nodes {
		idx.nodes[n.ID] = i
	}
	for _, l := range d.Links {
		idx.adjOut[l.Source] = append(idx.adjOut[l.Source], l)
		idx.adjIn[l.Target] = append(idx.adjIn[l.Target], l)
	}
	for i, f := range d.RedFlags {
		seen := make(map[string]bool, len(f.AffectedWallets))
		for _, w := range f.AffectedWallets {
			if !seen[w] {
				seen[w] = true
				idx.flags[w] = append(idx.flags[w], i)
			}
		}
	}
	for i, m := range d.TopInfluentialWallets {
		if _, dup := idx.infl[m.Address]; !dup {
			idx.infl[m.Address] = i
		}
	}
	return idx
}

// Dataset returns the indexed dataset.
func (idx *Index) Dataset() *graph.Dataset { return idx.d }

// Node returns the node with the given id.
func (idx *Index) Node(id string) (graph.Node, bool) {
	i, ok := idx.nodes[id]
	if !ok {
		return graph.Node{}, false
	}
	return idx.d.Nodes[i], true
}

// Incoming returns a copy of the links targeting id, in dataset order.
func (idx *Index) Incoming(id string) []graph.Link {
	idx.queryCount.Add(1)
	return slices.Clone(idx.adjIn[id])
}

// Outgoing returns a copy of the links leaving id, in dataset order.
func (idx *Index) Outgoing(id string) []graph.Link {
	idx.queryCount.Add(1)
	return slices.Clone(idx.adjOut[id])
}

// AffectingFlags returns the red flags naming id, in dataset order.
func (idx *Index) AffectingFlags(id string) []graph.RedFlag {
	idx.queryCount.Add(1)
	positions := idx.flags[id]
	if len(positions) == 0 {
		return nil
	}
	out := make([]graph.RedFlag, len(positions))
	for i, p := range positions {
		out[i] = idx.d.RedFlags[p]
	}
	return out
}

// Influencer returns the influencer record for id.
func (idx *Index) Influencer(id string) (graph.InfluencerMetric, bool) {
	idx.queryCount.Add(1)
	i, ok := idx.infl[id]
	if !ok {
		return graph.InfluencerMetric{}, false
	}
	return idx.d.TopInfluentialWallets[i], true
}

// ContainingCommunities resolves community membership of id.
func (idx *Index) ContainingCommunities(id string) Membership {
	idx.queryCount.Add(1)
	return ContainingCommunities(idx.d, id)
}

// Hop is a wallet reached by a neighbourhood walk and its distance in hops.
type Hop struct {
	ID    string `json:"id"`
	Depth int    `json:"depth"`
}

// Neighborhood walks links in both directions breadth-first from id and
// returns every wallet within depth hops, the start excluded, nearest first.
// At most limit wallets are returned; limit <= 0 means
// DefaultNeighborhoodCap.
func (idx *Index) Neighborhood(id string, depth, limit int) ([]Hop, error) {
	idx.queryCount.Add(1)
	if _, ok := idx.nodes[id]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	if limit <= 0 {
		limit = DefaultNeighborhoodCap
	}

	visited := map[string]int{id: 0}
	queue := []string{id}
	var out []Hop

	for len(queue) > 0 && len(out) < limit {
		current := queue[0]
		queue = queue[1:]
		d := visited[current]
		if d >= depth {
			continue
		}

		visit := func(next string) {
			if _, seen := visited[next]; seen || len(out) >= limit {
				return
			}
			visited[next] = d + 1
			queue = append(queue, next)
			out = append(out, Hop{ID: next, Depth: d + 1})
		}
		for _, l := range idx.adjOut[current] {
			visit(l.Target)
		}
		for _, l := range idx.adjIn[current] {
			visit(l.Source)
		}
	}
	return out, nil
}

// NodeDetail is everything the detail panel shows for one wallet.
type NodeDetail struct {
	Node        graph.Node              `json:"node"`
	Risk        string                  `json:"risk"`
	Incoming    []graph.Link            `json:"incoming"`
	Outgoing    []graph.Link            `json:"outgoing"`
	Flags       []graph.RedFlag         `json:"flags"`
	Influencer  *graph.InfluencerMetric `json:"influencer,omitempty"`
	Communities Membership              `json:"communities"`
}

// Detail assembles the detail panel for id.
func (idx *Index) Detail(id string) (NodeDetail, error) {
	n, ok := idx.Node(id)
	if !ok {
		return NodeDetail{}, fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	detail := NodeDetail{
		Node:        n,
		Risk:        risk.ClassifyNode(n).String(),
		Incoming:    idx.Incoming(id),
		Outgoing:    idx.Outgoing(id),
		Flags:       idx.AffectingFlags(id),
		Communities: idx.ContainingCommunities(id),
	}
	if m, ok := idx.Influencer(id); ok {
		detail.Influencer = &m
	}
	return detail, nil
}

// Queries returns the number of lookups served by the index.
func (idx *Index) Queries() int64 {
	return idx.queryCount.Load()
}
