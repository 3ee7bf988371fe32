// Package query answers node-centric lookups over a dataset. The package
// functions scan the dataset on every call; Index precomputes adjacency for
// repeated lookups against the same dataset.
package query

import "github.com/blockstat/forensics/internal/graph"

// Incoming returns every link whose target is id, in dataset order.
func Incoming(d *graph.Dataset, id string) []graph.Link {
	var out []graph.Link
	for _, l := range d.Links {
		if l.Target == id {
			out = append(out, l)
		}
	}
	return out
}

// Outgoing returns every link whose source is id, in dataset order.
func Outgoing(d *graph.Dataset, id string) []graph.Link {
	var out []graph.Link
	for _, l := range d.Links {
		if l.Source == id {
			out = append(out, l)
		}
	}
	return out
}

// AffectingFlags returns the red flags naming id.
func AffectingFlags(d *graph.Dataset, id string) []graph.RedFlag {
	var out []graph.RedFlag
	for _, f := range d.RedFlags {
		if f.Affects(id) {
			out = append(out, f)
		}
	}
	return out
}

// Influencer returns the influencer record for id, if the wallet is ranked.
func Influencer(d *graph.Dataset, id string) (graph.InfluencerMetric, bool) {
	for _, m := range d.TopInfluentialWallets {
		if m.Address == id {
			return m, true
		}
	}
	return graph.InfluencerMetric{}, false
}

// Membership is the answer to a community lookup. Communities lists the
// communities that explicitly name the wallet. Unresolved lists those that
// carry no member list, so the wallet may or may not belong to them.
type Membership struct {
	Communities []graph.Community `json:"communities"`
	Unresolved  []graph.Community `json:"unresolved"`
}

// ContainingCommunities resolves which communities contain id. Membership is
// only asserted from explicit member lists; nothing is inferred from links.
func ContainingCommunities(d *graph.Dataset, id string) Membership {
	var m Membership
	for _, c := range d.DetectedCommunities {
		switch {
		case !c.HasMembers():
			m.Unresolved = append(m.Unresolved, c)
		case c.Contains(id):
			m.Communities = append(m.Communities, c)
		}
	}
	return m
}
