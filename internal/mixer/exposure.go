// Package mixer traces how close wallets sit to privacy mixers in the
// transfer graph and builds the mixer-exposure view.
package mixer

import (
	"fmt"
	"math"
	"sort"

	"github.com/blockstat/forensics/internal/graph"
	"github.com/blockstat/forensics/internal/query"
)

// Options tune exposure propagation.
type Options struct {
	MaxDepth int     `yaml:"max_depth"` // hops searched in each direction
	Decay    float64 `yaml:"decay"`     // risk multiplier per extra hop
	MinRisk  float64 `yaml:"min_risk"`  // wallets below this are left out of the view
}

// DefaultOptions traces three hops with the risk halving per extra hop.
func DefaultOptions() Options {
	return Options{MaxDepth: 3, Decay: 0.5, MinRisk: 0}
}

// Exposure risk level floors.
const (
	criticalExposure = 0.75
	highExposure     = 0.5
	mediumExposure   = 0.25
)

// Exposure is one wallet's proximity to mixers. Forward counts mixers the
// wallet sends funds towards, Backward counts mixers its funds came from.
type Exposure struct {
	Wallet       string          `json:"wallet"`
	IsMixer      bool            `json:"isMixer"`
	Exposed      bool            `json:"exposed"`
	NearestMixer string          `json:"nearestMixer,omitempty"`
	Distance     int             `json:"distance"` // hops to NearestMixer, -1 if none
	AvgDistance  float64         `json:"avgDistance"`
	Mixers       int             `json:"mixers"` // distinct mixers within reach
	Forward      int             `json:"forwardPaths"`
	Backward     int             `json:"backwardPaths"`
	Risk         float64         `json:"risk"` // 0-1
	Level        graph.RiskLevel `json:"level"`
	RiskFactors  []string        `json:"riskFactors,omitempty"`
}

// IsMixerNode reports whether n is a mixer: either classified as one or a
// known mixer contract.
func IsMixerNode(n graph.Node) bool {
	if n.Group == graph.GroupMixer {
		return true
	}
	_, known := graph.IsKnownMixer(n.ID)
	return known
}

// ExposureOf traces wallet's exposure through the index.
func ExposureOf(idx *query.Index, wallet string, opts Options) (Exposure, error) {
	n, ok := idx.Node(wallet)
	if !ok {
		return Exposure{}, fmt.Errorf("mixer: %w: %q", query.ErrNodeNotFound, wallet)
	}
	e := Exposure{Wallet: wallet, Distance: -1, Level: graph.RiskLow}
	if IsMixerNode(n) {
		e.IsMixer = true
		e.Exposed = true
		e.Distance = 0
		e.NearestMixer = wallet
		e.Risk = 1
		e.Level = graph.RiskCritical
		e.RiskFactors = []string{"wallet is a mixer"}
		return e, nil
	}

	forward := reachMixers(idx, wallet, opts.MaxDepth, true)
	backward := reachMixers(idx, wallet, opts.MaxDepth, false)
	e.Forward = len(forward)
	e.Backward = len(backward)

	nearest := make(map[string]int, len(forward)+len(backward))
	for _, side := range []map[string]int{forward, backward} {
		for id, d := range side {
			if cur, ok := nearest[id]; !ok || d < cur {
				nearest[id] = d
			}
		}
	}
	if len(nearest) == 0 {
		return e, nil
	}

	ids := make([]string, 0, len(nearest))
	total := 0
	for id, d := range nearest {
		ids = append(ids, id)
		total += d
	}
	sort.Slice(ids, func(i, j int) bool {
		if nearest[ids[i]] != nearest[ids[j]] {
			return nearest[ids[i]] < nearest[ids[j]]
		}
		return ids[i] < ids[j]
	})

	e.Exposed = true
	e.Mixers = len(ids)
	e.NearestMixer = ids[0]
	e.Distance = nearest[ids[0]]
	e.AvgDistance = float64(total) / float64(len(ids))
	e.Risk = math.Pow(opts.Decay, float64(e.Distance-1))
	e.Level = exposureLevel(e.Risk)
	e.RiskFactors = riskFactors(e)
	return e, nil
}

// reachMixers returns each mixer reachable from wallet within depth hops in
// one direction, with its hop distance.
func reachMixers(idx *query.Index, wallet string, depth int, forward bool) map[string]int {
	found := make(map[string]int)
	visited := map[string]int{wallet: 0}
	queue := []string{wallet}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		d := visited[current]
		if d >= depth {
			continue
		}
		var links []graph.Link
		if forward {
			links = idx.Outgoing(current)
		} else {
			links = idx.Incoming(current)
		}
		for _, l := range links {
			next := l.Target
			if !forward {
				next = l.Source
			}
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = d + 1
			if n, ok := idx.Node(next); ok && IsMixerNode(n) {
				found[next] = d + 1
				// Funds are attributed to the first mixer on a path.
				continue
			}
			queue = append(queue, next)
		}
	}
	return found
}

func exposureLevel(risk float64) graph.RiskLevel {
	switch {
	case risk >= criticalExposure:
		return graph.RiskCritical
	case risk >= highExposure:
		return graph.RiskHigh
	case risk >= mediumExposure:
		return graph.RiskMedium
	default:
		return graph.RiskLow
	}
}

func riskFactors(e Exposure) []string {
	var out []string
	if e.Distance == 1 {
		out = append(out, "direct transfer with a mixer")
	}
	if e.Backward > 0 {
		out = append(out, fmt.Sprintf("received funds originating from %d mixer(s)", e.Backward))
	}
	if e.Forward > 0 {
		out = append(out, fmt.Sprintf("sent funds towards %d mixer(s)", e.Forward))
	}
	if e.Mixers > 1 {
		out = append(out, "connected to multiple mixers")
	}
	return out
}
