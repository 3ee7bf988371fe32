package risk

import (
	"errors"

	"github.com/blockstat/forensics/internal/graph"
)

// MixerConnections counts distinct mixer wallets that take part in at least
// one link, as sender or receiver.
func MixerConnections(nodes []graph.Node, links []graph.Link) int {
	mixers := make(map[string]bool)
	for _, n := range nodes {
		if n.Group == graph.GroupMixer {
			mixers[n.ID] = false
		}
	}
	count := 0
	for _, l := range links {
		for _, id := range [2]string{l.Source, l.Target} {
			if seen, ok := mixers[id]; ok && !seen {
				mixers[id] = true
				count++
			}
		}
	}
	return count
}

// SuspiciousClusters is the number of detected trading rings.
func SuspiciousClusters(nodes []graph.Node, links []graph.Link) int {
	return len(DetectRings(nodes, links))
}

// Compute derives the dataset-level metrics from the graph. Holdings of
// every node feed the Gini coefficient. Metrics computed on degenerate input
// fall back to 0 and are reported in the returned warnings.
func Compute(nodes []graph.Node, links []graph.Link) (graph.Metrics, []*DegenerateInputWarning) {
	var warnings []*DegenerateInputWarning
	note := func(err error) {
		var w *DegenerateInputWarning
		if errors.As(err, &w) {
			warnings = append(warnings, w)
		}
	}

	holdings := make([]float64, len(nodes))
	for i, n := range nodes {
		holdings[i] = n.Value
	}
	gini, err := Gini(holdings)
	note(err)

	wash, err := WashTradingScore(nodes, links)
	note(err)

	return graph.Metrics{
		GiniCoefficient:            gini,
		WashTradingScore:           wash,
		MixerConnectionsCount:      MixerConnections(nodes, links),
		SuspiciousClustersDetected: SuspiciousClusters(nodes, links),
	}, warnings
}

// Composite score weights.
const (
	giniWeight    = 30.0
	washWeight    = 0.4
	mixerWeight   = 15.0
	clusterWeight = 15.0
)

// CompositeScore folds the metrics into the 0-100 token risk score:
//
//	30·gini/GiniCap + 0.4·wash + 15·[mixers>0] + 15·[clusters>0]
func CompositeScore(m graph.Metrics) float64 {
	score := giniWeight*m.GiniCoefficient/GiniCap + washWeight*m.WashTradingScore
	if m.MixerConnectionsCount > 0 {
		score += mixerWeight
	}
	if m.SuspiciousClustersDetected > 0 {
		score += clusterWeight
	}
	return clamp(score, 0, 100)
}
