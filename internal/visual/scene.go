package visual

import (
	"github.com/blockstat/forensics/internal/graph"
	"github.com/blockstat/forensics/internal/mixer"
	"github.com/blockstat/forensics/internal/risk"
)

// NodeAttrs are the render attributes of one node.
type NodeAttrs struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	Kind      string  `json:"kind"` // group, or mixer|wallet in the mixer view
	Color     string  `json:"color"`
	Size      float64 `json:"size"`
	Risk      string  `json:"risk,omitempty"`
	RiskColor string  `json:"riskColor,omitempty"` // empty when the wallet has no score
}

// LinkAttrs are the render attributes of one link.
type LinkAttrs struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Color  string  `json:"color"`
	Width  float64 `json:"width"`
}

// MatrixPoint is one influential wallet on the dumping-risk matrix:
// influence on x, holdings on y, sized by risk score.
type MatrixPoint struct {
	Address     string   `json:"address"`
	PageRank    float64  `json:"pageRank"`
	Holdings    float64  `json:"holdings"`
	RiskScore   float64  `json:"riskScore"`
	Level       string   `json:"level"`
	LevelColor  string   `json:"levelColor"`
	Probability *float64 `json:"probability,omitempty"`
	Color       string   `json:"color"` // probability colour, else LevelColor
	Size        float64  `json:"size"`
}

// Scene is a fully encoded graph, ready for a renderer.
type Scene struct {
	Nodes  []NodeAttrs   `json:"nodes"`
	Links  []LinkAttrs   `json:"links"`
	Matrix []MatrixPoint `json:"matrix,omitempty"`
	Cards  []risk.Card   `json:"cards,omitempty"`
	Level  string        `json:"level,omitempty"` // dataset verdict
}

// DefaultMatrixSizes is the risk-score scale of the dumping-risk matrix.
var DefaultMatrixSizes = SizeRange{Min: 6, Max: 24}

// Options control dataset encoding.
type Options struct {
	Highlighted string    // selected node id, if any
	Sizes       SizeRange // zero value means DefaultNodeSizes

	// DumpingProbabilities holds externally estimated sell probabilities
	// by wallet address. Points without one are coloured by risk level.
	DumpingProbabilities map[string]float64
}

// Encode renders every node and link of d. Scale maxima are computed once.
func Encode(d *graph.Dataset, opts Options) Scene {
	sizes := opts.Sizes
	if sizes == (SizeRange{}) {
		sizes = DefaultNodeSizes
	}

	var maxHoldings, maxVolume float64
	for _, n := range d.Nodes {
		maxHoldings = max(maxHoldings, n.Value)
	}
	for _, l := range d.Links {
		maxVolume = max(maxVolume, l.Value)
	}

	_, degenerate := risk.Compute(d.Nodes, d.Links)
	s := Scene{
		Nodes:  make([]NodeAttrs, len(d.Nodes)),
		Links:  make([]LinkAttrs, len(d.Links)),
		Matrix: encodeMatrix(d, opts.DumpingProbabilities),
		Cards:  risk.Cards(d.Metrics, degenerate...),
		Level:  risk.ClassifyDataset(d.RiskScore).String(),
	}
	for i, n := range d.Nodes {
		s.Nodes[i] = NodeAttrs{
			ID:    n.ID,
			Label: n.Label,
			Kind:  n.Group.String(),
			Color: NodeColor(n.Group, n.ID == opts.Highlighted),
			Size:  NodeSize(n.Value, maxHoldings, sizes),
			Risk:  risk.ClassifyNode(n).String(),
		}
		if score, ok := n.Score(); ok {
			s.Nodes[i].RiskColor = RiskScoreColor(score)
		}
	}
	for i, l := range d.Links {
		s.Links[i] = LinkAttrs{
			Source: l.Source,
			Target: l.Target,
			Color:  EdgeColor(l.Type),
			Width:  EdgeWidth(l.Value, maxVolume),
		}
	}
	return s
}

func encodeMatrix(d *graph.Dataset, probabilities map[string]float64) []MatrixPoint {
	if len(d.TopInfluentialWallets) == 0 {
		return nil
	}
	scores := make(map[string]float64, len(d.TopInfluentialWallets))
	var maxScore float64
	for _, inf := range d.TopInfluentialWallets {
		if n, ok := d.Node(inf.Address); ok {
			if score, ok := n.Score(); ok {
				scores[inf.Address] = score
				maxScore = max(maxScore, score)
			}
		}
	}

	points := make([]MatrixPoint, len(d.TopInfluentialWallets))
	for i, inf := range d.TopInfluentialWallets {
		p := MatrixPoint{
			Address:    inf.Address,
			PageRank:   inf.PageRankScore,
			Holdings:   inf.Holdings,
			RiskScore:  scores[inf.Address],
			Level:      inf.RiskLevel.String(),
			LevelColor: RiskLevelColor(inf.RiskLevel),
			Size:       RiskSize(scores[inf.Address], maxScore, DefaultMatrixSizes),
		}
		p.Color = p.LevelColor
		if prob, ok := probabilities[inf.Address]; ok {
			p.Probability = &prob
			p.Color = ProbabilityColor(prob)
		}
		points[i] = p
	}
	return points
}

// EncodeMixerGraph renders the mixer-exposure view.
func EncodeMixerGraph(g mixer.Graph, highlighted string) Scene {
	s := Scene{
		Nodes: make([]NodeAttrs, 0, len(g.Mixers)+len(g.Wallets)),
		Links: make([]LinkAttrs, len(g.Links)),
	}
	for _, m := range g.Mixers {
		label := m.Label
		if label == "" {
			label = m.Address
		}
		s.Nodes = append(s.Nodes, NodeAttrs{
			ID:    m.Address,
			Label: label,
			Kind:  "mixer",
			Color: MixerNodeColor(true, m.Score, m.Address == highlighted),
			Size:  MixerNodeSize(true),
			Risk:  graph.RiskCritical.String(),
		})
	}
	for _, e := range g.Wallets {
		s.Nodes = append(s.Nodes, NodeAttrs{
			ID:    e.Wallet,
			Label: e.Wallet,
			Kind:  "wallet",
			Color: MixerNodeColor(false, e.Risk, e.Wallet == highlighted),
			Size:  MixerNodeSize(false),
			Risk:  e.Level.String(),
		})
	}
	for i, l := range g.Links {
		s.Links[i] = LinkAttrs{Source: l.Source, Target: l.Target, Color: MixerLinkColor, Width: MixerLinkWidth}
	}
	return s
}
