package mixer

import (
	"sort"

	"github.com/blockstat/forensics/internal/graph"
	"github.com/blockstat/forensics/internal/query"
)

// BehavioralMixer is the mixer type of wallets classified as mixers by the
// analysis rather than matched against a known contract.
const BehavioralMixer = "behavioral"

// Report describes one mixer and its traffic.
type Report struct {
	Address        string  `json:"address"`
	Label          string  `json:"label"`
	Type           string  `json:"mixerType"`
	Score          float64 `json:"score"` // 0-1
	IncomingTx     int     `json:"totalIncoming"`
	OutgoingTx     int     `json:"totalOutgoing"`
	IncomingAmount float64 `json:"totalIncomingAmount"`
	OutgoingAmount float64 `json:"totalOutgoingAmount"`
}

// Statistics summarise a mixer view.
type Statistics struct {
	MixersDetected int     `json:"mixersDetected"`
	WalletsExposed int     `json:"walletsExposed"`
	Critical       int     `json:"critical"`
	High           int     `json:"high"`
	Medium         int     `json:"medium"`
	Low            int     `json:"low"`
	AvgRisk        float64 `json:"avgRisk"`
	MaxRisk        float64 `json:"maxRisk"`
}

// Graph is the mixer-exposure view: the mixers, the wallets exposed to them
// and the links among those nodes.
type Graph struct {
	Mixers     []Report     `json:"mixers"`
	Wallets    []Exposure   `json:"wallets"` // highest risk first
	Links      []graph.Link `json:"links"`
	Statistics Statistics   `json:"statistics"`
}

// BuildGraph traces the exposure of every wallet in the index.
func BuildGraph(idx *query.Index, opts Options) Graph {
	d := idx.Dataset()
	var g Graph
	keep := make(map[string]bool)

	for _, n := range d.Nodes {
		if !IsMixerNode(n) {
			continue
		}
		keep[n.ID] = true
		g.Mixers = append(g.Mixers, report(idx, n))
	}

	for _, n := range d.Nodes {
		if keep[n.ID] {
			continue
		}
		e, err := ExposureOf(idx, n.ID, opts)
		if err != nil || !e.Exposed || e.Risk < opts.MinRisk {
			continue
		}
		keep[n.ID] = true
		g.Wallets = append(g.Wallets, e)
	}
	sort.SliceStable(g.Wallets, func(i, j int) bool {
		return g.Wallets[i].Risk > g.Wallets[j].Risk
	})

	for _, l := range d.Links {
		if keep[l.Source] && keep[l.Target] {
			g.Links = append(g.Links, l)
		}
	}
	g.Statistics = statistics(g)
	return g
}

func report(idx *query.Index, n graph.Node) Report {
	r := Report{Address: n.ID, Label: n.Label, Type: BehavioralMixer, Score: 1}
	if kind, ok := graph.IsKnownMixer(n.ID); ok {
		r.Type = kind
	} else if s, ok := n.Score(); ok {
		r.Score = s / 100
	}
	for _, l := range idx.Incoming(n.ID) {
		r.IncomingTx += l.Count
		r.IncomingAmount += l.Value
	}
	for _, l := range idx.Outgoing(n.ID) {
		r.OutgoingTx += l.Count
		r.OutgoingAmount += l.Value
	}
	return r
}

func statistics(g Graph) Statistics {
	s := Statistics{MixersDetected: len(g.Mixers), WalletsExposed: len(g.Wallets)}
	var sum float64
	for _, e := range g.Wallets {
		sum += e.Risk
		s.MaxRisk = max(s.MaxRisk, e.Risk)
		switch e.Level {
		case graph.RiskCritical:
			s.Critical++
		case graph.RiskHigh:
			s.High++
		case graph.RiskMedium:
			s.Medium++
		default:
			s.Low++
		}
	}
	if len(g.Wallets) > 0 {
		s.AvgRisk = sum / float64(len(g.Wallets))
	}
	return s
}
