package visual

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockstat/forensics/internal/generator"
	"github.com/blockstat/forensics/internal/graph"
	"github.com/blockstat/forensics/internal/mixer"
	"github.com/blockstat/forensics/internal/query"
)

func TestNodeColor(t *testing.T) {
	assert.Equal(t, "#ff0055", NodeColor(graph.GroupSuspicious, false))
	assert.Equal(t, "#ffaa00", NodeColor(graph.GroupDeployer, false))
	assert.Equal(t, "#ff6600", NodeColor(graph.GroupMixer, false))
	assert.Equal(t, "#00ff41", NodeColor(graph.GroupNormal, false))
	assert.Equal(t, Highlight, NodeColor(graph.GroupMixer, true))
	assert.Equal(t, "#00ff41", NodeColor(graph.Group(0), false))

	seen := make(map[string]bool)
	for _, g := range graph.Groups() {
		seen[NodeColor(g, false)] = true
	}
	assert.Len(t, seen, graph.NumGroups)
}

func TestEdgeColor(t *testing.T) {
	assert.Equal(t, "rgba(255, 0, 85, 0.3)", EdgeColor(graph.LinkWash))
	assert.Equal(t, "rgba(255, 102, 0, 0.3)", EdgeColor(graph.LinkMixer))
	assert.Equal(t, "rgba(0, 255, 65, 0.2)", EdgeColor(graph.LinkTrade))
	assert.Equal(t, "rgba(0, 255, 65, 0.15)", EdgeColor(graph.LinkTransfer))
	for _, lt := range graph.LinkTypes() {
		assert.NotEmpty(t, EdgeColor(lt))
	}
}

func TestNodeSize_ZeroGuard(t *testing.T) {
	assert.Equal(t, 4.0, NodeSize(0, 0, DefaultNodeSizes))
	assert.Equal(t, 4.0, NodeSize(10, 0, DefaultNodeSizes))
	assert.Equal(t, 4.0, NodeSize(10, math.NaN(), DefaultNodeSizes))
	assert.Equal(t, 20.0, NodeSize(50, 50, DefaultNodeSizes))
	assert.Equal(t, 12.0, NodeSize(25, 50, DefaultNodeSizes))
}

func TestEdgeWidth(t *testing.T) {
	assert.Equal(t, 0.5, EdgeWidth(0, 0))
	assert.Equal(t, 0.5, EdgeWidth(5, 0))
	assert.Equal(t, 3.5, EdgeWidth(100, 100))
	assert.Equal(t, 2.0, EdgeWidth(50, 100))
}

func TestScales_Monotonic(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("node size grows with holdings", prop.ForAll(
		func(a, b, m float64) bool {
			if a > b {
				a, b = b, a
			}
			lo, hi := NodeSize(a, m, DefaultNodeSizes), NodeSize(b, m, DefaultNodeSizes)
			return lo <= hi && lo >= DefaultNodeSizes.Min && hi <= DefaultNodeSizes.Max
		},
		gen.Float64Range(0, 1e6),
		gen.Float64Range(0, 1e6),
		gen.Float64Range(0, 1e6),
	))

	properties.Property("edge width grows with volume", prop.ForAll(
		func(a, b, m float64) bool {
			if a > b {
				a, b = b, a
			}
			lo, hi := EdgeWidth(a, m), EdgeWidth(b, m)
			return lo <= hi && lo >= 0.5 && hi <= 3.5
		},
		gen.Float64Range(0, 1e6),
		gen.Float64Range(0, 1e6),
		gen.Float64Range(0, 1e6),
	))

	properties.TestingRun(t)
}

func TestProbabilityColor(t *testing.T) {
	cases := map[float64]string{
		0:    "#00ff41",
		0.19: "#00ff41",
		0.2:  "#88ff00",
		0.4:  "#ffaa00",
		0.6:  "#ff5500",
		0.8:  "#ff0055",
		1:    "#ff0055",
	}
	for p, want := range cases {
		assert.Equal(t, want, ProbabilityColor(p), "p=%v", p)
	}
}

func TestRiskColors(t *testing.T) {
	assert.Equal(t, "#00ff41", RiskScoreColor(29.999))
	assert.Equal(t, "#ffaa00", RiskScoreColor(30))
	assert.Equal(t, "#ff0055", RiskScoreColor(60))

	assert.Equal(t, "#ff0000", RiskLevelColor(graph.RiskCritical))
	assert.Equal(t, "#ff5500", RiskLevelColor(graph.RiskHigh))
	assert.Equal(t, "#ffaa00", RiskLevelColor(graph.RiskMedium))
	assert.Equal(t, "#00ff41", RiskLevelColor(graph.RiskLow))

	assert.Equal(t, 20.0, RiskSize(90, 90, DefaultNodeSizes))
}

func TestMixerEncodings(t *testing.T) {
	assert.Equal(t, MixerColor, MixerNodeColor(true, 0, false))
	assert.Equal(t, "#00ffff", MixerNodeColor(false, 0.1, false))
	assert.Equal(t, "#ffff00", MixerNodeColor(false, 0.33, false))
	assert.Equal(t, "#ff0055", MixerNodeColor(false, 0.66, false))
	assert.Equal(t, "#00ffff", MixerNodeColor(false, math.NaN(), false))
	assert.Equal(t, Highlight, MixerNodeColor(false, 0.1, true))
	assert.Equal(t, 15.0, MixerNodeSize(true))
	assert.Equal(t, 10.0, MixerNodeSize(false))
}

func TestEncode(t *testing.T) {
	d, err := generator.Default("0x1234567890123456789012345678901234567890")
	require.NoError(t, err)

	s := Encode(d, Options{Highlighted: "wallet_mixer_01"})
	require.Len(t, s.Nodes, len(d.Nodes))
	require.Len(t, s.Links, len(d.Links))
	require.Len(t, s.Cards, 4)

	// The deployer holds the most, so it gets the largest size.
	assert.Equal(t, "wallet_deployer_001", s.Nodes[0].ID)
	assert.Equal(t, DefaultNodeSizes.Max, s.Nodes[0].Size)
	for _, n := range s.Nodes {
		assert.GreaterOrEqual(t, n.Size, DefaultNodeSizes.Min)
		assert.LessOrEqual(t, n.Size, DefaultNodeSizes.Max)
		if n.ID == "wallet_mixer_01" {
			assert.Equal(t, Highlight, n.Color)
		}
	}
	for i, l := range s.Links {
		assert.Equal(t, EdgeColor(d.Links[i].Type), l.Color)
	}
}

func TestEncode_EmptyDataset(t *testing.T) {
	s := Encode(&graph.Dataset{}, Options{})
	assert.Empty(t, s.Nodes)
	assert.Empty(t, s.Links)
	assert.Empty(t, s.Matrix)
	assert.Equal(t, "SAFE", s.Level)
}

func TestEncode_Matrix(t *testing.T) {
	d, err := generator.Default("0x1234567890123456789012345678901234567890")
	require.NoError(t, err)
	deployer := d.TopInfluentialWallets[0].Address

	s := Encode(d, Options{DumpingProbabilities: map[string]float64{deployer: 0.85}})
	require.Len(t, s.Matrix, len(d.TopInfluentialWallets))

	var maxScore float64
	for i, p := range s.Matrix {
		inf := d.TopInfluentialWallets[i]
		assert.Equal(t, inf.Address, p.Address)
		assert.Equal(t, inf.PageRankScore, p.PageRank)
		assert.Equal(t, RiskLevelColor(inf.RiskLevel), p.LevelColor)
		assert.GreaterOrEqual(t, p.Size, DefaultMatrixSizes.Min)
		assert.LessOrEqual(t, p.Size, DefaultMatrixSizes.Max)
		maxScore = max(maxScore, p.RiskScore)
	}

	// Only the deployer has a probability; the rest fall back to level colour.
	require.NotNil(t, s.Matrix[0].Probability)
	assert.Equal(t, ProbabilityColor(0.85), s.Matrix[0].Color)
	for _, p := range s.Matrix[1:] {
		assert.Nil(t, p.Probability)
		assert.Equal(t, p.LevelColor, p.Color)
		if p.RiskScore == maxScore {
			assert.Equal(t, DefaultMatrixSizes.Max, p.Size)
		}
	}
}

func TestEncode_NodeRiskColor(t *testing.T) {
	d := &graph.Dataset{Nodes: []graph.Node{
		{ID: "a", Group: graph.GroupNormal, RiskScore: graph.Score(75)},
		{ID: "b", Group: graph.GroupNormal},
	}}
	s := Encode(d, Options{})
	assert.Equal(t, RiskScoreColor(75), s.Nodes[0].RiskColor)
	assert.Empty(t, s.Nodes[1].RiskColor)
}

func TestEncode_CardsFlagDegenerateMetrics(t *testing.T) {
	zero := &graph.Dataset{Nodes: []graph.Node{
		{ID: "a", Group: graph.GroupNormal},
		{ID: "b", Group: graph.GroupNormal},
	}}
	equal := &graph.Dataset{
		Nodes: []graph.Node{
			{ID: "a", Group: graph.GroupNormal, Value: 5},
			{ID: "b", Group: graph.GroupNormal, Value: 5},
		},
		Links: []graph.Link{{Source: "a", Target: "b", Value: 1, Type: graph.LinkTransfer, Count: 1}},
	}

	zs := Encode(zero, Options{})
	es := Encode(equal, Options{})
	assert.True(t, zs.Cards[0].InsufficientData)
	assert.False(t, es.Cards[0].InsufficientData)
	assert.NotEqual(t, zs.Cards[0], es.Cards[0])
}

func TestEncodeMixerGraph(t *testing.T) {
	d, err := generator.Default("0x1234567890123456789012345678901234567890")
	require.NoError(t, err)
	g := mixer.BuildGraph(query.NewIndex(d), mixer.DefaultOptions())

	s := EncodeMixerGraph(g, "")
	require.Len(t, s.Nodes, len(g.Mixers)+len(g.Wallets))
	require.Len(t, s.Links, len(g.Links))
	for _, n := range s.Nodes[:len(g.Mixers)] {
		assert.Equal(t, "mixer", n.Kind)
		assert.Equal(t, MixerColor, n.Color)
		assert.Equal(t, MixerSize, n.Size)
	}
	for _, l := range s.Links {
		assert.Equal(t, MixerLinkColor, l.Color)
		assert.Equal(t, MixerLinkWidth, l.Width)
	}
}
