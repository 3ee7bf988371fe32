package generator

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/blockstat/forensics/internal/graph"
	"github.com/blockstat/forensics/internal/risk"
)

// DefaultSeed seeds Default, so the fallback dataset has a stable shape
// across runs.
const DefaultSeed int64 = 20240501

// Source is the randomness the generator draws from. *rand.Rand satisfies it.
type Source interface {
	Float64() float64
	Intn(n int) int
}

// Generator builds synthetic forensic datasets: a deployer seeding a wash
// trading ring whose members launder through mixers, surrounded by ordinary
// wallets. A Generator is not safe for concurrent use; its Source is not.
type Generator struct {
	cfg Config
	src Source
}

// New creates a generator. The config is validated here so Generate only
// fails on programming errors.
func New(cfg Config, src Source) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidConfig)
	}
	return &Generator{cfg: cfg, src: src}, nil
}

// NewSeeded creates a default-config generator over a seeded source.
func NewSeeded(seed int64) *Generator {
	return &Generator{cfg: DefaultConfig(), src: rand.New(rand.NewSource(seed))}
}

// Default generates the reference dataset for token with DefaultSeed. Every
// call builds a fresh dataset.
func Default(token string) (*graph.Dataset, error) {
	return NewSeeded(DefaultSeed).Generate(token)
}

// Config returns the generator configuration.
func (g *Generator) Config() Config { return g.cfg }

// wallets holds the generated ids per role, in creation order.
type wallets struct {
	deployer   string
	suspicious []string
	mixers     []string
	normals    []string
}

// Generate builds one dataset. The token address only appears in labels and
// descriptions; it does not influence the graph.
func (g *Generator) Generate(token string) (*graph.Dataset, error) {
	w := g.wallets()
	d := &graph.Dataset{
		Nodes: g.nodes(w, token),
	}
	d.Links = g.links(w)

	metrics, _ := risk.Compute(d.Nodes, d.Links)
	d.Metrics = metrics
	d.RiskScore = risk.CompositeScore(metrics)
	d.TopInfluentialWallets = influencers(d, w)
	d.DetectedCommunities, d.RedFlags = Narratives(NarrativeInput{
		Token:           token,
		Deployer:        w.deployer,
		Suspicious:      w.suspicious,
		Mixers:          w.mixers,
		MixerRecipients: mixerRecipients(d.Links, w),
		GiniCoefficient: metrics.GiniCoefficient,
	})

	if err := graph.Validate(d); err != nil {
		return nil, fmt.Errorf("generator: produced invalid dataset: %w", err)
	}
	return d, nil
}

func (g *Generator) wallets() wallets {
	w := wallets{
		deployer:   "wallet_deployer_001",
		suspicious: make([]string, g.cfg.RingSize),
		mixers:     make([]string, g.cfg.MixerCount),
		normals:    make([]string, g.cfg.Normals()),
	}
	for i := range w.suspicious {
		w.suspicious[i] = fmt.Sprintf("wallet_suspicious_%02d", i+1)
	}
	for i := range w.mixers {
		w.mixers[i] = fmt.Sprintf("wallet_mixer_%02d", i+1)
	}
	for i := range w.normals {
		w.normals[i] = fmt.Sprintf("wallet_normal_%02d", i+1)
	}
	return w
}

// span draws uniformly from [base, base+width).
func (g *Generator) span(base, width float64) float64 {
	return base + g.src.Float64()*width
}

// count draws an integer from [base, base+width).
func (g *Generator) count(base, width int) int {
	return base + g.src.Intn(width)
}

// ---------------------------------------------------------------------------
// Step 1: wallets
// ---------------------------------------------------------------------------

func (g *Generator) nodes(w wallets, token string) []graph.Node {
	nodes := make([]graph.Node, 0, g.cfg.Population)
	nodes = append(nodes, graph.Node{
		ID:           w.deployer,
		Label:        "Deployer",
		Group:        graph.GroupDeployer,
		Value:        5_000_000,
		Transactions: 150,
		RiskScore:    graph.Score(45),
		Description:  fmt.Sprintf("Deployer of %s - initial liquidity provider", token),
	})
	for i, id := range w.suspicious {
		nodes = append(nodes, graph.Node{
			ID:           id,
			Label:        fmt.Sprintf("Suspicious Wallet %d", i+1),
			Group:        graph.GroupSuspicious,
			Value:        g.span(250_000, 500_000),
			Transactions: g.count(45, 60),
			RiskScore:    graph.Score(g.span(78, 20)),
			Description:  "Part of suspected wash trading ring",
		})
	}
	for i, id := range w.mixers {
		nodes = append(nodes, graph.Node{
			ID:           id,
			Label:        fmt.Sprintf("Mixer Connection %d", i+1),
			Group:        graph.GroupMixer,
			Value:        g.span(150_000, 300_000),
			Transactions: g.count(25, 40),
			RiskScore:    graph.Score(g.span(65, 25)),
			Description:  "Connected to privacy mixer service",
		})
	}
	for i, id := range w.normals {
		nodes = append(nodes, graph.Node{
			ID:           id,
			Label:        fmt.Sprintf("Wallet %d", i+1),
			Group:        graph.GroupNormal,
			Value:        g.span(50_000, 200_000),
			Transactions: g.count(10, 30),
			RiskScore:    graph.Score(g.span(15, 20)),
			Description:  "Regular user wallet",
		})
	}
	return nodes
}

// ---------------------------------------------------------------------------
// Steps 2-6: links
// ---------------------------------------------------------------------------

func (g *Generator) links(w wallets) []graph.Link {
	var links []graph.Link
	emit := func(src, dst string, t graph.LinkType, value float64, count int) {
		links = append(links, graph.Link{Source: src, Target: dst, Value: value, Type: t, Count: count})
	}

	// Initial distribution.
	for _, s := range w.suspicious {
		emit(w.deployer, s, graph.LinkTransfer, g.span(100_000, 200_000), 2)
	}

	// Wash ring: i -> (i+1) mod S, 8 to 20 transactions per hop.
	for i, s := range w.suspicious {
		next := w.suspicious[(i+1)%len(w.suspicious)]
		emit(s, next, graph.LinkWash, g.span(150_000, 250_000), g.count(8, 13))
	}

	// Every ring member cashes out through one mixer.
	for _, s := range w.suspicious {
		m := w.mixers[g.src.Intn(len(w.mixers))]
		emit(s, m, graph.LinkMixer, g.span(100_000, 150_000), g.count(3, 4))
	}

	// Mixer fan-out over the sampled mixer x normal pairs.
	mixers := w.mixers[:min(g.cfg.MixerSampleCap, len(w.mixers))]
	normals := w.normals[:min(g.cfg.NormalSampleCap, len(w.normals))]
	for _, m := range mixers {
		for _, n := range normals {
			if g.src.Float64() < g.cfg.MixerFanoutProb {
				emit(m, n, graph.LinkTransfer, g.span(50_000, 100_000), g.count(2, 3))
			}
		}
	}

	// Sparse organic trading.
	if len(w.normals) > 1 {
		for i := 0; i < min(g.cfg.TradeSampleCap, len(w.normals)); i++ {
			if g.src.Float64() >= g.cfg.TradeProb {
				continue
			}
			a := w.normals[g.src.Intn(len(w.normals))]
			b := w.normals[g.src.Intn(len(w.normals))]
			if a == b {
				continue
			}
			emit(a, b, graph.LinkTrade, g.span(30_000, 80_000), g.count(1, 3))
		}
	}
	return links
}

// ---------------------------------------------------------------------------
// Step 7: assigned influence
// ---------------------------------------------------------------------------

// influencers ranks a fixed sample: the deployer, the two most active ring
// members, the first mixer and the first normal wallet. Scores are assigned.
func influencers(d *graph.Dataset, w wallets) []graph.InfluencerMetric {
	holdings := func(id string) float64 {
		n, _ := d.Node(id)
		return n.Value
	}
	out := []graph.InfluencerMetric{
		{Address: w.deployer, PageRankScore: 0.28, Holdings: holdings(w.deployer), RiskLevel: graph.RiskHigh},
	}

	active := append([]string(nil), w.suspicious...)
	tx := make(map[string]int, len(active))
	for _, id := range active {
		n, _ := d.Node(id)
		tx[id] = n.Transactions
	}
	sort.SliceStable(active, func(i, j int) bool { return tx[active[i]] > tx[active[j]] })
	for i, score := range []float64{0.24, 0.22} {
		if i < len(active) {
			out = append(out, graph.InfluencerMetric{
				Address: active[i], PageRankScore: score, Holdings: holdings(active[i]), RiskLevel: graph.RiskCritical,
			})
		}
	}

	out = append(out, graph.InfluencerMetric{
		Address: w.mixers[0], PageRankScore: 0.15, Holdings: holdings(w.mixers[0]), RiskLevel: graph.RiskHigh,
	})
	if len(w.normals) > 0 {
		out = append(out, graph.InfluencerMetric{
			Address: w.normals[0], PageRankScore: 0.11, Holdings: holdings(w.normals[0]), RiskLevel: graph.RiskLow,
		})
	}
	return out
}

// mixerRecipients lists the normal wallets that received mixer funds, in
// wallet order.
func mixerRecipients(links []graph.Link, w wallets) []string {
	mixers := make(map[string]bool, len(w.mixers))
	for _, m := range w.mixers {
		mixers[m] = true
	}
	got := make(map[string]bool)
	for _, l := range links {
		if mixers[l.Source] {
			got[l.Target] = true
		}
	}
	var out []string
	for _, n := range w.normals {
		if got[n] {
			out = append(out, n)
		}
	}
	return out
}
