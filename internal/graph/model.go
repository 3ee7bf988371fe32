package graph

// ---------------------------------------------------------------------------
// Forensic graph entity model: wallets, aggregated transfers, findings
// One Dataset is one analysis: built atomically, read-only afterwards.
// ---------------------------------------------------------------------------

// Node is a wallet in the analysed token's holder graph.
type Node struct {
	ID           string   `json:"id" validate:"required"`
	Label        string   `json:"label"`
	Group        Group    `json:"group"`
	Value        float64  `json:"value" validate:"gte=0"`        // token holdings
	Transactions int      `json:"transactions" validate:"gte=0"` // activity count
	RiskScore    *float64 `json:"riskScore,omitempty" validate:"omitempty,gte=0,lte=100"`
	Description  string   `json:"description,omitempty"`
}

// Score returns the node risk score and whether one was supplied.
func (n Node) Score() (float64, bool) {
	if n.RiskScore == nil {
		return 0, false
	}
	return *n.RiskScore, true
}

// Link aggregates the transfers of one type from Source to Target.
type Link struct {
	Source string   `json:"source" validate:"required"`
	Target string   `json:"target" validate:"required"`
	Value  float64  `json:"value" validate:"gte=0"` // aggregate volume
	Type   LinkType `json:"type"`
	Count  int      `json:"count" validate:"gt=0"`
}

// InfluencerMetric ranks a wallet by network influence.
type InfluencerMetric struct {
	Address       string    `json:"address" validate:"required"`
	PageRankScore float64   `json:"pageRankScore" validate:"gte=0,lte=1"`
	Holdings      float64   `json:"holdings" validate:"gte=0"`
	RiskLevel     RiskLevel `json:"riskLevel"`
}

// Community is a detected wallet cluster. MemberWalletIDs is optional:
// producers that only know the size leave it empty.
type Community struct {
	ID              string    `json:"id" validate:"required"`
	Name            string    `json:"name"`
	WalletCount     int       `json:"walletCount" validate:"gt=0"`
	SuspicionLevel  RiskLevel `json:"suspicionLevel"`
	Description     string    `json:"description"`
	MemberWalletIDs []string  `json:"memberWalletIds,omitempty"`
}

// HasMembers reports whether the community carries an explicit member list.
func (c Community) HasMembers() bool {
	return len(c.MemberWalletIDs) > 0
}

// Contains reports whether id is an explicit member of the community.
func (c Community) Contains(id string) bool {
	for _, m := range c.MemberWalletIDs {
		if m == id {
			return true
		}
	}
	return false
}

// RedFlag is a textual finding attached to zero or more wallets.
type RedFlag struct {
	ID              string    `json:"id" validate:"required"`
	Severity        RiskLevel `json:"severity"`
	Title           string    `json:"title" validate:"required"`
	Description     string    `json:"description"`
	AffectedWallets []string  `json:"affectedWallets"`
}

// Affects reports whether the flag names the given wallet.
func (f RedFlag) Affects(id string) bool {
	for _, w := range f.AffectedWallets {
		if w == id {
			return true
		}
	}
	return false
}

// Metrics are the dataset-level risk signals.
type Metrics struct {
	GiniCoefficient            float64 `json:"giniCoefficient" validate:"gte=0,lte=1"`
	WashTradingScore           float64 `json:"washTradingScore" validate:"gte=0,lte=100"`
	MixerConnectionsCount      int     `json:"mixerConnectionsCount" validate:"gte=0"`
	SuspiciousClustersDetected int     `json:"suspiciousClustersDetected" validate:"gte=0"`
}

// Dataset is the aggregate root exchanged with the analysis backend.
type Dataset struct {
	Nodes                 []Node             `json:"nodes" validate:"dive"`
	Links                 []Link             `json:"links" validate:"dive"`
	RiskScore             float64            `json:"riskScore" validate:"gte=0,lte=100"`
	Metrics               Metrics            `json:"metrics"`
	TopInfluentialWallets []InfluencerMetric `json:"topInfluentialWallets" validate:"dive"`
	DetectedCommunities   []Community        `json:"detectedCommunities" validate:"dive"`
	RedFlags              []RedFlag          `json:"redFlags" validate:"dive"`
}

// Node returns the node with the given id.
func (d *Dataset) Node(id string) (Node, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// NodesByGroup returns the ids of every node in group g, in dataset order.
func (d *Dataset) NodesByGroup(g Group) []string {
	var ids []string
	for _, n := range d.Nodes {
		if n.Group == g {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// Clone returns a deep copy. Producers use it to derive a new dataset
// without touching one that has already been handed out.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	out := &Dataset{
		RiskScore: d.RiskScore,
		Metrics:   d.Metrics,
		Nodes:     make([]Node, len(d.Nodes)),
		Links:     append([]Link(nil), d.Links...),

		TopInfluentialWallets: append([]InfluencerMetric(nil), d.TopInfluentialWallets...),
		DetectedCommunities:   make([]Community, len(d.DetectedCommunities)),
		RedFlags:              make([]RedFlag, len(d.RedFlags)),
	}
	for i, n := range d.Nodes {
		if n.RiskScore != nil {
			s := *n.RiskScore
			n.RiskScore = &s
		}
		out.Nodes[i] = n
	}
	for i, c := range d.DetectedCommunities {
		c.MemberWalletIDs = append([]string(nil), c.MemberWalletIDs...)
		out.DetectedCommunities[i] = c
	}
	for i, f := range d.RedFlags {
		f.AffectedWallets = append([]string(nil), f.AffectedWallets...)
		out.RedFlags[i] = f
	}
	return out
}

// Score is a helper for building optional node risk scores.
func Score(v float64) *float64 {
	return &v
}
