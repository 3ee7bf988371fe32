package risk

// ---------------------------------------------------------------------------
// Threshold table: every risk cut-off used by summary cards, detail panels,
// graph encodings and exports. Nothing else compares against literals.
// ---------------------------------------------------------------------------

const (
	// Node and dataset score bands (0-100, inclusive lower bound).
	MediumScoreFloor = 30.0
	HighScoreFloor   = 60.0

	// Emphasis triggers: a metric strictly above its trigger is emphasised.
	GiniEmphasis              = 0.85
	WashTradingEmphasis       = 70.0
	MixerConnectionsEmphasis  = 0
	SuspiciousClusterEmphasis = 0

	// MinRingSize is the smallest strongly connected component treated as a
	// trading ring. Two-wallet back-and-forth trades are ordinary.
	MinRingSize = 3
)

// probabilityFloors are the inclusive lower bounds of buckets 1..4 of the
// dumping-probability scale; bucket 0 is everything below the first floor.
var probabilityFloors = [...]float64{0.2, 0.4, 0.6, 0.8}

