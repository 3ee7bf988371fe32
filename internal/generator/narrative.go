package generator

import (
	"fmt"

	"github.com/blockstat/forensics/internal/graph"
	"github.com/blockstat/forensics/internal/risk"
)

// NarrativeInput is everything the canned findings are parameterised by.
type NarrativeInput struct {
	Token           string
	Deployer        string
	Suspicious      []string // ring members
	Mixers          []string
	MixerRecipients []string // normal wallets funded by a mixer
	GiniCoefficient float64
}

// frequencySampleCap bounds the affected-wallet list of the
// transaction-frequency flag.
const frequencySampleCap = 20

// concentrationSampleCap bounds the ring members named next to the deployer
// in the concentration flag.
const concentrationSampleCap = 10

// Narratives builds the fixed community and red-flag records of a synthetic
// dataset from wallet ids and computed metrics only.
func Narratives(in NarrativeInput) ([]graph.Community, []graph.RedFlag) {
	ring := len(in.Suspicious)

	var communities []graph.Community
	if ring > 0 {
		communities = append(communities, graph.Community{
			ID:             "community_1",
			Name:           "Wash Trading Ring",
			WalletCount:    ring,
			SuspicionLevel: graph.RiskCritical,
			Description: fmt.Sprintf("Circular transaction pattern detected between %d wallets with high frequency "+
				"and similar volumes. Consistent with coordinated wash trading activity.", ring),
			MemberWalletIDs: append([]string(nil), in.Suspicious...),
		})
	}
	cluster := append(append([]string(nil), in.Mixers...), in.MixerRecipients...)
	if len(cluster) > 0 {
		communities = append(communities, graph.Community{
			ID:             "community_2",
			Name:           "Mixer-Connected Cluster",
			WalletCount:    len(cluster),
			SuspicionLevel: graph.RiskHigh,
			Description: "Group of wallets with connections to known privacy mixers. " +
				"Pattern suggests attempt to obscure transaction origins.",
			MemberWalletIDs: cluster,
		})
	}

	giniSeverity := graph.RiskHigh
	if in.GiniCoefficient > risk.GiniEmphasis {
		giniSeverity = graph.RiskCritical
	}
	concentrated := append([]string{in.Deployer}, in.Suspicious[:min(concentrationSampleCap, ring)]...)

	flags := []graph.RedFlag{
		{
			ID:       "flag_1",
			Severity: graph.RiskCritical,
			Title:    "Circular Transaction Pattern",
			Description: fmt.Sprintf("Detected circular transactions between %d wallets with high frequency. "+
				"This pattern is characteristic of wash trading where the same tokens are repeatedly traded "+
				"between coordinated accounts to artificially inflate trading volume.", ring),
			AffectedWallets: append([]string(nil), in.Suspicious...),
		},
		{
			ID:       "flag_2",
			Severity: giniSeverity,
			Title:    fmt.Sprintf("High Gini Coefficient (%.2f)", in.GiniCoefficient),
			Description: fmt.Sprintf("Wealth is heavily concentrated in a small number of wallets. The deployer "+
				"and suspicious wallets control a significant portion of the %s supply, indicating potential "+
				"for price manipulation.", tokenName(in.Token)),
			AffectedWallets: concentrated,
		},
		{
			ID:       "flag_3",
			Severity: graph.RiskHigh,
			Title:    "Mixer Connections Detected",
			Description: "Multiple wallets have direct connections to known privacy mixer services. " +
				"This behavior is often used to obscure the source of funds and hide illicit activity.",
			AffectedWallets: append([]string(nil), in.Mixers...),
		},
		{
			ID:       "flag_4",
			Severity: graph.RiskHigh,
			Title:    "Rapid Token Distribution",
			Description: fmt.Sprintf("Large quantities of tokens distributed to %d wallets within a short "+
				"timeframe, followed by coordinated trading activity. Pattern suggests orchestrated market "+
				"manipulation.", ring),
			AffectedWallets: append([]string(nil), in.Suspicious...),
		},
		{
			ID:       "flag_5",
			Severity: graph.RiskMedium,
			Title:    "Unusual Transaction Frequency",
			Description: "Several wallets show abnormally high transaction frequency compared to normal user " +
				"behavior, suggesting automated or coordinated trading.",
			AffectedWallets: append([]string(nil), in.Suspicious[:min(frequencySampleCap, ring)]...),
		},
	}
	return communities, flags
}

func tokenName(token string) string {
	if token == "" {
		return "token"
	}
	return token
}
