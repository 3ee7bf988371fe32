// Package export renders an analysis as a CSV report or indented JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/blockstat/forensics/internal/graph"
)

// Format is an export file format.
type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
)

// ErrUnknownFormat is returned for a format other than csv or json.
var ErrUnknownFormat = errors.New("export: unknown format")

// flagWalletSample is how many affected wallets a red-flag row lists.
const flagWalletSample = 3

// ParseFormat parses a case-insensitive format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case CSV, JSON:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType is the HTTP content type of the format.
func (f Format) ContentType() string {
	if f == CSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// Filename is the download name for an analysis of token.
func (f Format) Filename(token string) string {
	return fmt.Sprintf("forensics_%s.%s", token, f)
}

// Write renders d in format f.
func Write(w io.Writer, d *graph.Dataset, f Format) error {
	switch f {
	case CSV:
		return WriteCSV(w, d)
	case JSON:
		return WriteJSON(w, d)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
}

// WriteJSON writes d as indented JSON.
func WriteJSON(w io.Writer, d *graph.Dataset) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("export: json: %w", err)
	}
	return nil
}

// fixed formats v with places decimals, rounding half away from zero.
func fixed(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}

// WriteCSV writes the sectioned report: summary, metrics, influencers,
// communities, red flags and wallets, each section followed by a blank row.
func WriteCSV(w io.Writer, d *graph.Dataset) error {
	cw := csv.NewWriter(w)
	rows := [][]string{
		{"Blockchain Forensics Analysis Report"},
		{},
		{"Summary"},
		{"Overall Risk Score", fixed(d.RiskScore, 1)},
		{"Wallets Analyzed", strconv.Itoa(len(d.Nodes))},
		{"Transactions", strconv.Itoa(len(d.Links))},
		{},
		{"Risk Metrics"},
		{"Metric", "Value"},
		{"Gini Coefficient", fixed(d.Metrics.GiniCoefficient, 3)},
		{"Wash Trading Score", fixed(d.Metrics.WashTradingScore, 1) + "%"},
		{"Mixer Connections", strconv.Itoa(d.Metrics.MixerConnectionsCount)},
		{"Suspicious Clusters", strconv.Itoa(d.Metrics.SuspiciousClustersDetected)},
		{},
		{"Top Influential Wallets"},
		{"Address", "PageRank Score", "Holdings", "Risk Level"},
	}
	for _, m := range d.TopInfluentialWallets {
		rows = append(rows, []string{m.Address, fixed(m.PageRankScore, 6), fixed(m.Holdings, 2), m.RiskLevel.String()})
	}

	rows = append(rows, []string{},
		[]string{"Detected Communities"},
		[]string{"Community", "Wallets", "Suspicion Level", "Description"})
	for _, c := range d.DetectedCommunities {
		rows = append(rows, []string{c.Name, strconv.Itoa(c.WalletCount), c.SuspicionLevel.String(), c.Description})
	}

	rows = append(rows, []string{},
		[]string{"Red Flags / Alerts"},
		[]string{"ID", "Severity", "Title", "Description", "Affected Wallets"})
	for _, f := range d.RedFlags {
		wallets := f.AffectedWallets[:min(flagWalletSample, len(f.AffectedWallets))]
		rows = append(rows, []string{f.ID, f.Severity.String(), f.Title, f.Description, strings.Join(wallets, "; ")})
	}

	rows = append(rows, []string{},
		[]string{"Analyzed Wallets"},
		[]string{"Address", "Label", "Type", "Holdings", "Transactions", "Risk Score"})
	for _, n := range d.Nodes {
		score := "N/A"
		if s, ok := n.Score(); ok {
			score = fixed(s, 1)
		}
		rows = append(rows, []string{n.ID, n.Label, n.Group.String(), fixed(n.Value, 2), strconv.Itoa(n.Transactions), score})
	}

	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("export: csv: %w", err)
	}
	return nil
}
