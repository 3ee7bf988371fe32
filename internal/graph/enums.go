package graph

import "fmt"

// Group classifies a wallet. It is closed: the zero value is invalid and
// every table keyed by Group is sized by NumGroups.
type Group int

const (
	GroupNormal Group = iota + 1
	GroupSuspicious
	GroupDeployer
	GroupMixer
	groupEnd
)

// NumGroups is the number of valid Group values.
const NumGroups = int(groupEnd) - 1

var groupNames = [...]string{
	GroupNormal:     "normal",
	GroupSuspicious: "suspicious",
	GroupDeployer:   "deployer",
	GroupMixer:      "mixer",
}

// Groups lists every valid group in declaration order.
func Groups() []Group {
	return []Group{GroupNormal, GroupSuspicious, GroupDeployer, GroupMixer}
}

func (g Group) Valid() bool { return g > 0 && g < groupEnd }

func (g Group) String() string {
	if !g.Valid() {
		return fmt.Sprintf("Group(%d)", int(g))
	}
	return groupNames[g]
}

func (g Group) MarshalText() ([]byte, error) {
	if !g.Valid() {
		return nil, fmt.Errorf("graph: invalid group %d", int(g))
	}
	return []byte(groupNames[g]), nil
}

func (g *Group) UnmarshalText(b []byte) error {
	for i := GroupNormal; i < groupEnd; i++ {
		if groupNames[i] == string(b) {
			*g = i
			return nil
		}
	}
	return fmt.Errorf("graph: unknown group %q", string(b))
}

// LinkType is the kind of flow a Link aggregates.
type LinkType int

const (
	LinkTransfer LinkType = iota + 1
	LinkTrade
	LinkWash
	LinkMixer
	linkEnd
)

// NumLinkTypes is the number of valid LinkType values.
const NumLinkTypes = int(linkEnd) - 1

var linkNames = [...]string{
	LinkTransfer: "transfer",
	LinkTrade:    "trade",
	LinkWash:     "wash",
	LinkMixer:    "mixer",
}

// LinkTypes lists every valid link type in declaration order.
func LinkTypes() []LinkType {
	return []LinkType{LinkTransfer, LinkTrade, LinkWash, LinkMixer}
}

func (t LinkType) Valid() bool { return t > 0 && t < linkEnd }

func (t LinkType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("LinkType(%d)", int(t))
	}
	return linkNames[t]
}

func (t LinkType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("graph: invalid link type %d", int(t))
	}
	return []byte(linkNames[t]), nil
}

func (t *LinkType) UnmarshalText(b []byte) error {
	for i := LinkTransfer; i < linkEnd; i++ {
		if linkNames[i] == string(b) {
			*t = i
			return nil
		}
	}
	return fmt.Errorf("graph: unknown link type %q", string(b))
}

// RiskLevel is the severity scale shared by influencers, communities and
// red flags. Values are ordered: Low < Medium < High < Critical.
type RiskLevel int

const (
	RiskLow RiskLevel = iota + 1
	RiskMedium
	RiskHigh
	RiskCritical
	riskEnd
)

// NumRiskLevels is the number of valid RiskLevel values.
const NumRiskLevels = int(riskEnd) - 1

var riskNames = [...]string{
	RiskLow:      "low",
	RiskMedium:   "medium",
	RiskHigh:     "high",
	RiskCritical: "critical",
}

func (r RiskLevel) Valid() bool { return r > 0 && r < riskEnd }

func (r RiskLevel) String() string {
	if !r.Valid() {
		return fmt.Sprintf("RiskLevel(%d)", int(r))
	}
	return riskNames[r]
}

func (r RiskLevel) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("graph: invalid risk level %d", int(r))
	}
	return []byte(riskNames[r]), nil
}

func (r *RiskLevel) UnmarshalText(b []byte) error {
	for i := RiskLow; i < riskEnd; i++ {
		if riskNames[i] == string(b) {
			*r = i
			return nil
		}
	}
	return fmt.Errorf("graph: unknown risk level %q", string(b))
}
