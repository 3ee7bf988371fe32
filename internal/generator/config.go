package generator

import (
	"errors"
	"fmt"

	"github.com/blockstat/forensics/internal/risk"
)

// ErrInvalidConfig is returned for a generator configuration that cannot
// produce a valid dataset.
var ErrInvalidConfig = errors.New("generator: invalid config")

// Config shapes the synthetic dataset. The sample caps bound the otherwise
// quadratic growth of mixer->normal and normal<->normal edges so the graph
// stays renderable for large populations.
type Config struct {
	Population int `yaml:"population"` // total wallets, deployer included
	RingSize   int `yaml:"ring_size"`  // suspicious wallets in the wash ring
	MixerCount int `yaml:"mixer_count"`

	MixerSampleCap  int `yaml:"mixer_sample_cap"`  // mixers considered for fan-out
	NormalSampleCap int `yaml:"normal_sample_cap"` // normals considered for fan-out
	TradeSampleCap  int `yaml:"trade_sample_cap"`  // normal<->normal draws

	MixerFanoutProb float64 `yaml:"mixer_fanout_prob"` // per mixer x normal pair
	TradeProb       float64 `yaml:"trade_prob"`        // per trade draw
}

// DefaultConfig returns the reference scenario: 50 wallets, a ten-wallet
// ring and five mixers.
func DefaultConfig() Config {
	return Config{
		Population:      50,
		RingSize:        10,
		MixerCount:      5,
		MixerSampleCap:  20,
		NormalSampleCap: 500,
		TradeSampleCap:  5000,
		MixerFanoutProb: 0.3,
		TradeProb:       0.2,
	}
}

// Normals is the number of normal wallets the config yields.
func (c Config) Normals() int {
	return c.Population - 1 - c.RingSize - c.MixerCount
}

// Validate checks the configuration; every failure wraps ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case c.RingSize < risk.MinRingSize:
		return fmt.Errorf("%w: ring_size %d below minimum ring size %d", ErrInvalidConfig, c.RingSize, risk.MinRingSize)
	case c.MixerCount < 1:
		return fmt.Errorf("%w: mixer_count must be at least 1", ErrInvalidConfig)
	case c.Normals() < 0:
		return fmt.Errorf("%w: population %d cannot hold deployer, %d ring wallets and %d mixers",
			ErrInvalidConfig, c.Population, c.RingSize, c.MixerCount)
	case c.MixerSampleCap < 0 || c.NormalSampleCap < 0 || c.TradeSampleCap < 0:
		return fmt.Errorf("%w: sample caps must be non-negative", ErrInvalidConfig)
	case !(c.MixerFanoutProb >= 0 && c.MixerFanoutProb <= 1):
		return fmt.Errorf("%w: mixer_fanout_prob %v outside [0,1]", ErrInvalidConfig, c.MixerFanoutProb)
	case !(c.TradeProb >= 0 && c.TradeProb <= 1):
		return fmt.Errorf("%w: trade_prob %v outside [0,1]", ErrInvalidConfig, c.TradeProb)
	}
	return nil
}
