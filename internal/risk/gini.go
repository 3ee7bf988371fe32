package risk

import (
	"fmt"
	"sort"
)

// GiniCap is the highest concentration we report. Small or synthetic
// holder samples easily approach 1.0, which reads as "one wallet owns
// everything"; capping at 0.95 is a reporting policy, not a numerical limit.
const GiniCap = 0.95

// DegenerateInputWarning marks a metric computed on input too small or too
// empty to be meaningful. The accompanying value is a defined fallback and
// should be displayed as "insufficient data", not as a real zero.
type DegenerateInputWarning struct {
	Metric string
	Reason string
}

func (w *DegenerateInputWarning) Error() string {
	return fmt.Sprintf("risk: %s: degenerate input: %s", w.Metric, w.Reason)
}

// Gini returns the Gini coefficient of holdings, clamped to [0, GiniCap].
//
//	G = 2·Σ i·v_i / (n·Σv) − (n+1)/n   with v sorted ascending, i from 1
//
// An empty sample or zero total returns 0 with a *DegenerateInputWarning.
func Gini(values []float64) (float64, error) {
	n := len(values)
	if n == 0 {
		return 0, &DegenerateInputWarning{Metric: MetricGini.Field(), Reason: "no holdings"}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var total, weighted float64
	for i, v := range sorted {
		total += v
		weighted += float64(i+1) * v
	}
	if total == 0 {
		return 0, &DegenerateInputWarning{Metric: MetricGini.Field(), Reason: "total holdings are zero"}
	}

	nf := float64(n)
	g := 2*weighted/(nf*total) - (nf+1)/nf
	return clamp(g, 0, GiniCap), nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
