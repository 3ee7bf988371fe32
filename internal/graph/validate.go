package graph

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the shared struct-tag validator; it is safe for concurrent use.
var validate *validator.Validate

// fieldDomain is the declared numeric domain of a JSON field.
type fieldDomain struct {
	min, max  float64
	exclusive bool
}

// fieldDomains mirrors the numeric struct tags so range failures can be
// reported with both bounds, keyed by JSON field name.
var fieldDomains = map[string]fieldDomain{
	"value":                      {0, math.Inf(1), false},
	"transactions":               {0, math.Inf(1), false},
	"riskScore":                  {0, 100, false},
	"count":                      {0, math.Inf(1), true},
	"pageRankScore":              {0, 1, false},
	"holdings":                   {0, math.Inf(1), false},
	"walletCount":                {0, math.Inf(1), true},
	"giniCoefficient":            {0, 1, false},
	"washTradingScore":           {0, 100, false},
	"mixerConnectionsCount":      {0, math.Inf(1), false},
	"suspiciousClustersDetected": {0, math.Inf(1), false},
}

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validate checks the structural invariants of a dataset: numeric domains,
// enum membership, unique node ids and referential integrity of links and
// community members. It returns nil or a *SchemaError listing every problem.
func Validate(d *Dataset) error {
	if d == nil {
		return &SchemaError{Problems: []error{errors.New("dataset is nil")}}
	}

	var problems []error
	if err := validate.Struct(d); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return &SchemaError{Problems: []error{err}}
		}
		for _, fe := range fieldErrs {
			problems = append(problems, translate(fe))
		}
	}

	ids := make(map[string]struct{}, len(d.Nodes))
	for i, n := range d.Nodes {
		if !n.Group.Valid() {
			problems = append(problems, fmt.Errorf("nodes[%d].group: invalid value %d", i, int(n.Group)))
		}
		if _, dup := ids[n.ID]; dup {
			problems = append(problems, fmt.Errorf("nodes[%d].id: duplicate id %q", i, n.ID))
		}
		ids[n.ID] = struct{}{}
	}

	for i, l := range d.Links {
		if !l.Type.Valid() {
			problems = append(problems, fmt.Errorf("links[%d].type: invalid value %d", i, int(l.Type)))
		}
		if _, ok := ids[l.Source]; !ok {
			problems = append(problems, fmt.Errorf("links[%d].source: unknown node %q", i, l.Source))
		}
		if _, ok := ids[l.Target]; !ok {
			problems = append(problems, fmt.Errorf("links[%d].target: unknown node %q", i, l.Target))
		}
	}

	for i, w := range d.TopInfluentialWallets {
		if !w.RiskLevel.Valid() {
			problems = append(problems, fmt.Errorf("topInfluentialWallets[%d].riskLevel: invalid value %d", i, int(w.RiskLevel)))
		}
	}

	for i, c := range d.DetectedCommunities {
		if !c.SuspicionLevel.Valid() || c.SuspicionLevel == RiskLow {
			problems = append(problems, fmt.Errorf("detectedCommunities[%d].suspicionLevel: %s not in {critical, high, medium}", i, c.SuspicionLevel))
		}
		if len(c.MemberWalletIDs) > c.WalletCount {
			problems = append(problems, fmt.Errorf("detectedCommunities[%d].memberWalletIds: %d members exceed walletCount %d", i, len(c.MemberWalletIDs), c.WalletCount))
		}
		for _, m := range c.MemberWalletIDs {
			if _, ok := ids[m]; !ok {
				problems = append(problems, fmt.Errorf("detectedCommunities[%d].memberWalletIds: unknown node %q", i, m))
			}
		}
	}

	for i, f := range d.RedFlags {
		if !f.Severity.Valid() {
			problems = append(problems, fmt.Errorf("redFlags[%d].severity: invalid value %d", i, int(f.Severity)))
		}
	}

	if len(problems) > 0 {
		return &SchemaError{Problems: problems}
	}
	return nil
}

// IsValid is the predicate form of Validate.
func IsValid(d *Dataset) bool {
	return Validate(d) == nil
}

func translate(fe validator.FieldError) error {
	field := strings.TrimPrefix(fe.Namespace(), "Dataset.")
	switch fe.Tag() {
	case "gte", "lte", "gt", "lt":
		v, ok := toFloat(fe.Value())
		if !ok {
			break
		}
		if dom, known := fieldDomains[fe.Field()]; known {
			return &RangeViolation{Field: field, Value: v, Min: dom.min, Max: dom.max, Exclusive: dom.exclusive}
		}
		return &RangeViolation{Field: field, Value: v, Min: math.Inf(-1), Max: math.Inf(1)}
	case "required":
		return fmt.Errorf("%s: required", field)
	}
	return fmt.Errorf("%s: failed %q check", field, fe.Tag())
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case *float64:
		if x == nil {
			return 0, false
		}
		return *x, true
	case int:
		return float64(x), true
	}
	return 0, false
}
