package synth

import (
	"fmt"
	"math"

	"github.com/y0f/apiprobe/internal/contract"
)

type probe struct {
	label  string
	value  any
	reject bool
}

// boundaryProbes returns the edge values of a constrained schema. Enum
// constraints take precedence over any range the schema also declares.
func boundaryProbes(s *contract.Schema, g *generator) ([]probe, error) {
	switch {
	case s.Kind == contract.KindEnum:
		return enumProbes(s), nil
	case s.Kind == contract.KindArray:
		return arrayProbes(s, g)
	case s.Type == contract.TypeString:
		return lengthProbes(s, g)
	case s.Type == contract.TypeInteger:
		return intProbes(s)
	case s.Type == contract.TypeNumber:
		return numberProbes(s)
	}
	return nil, nil
}

func enumProbes(s *contract.Schema) []probe {
	out := []probe{{label: "first", value: s.Enum[0]}}
	if len(s.Enum) > 1 {
		out = append(out, probe{label: "last", value: s.Enum[len(s.Enum)-1]})
	}
	if v, ok := outsideEnum(s); ok {
		out = append(out, probe{label: "outside", value: v, reject: true})
	}
	return out
}

// outsideEnum finds a value of the enum's type that is not a member.
func outsideEnum(s *contract.Schema) (any, bool) {
	switch s.Type {
	case contract.TypeInteger, contract.TypeNumber:
		top := math.Inf(-1)
		for _, v := range s.Enum {
			if f, ok := v.(float64); ok && f > top {
				top = f
			}
		}
		if math.IsInf(top, -1) {
			return float64(0), true
		}
		return math.Floor(top) + 1, true
	case contract.TypeBoolean:
		seen := map[bool]bool{}
		for _, v := range s.Enum {
			if b, ok := v.(bool); ok {
				seen[b] = true
			}
		}
		switch {
		case !seen[true]:
			return true, true
		case !seen[false]:
			return false, true
		}
		return nil, false
	}
	candidate := "not-a-member"
	for member(s.Enum, candidate) {
		candidate += "-x"
	}
	return candidate, true
}

func member(values []any, v any) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func lengthProbes(s *contract.Schema, g *generator) ([]probe, error) {
	lo, hi, err := lengthBounds(s)
	if err != nil {
		return nil, err
	}
	var out []probe
	if s.MinLength != nil {
		out = append(out, probe{label: "min", value: g.ofLength(lo)})
		if lo > 0 {
			out = append(out, probe{label: "min-1", value: g.ofLength(lo - 1), reject: true})
		}
	}
	if s.MaxLength != nil {
		out = append(out,
			probe{label: "max", value: g.ofLength(hi)},
			probe{label: "max+1", value: g.ofLength(hi + 1), reject: true},
		)
	}
	return out, nil
}

func intProbes(s *contract.Schema) ([]probe, error) {
	if _, _, err := intBounds(s); err != nil {
		return nil, err
	}
	var out []probe
	if s.Minimum != nil {
		edge := minEdgeInt(s)
		out = append(out, probe{label: "min", value: edge})
		if edge > math.MinInt64 {
			out = append(out, probe{label: "min-1", value: edge - 1, reject: true})
		}
	}
	if s.Maximum != nil {
		edge := maxEdgeInt(s)
		out = append(out, probe{label: "max", value: edge})
		if edge < math.MaxInt64 {
			out = append(out, probe{label: "max+1", value: edge + 1, reject: true})
		}
	}
	return out, nil
}

// numberProbes steps past each edge by the nearest representable float64.
func numberProbes(s *contract.Schema) ([]probe, error) {
	var out []probe
	if s.Minimum != nil {
		edge := minEdgeFloat(s)
		out = append(out,
			probe{label: "min", value: edge},
			probe{label: "min-1", value: math.Nextafter(edge, math.Inf(-1)), reject: true},
		)
	}
	if s.Maximum != nil {
		edge := maxEdgeFloat(s)
		if s.Minimum != nil && edge < minEdgeFloat(s) {
			return nil, fmt.Errorf("contradictory bounds: no number in [%g, %g]", minEdgeFloat(s), edge)
		}
		out = append(out,
			probe{label: "max", value: edge},
			probe{label: "max+1", value: math.Nextafter(edge, math.Inf(1)), reject: true},
		)
	}
	return out, nil
}

func arrayProbes(s *contract.Schema, g *generator) ([]probe, error) {
	lo, hi, err := itemBounds(s)
	if err != nil {
		return nil, err
	}
	var out []probe
	add := func(label string, n int, reject bool) error {
		items, err := g.items(s, n, nil)
		if err != nil {
			return err
		}
		out = append(out, probe{label: label, value: items, reject: reject})
		return nil
	}
	if s.MinItems != nil {
		if err := add("min", lo, false); err != nil {
			return nil, err
		}
		if lo > 0 {
			if err := add("min-1", lo-1, true); err != nil {
				return nil, err
			}
		}
	}
	if s.MaxItems != nil {
		if err := add("max", hi, false); err != nil {
			return nil, err
		}
		if err := add("max+1", hi+1, true); err != nil {
			return nil, err
		}
	}
	return out, nil
}
