package synth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/y0f/apiprobe/internal/contract"
)

// Numbers without a declared range are drawn from [defaultMin, defaultMin+defaultSpan].
const (
	defaultMin  = 1
	defaultSpan = 999
)

var errCycle = errors.New("required recursive cycle")

var words = []string{
	"alpha", "bravo", "charlie", "delta", "echo", "foxtrot",
	"golf", "hotel", "india", "juliet", "kilo", "lima",
}

// patternCandidates are tried in order when a string schema declares a pattern.
var patternCandidates = []string{
	"abc", "ABC", "Abc123", "abc123", "123", "0", "a", "A",
	"a-b", "a_b", "test@example.com", "2024-01-01", "https://example.com",
}

// baseTime anchors generated dates so output never depends on the clock.
var baseTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// generator is a pure value source. Two generators built from the same key
// produce the same sequence of values.
type generator struct {
	key string
	seq int
	rng *rand.Rand
}

func newGenerator(opID, param string, cat Category) *generator {
	key := opID + "\x00" + param + "\x00" + string(cat)
	h := fnv.New64a()
	h.Write([]byte(key))
	seed := h.Sum64()
	return &generator{key: key, rng: rand.New(rand.NewPCG(seed, seed>>1|1))}
}

func (g *generator) value(s *contract.Schema) (any, error) {
	return g.generate(s, nil)
}

func (g *generator) generate(s *contract.Schema, stack []*contract.Schema) (any, error) {
	if s.HasExample {
		return s.Example, nil
	}
	switch s.Kind {
	case contract.KindEnum:
		if len(s.Enum) == 0 {
			return nil, errors.New("enum declares no values")
		}
		return s.Enum[g.rng.IntN(len(s.Enum))], nil
	case contract.KindObject:
		return g.object(s, stack)
	case contract.KindArray:
		return g.array(s, stack)
	case contract.KindUnion:
		var firstErr error
		for _, v := range s.Variants {
			out, err := g.generate(v, stack)
			if err == nil {
				return out, nil
			}
			if firstErr == nil {
				firstErr = err
			}
		}
		return nil, firstErr
	}
	return g.primitive(s)
}

func onStack(stack []*contract.Schema, s *contract.Schema) bool {
	for _, seen := range stack {
		if seen == s {
			return true
		}
	}
	return false
}

func (g *generator) object(s *contract.Schema, stack []*contract.Schema) (any, error) {
	if onStack(stack, s) {
		return nil, errCycle
	}
	stack = append(stack, s)

	if len(s.Properties) == 0 {
		if s.AdditionalForbidden {
			return nil, errors.New("object declares no properties and forbids additional ones")
		}
		out := map[string]any{}
		if s.AdditionalProperties != nil {
			v, err := g.generate(s.AdditionalProperties, stack)
			if err != nil {
				return nil, err
			}
			out["key1"] = v
		}
		return out, nil
	}

	out := make(map[string]any, len(s.Properties))
	for _, name := range s.PropertyNames() {
		prop := s.Properties[name]
		required := s.IsRequired(name)
		if !required && onStack(stack, prop) {
			continue
		}
		v, err := g.generate(prop, stack)
		if err != nil {
			if !required {
				continue
			}
			return nil, fmt.Errorf("property %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func (g *generator) array(s *contract.Schema, stack []*contract.Schema) (any, error) {
	lo, hi, err := itemBounds(s)
	if err != nil {
		return nil, err
	}
	n := 1
	if n < lo {
		n = lo
	}
	if hi >= 0 && n > hi {
		n = hi
	}
	items, err := g.items(s, n, stack)
	if err != nil {
		if lo == 0 {
			return []any{}, nil
		}
		return nil, err
	}
	return items, nil
}

func (g *generator) items(s *contract.Schema, n int, stack []*contract.Schema) ([]any, error) {
	out := make([]any, 0, n)
	for i := 0; i < n; i++ {
		v, err := g.generate(s.Items, stack)
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// itemBounds returns min and max item counts; hi is -1 when unbounded.
func itemBounds(s *contract.Schema) (lo, hi int, err error) {
	hi = -1
	if s.MinItems != nil {
		lo = *s.MinItems
	}
	if s.MaxItems != nil {
		hi = *s.MaxItems
		if hi < lo {
			return 0, 0, fmt.Errorf("contradictory bounds: minItems %d > maxItems %d", lo, hi)
		}
	}
	return lo, hi, nil
}

func (g *generator) primitive(s *contract.Schema) (any, error) {
	switch s.Type {
	case contract.TypeString:
		return g.str(s)
	case contract.TypeInteger:
		return g.integer(s)
	case contract.TypeNumber:
		return g.number(s)
	case contract.TypeBoolean:
		return g.rng.IntN(2) == 0, nil
	case contract.TypeNull:
		return nil, nil
	}
	return g.word(), nil
}

func (g *generator) word() string {
	return words[g.rng.IntN(len(words))] + "-" + strconv.Itoa(g.rng.IntN(1000))
}

func lengthBounds(s *contract.Schema) (lo, hi int, err error) {
	hi = -1
	if s.MinLength != nil {
		lo = *s.MinLength
	}
	if s.MaxLength != nil {
		hi = *s.MaxLength
		if hi < lo {
			return 0, 0, fmt.Errorf("contradictory bounds: minLength %d > maxLength %d", lo, hi)
		}
	}
	return lo, hi, nil
}

func (g *generator) str(s *contract.Schema) (string, error) {
	lo, hi, err := lengthBounds(s)
	if err != nil {
		return "", err
	}
	v := g.formatted(s.Format)
	if s.Pattern != "" {
		if m := matching(s.Pattern, v); m != "" {
			v = m
		}
	}
	return fitLength(v, lo, hi), nil
}

func (g *generator) formatted(format string) string {
	g.seq++
	switch format {
	case "uuid":
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(g.key+"\x00"+strconv.Itoa(g.seq))).String()
	case "date":
		return baseTime.AddDate(0, 0, g.rng.IntN(365)).Format(time.DateOnly)
	case "date-time":
		return baseTime.Add(time.Duration(g.rng.IntN(365*24*3600)) * time.Second).Format(time.RFC3339)
	case "time":
		return baseTime.Add(time.Duration(g.rng.IntN(24*3600)) * time.Second).Format(time.TimeOnly)
	case "email":
		return words[g.rng.IntN(len(words))] + strconv.Itoa(g.rng.IntN(100)) + "@example.com"
	case "uri", "url":
		return "https://example.com/" + words[g.rng.IntN(len(words))]
	case "hostname":
		return words[g.rng.IntN(len(words))] + ".example.com"
	case "ipv4":
		return fmt.Sprintf("10.%d.%d.%d", g.rng.IntN(256), g.rng.IntN(256), 1+g.rng.IntN(254))
	case "ipv6":
		return fmt.Sprintf("2001:db8::%x", 1+g.rng.IntN(0xfffe))
	case "byte":
		return base64.StdEncoding.EncodeToString([]byte(g.word()))
	}
	return g.word()
}

// matching returns the first candidate accepted by pattern, or "".
func matching(pattern, preferred string) string {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return ""
	}
	if re.MatchString(preferred) {
		return preferred
	}
	for _, c := range patternCandidates {
		if re.MatchString(c) {
			return c
		}
	}
	return ""
}

func fitLength(v string, lo, hi int) string {
	for len(v) < lo {
		v += "x"
	}
	if hi >= 0 && len(v) > hi {
		v = v[:hi]
	}
	return v
}

// ofLength builds a deterministic string of exactly n bytes.
func (g *generator) ofLength(n int) string {
	if n <= 0 {
		return ""
	}
	var b strings.Builder
	for b.Len() < n {
		b.WriteString(words[g.rng.IntN(len(words))])
	}
	return b.String()[:n]
}

// intBounds returns the inclusive integer range a schema admits. Bounds
// outside int64 saturate at its limits.
func intBounds(s *contract.Schema) (lo, hi int64, err error) {
	hasLo, hasHi := s.Minimum != nil, s.Maximum != nil
	if hasLo {
		lo = minEdgeInt(s)
	}
	if hasHi {
		hi = maxEdgeInt(s)
	}
	switch {
	case !hasLo && !hasHi:
		lo, hi = defaultMin, defaultMin+defaultSpan
	case !hasLo:
		lo = defaultMin
		if hi < defaultMin {
			lo = subSat(hi, defaultSpan)
		}
	case !hasHi:
		hi = addSat(lo, defaultSpan)
	}
	if lo > hi {
		return 0, 0, fmt.Errorf("contradictory bounds: no integer in [%d, %d]", lo, hi)
	}
	return lo, hi, nil
}

func minEdgeInt(s *contract.Schema) int64 {
	edge := math.Ceil(*s.Minimum)
	if s.ExclusiveMinimum && edge == *s.Minimum {
		edge++
	}
	return clampInt(edge)
}

func maxEdgeInt(s *contract.Schema) int64 {
	edge := math.Floor(*s.Maximum)
	if s.ExclusiveMaximum && edge == *s.Maximum {
		edge--
	}
	return clampInt(edge)
}

// clampInt converts an integral float to int64, saturating at the limits.
// float64(math.MaxInt64) rounds up to 2^63, which is already out of range.
func clampInt(f float64) int64 {
	switch {
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

func addSat(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

func subSat(a, b int64) int64 {
	if b > 0 && a < math.MinInt64+b {
		return math.MinInt64
	}
	return a - b
}

// integer draws from the default range when the bounds contain it, and
// otherwise from at most defaultSpan+1 values starting at lo.
func (g *generator) integer(s *contract.Schema) (int64, error) {
	lo, hi, err := intBounds(s)
	if err != nil {
		return 0, err
	}
	from, span := lo, uint64(hi)-uint64(lo)
	if lo <= defaultMin && hi >= defaultMin+defaultSpan {
		from, span = defaultMin, defaultSpan
	}
	if span > defaultSpan {
		span = defaultSpan
	}
	v := from + g.rng.Int64N(int64(span)+1)
	if s.MultipleOf == nil || *s.MultipleOf < 1 || *s.MultipleOf != math.Trunc(*s.MultipleOf) {
		return v, nil
	}
	if *s.MultipleOf >= math.MaxInt64 {
		if lo <= 0 && hi >= 0 {
			return 0, nil
		}
		return 0, fmt.Errorf("no multiple of %g in [%d, %d]", *s.MultipleOf, lo, hi)
	}
	m := int64(*s.MultipleOf)
	if q := ceilDiv(v, m); q <= math.MaxInt64/m && q >= math.MinInt64/m {
		if up := q * m; up <= hi {
			return up, nil
		}
	}
	down := floorDiv(hi, m) * m
	if floorDiv(hi, m) >= math.MinInt64/m && down >= lo {
		return down, nil
	}
	return 0, fmt.Errorf("no multiple of %d in [%d, %d]", m, lo, hi)
}

func ceilDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a > 0) == (b > 0) {
		q++
	}
	return q
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func minEdgeFloat(s *contract.Schema) float64 {
	if s.ExclusiveMinimum {
		return math.Nextafter(*s.Minimum, math.Inf(1))
	}
	return *s.Minimum
}

func maxEdgeFloat(s *contract.Schema) float64 {
	if s.ExclusiveMaximum {
		return math.Nextafter(*s.Maximum, math.Inf(-1))
	}
	return *s.Maximum
}

func (g *generator) number(s *contract.Schema) (float64, error) {
	hasLo, hasHi := s.Minimum != nil, s.Maximum != nil
	lo, hi := float64(defaultMin), float64(defaultMin+defaultSpan)
	if hasLo {
		lo = minEdgeFloat(s)
		if !hasHi {
			hi = lo + defaultSpan
		}
	}
	if hasHi {
		hi = maxEdgeFloat(s)
		if !hasLo && hi < defaultMin {
			lo = hi - defaultSpan
		}
	}
	if lo > hi {
		return 0, fmt.Errorf("contradictory bounds: no number in [%g, %g]", lo, hi)
	}

	// Interpolated so that hi-lo cannot overflow to +Inf.
	r := g.rng.Float64()
	v := lo*(1-r) + hi*r
	if rounded := math.Round(v*100) / 100; rounded >= lo && rounded <= hi {
		v = rounded
	}
	if s.MultipleOf != nil && *s.MultipleOf > 0 {
		m := *s.MultipleOf
		v = math.Ceil(v/m) * m
		if v > hi {
			v = math.Floor(hi/m) * m
		}
		if v < lo {
			return 0, fmt.Errorf("no multiple of %g in [%g, %g]", m, lo, hi)
		}
	}
	return v, nil
}
