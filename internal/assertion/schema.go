package assertion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/y0f/apiprobe/internal/contract"
	"github.com/y0f/apiprobe/internal/run"
)

// CheckBody validates a raw response body against schema and returns the
// mismatches sorted by path. A non-JSON content type is only checked for
// string schemas.
func CheckBody(schema *contract.Schema, contentType string, body []byte) []run.Mismatch {
	if contentType != "" && !isJSON(contentType) {
		if schema.Kind == contract.KindPrimitive && (schema.Type == contract.TypeString || schema.Type == contract.TypeAny) {
			return Check(schema, string(body))
		}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return []run.Mismatch{{Path: "$", Expected: schema.Describe(), Actual: "empty body"}}
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return []run.Mismatch{{Path: "$", Expected: schema.Describe(), Actual: "invalid JSON: " + err.Error()}}
	}
	return Check(schema, v)
}

// Check validates an already decoded value. Numbers may be json.Number or
// float64.
func Check(schema *contract.Schema, v any) []run.Mismatch {
	var c checker
	c.check(schema, v, "$")
	sort.Slice(c.diff, func(i, j int) bool {
		if c.diff[i].Path != c.diff[j].Path {
			return c.diff[i].Path < c.diff[j].Path
		}
		return c.diff[i].Expected < c.diff[j].Expected
	})
	return c.diff
}

func isJSON(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "json")
}

type checker struct {
	diff []run.Mismatch
}

func (c *checker) mismatch(path, expected, actual string) {
	c.diff = append(c.diff, run.Mismatch{Path: path, Expected: expected, Actual: actual})
}

func (c *checker) check(s *contract.Schema, v any, path string) {
	if v == nil {
		if !s.Nullable && s.Type != contract.TypeNull && !(s.Kind == contract.KindPrimitive && s.Type == contract.TypeAny) {
			c.mismatch(path, s.Describe(), "null")
		}
		return
	}

	switch s.Kind {
	case contract.KindObject:
		c.object(s, v, path)
	case contract.KindArray:
		c.array(s, v, path)
	case contract.KindEnum:
		c.enum(s, v, path)
	case contract.KindUnion:
		c.union(s, v, path)
	default:
		c.primitive(s, v, path)
	}
}

func (c *checker) object(s *contract.Schema, v any, path string) {
	m, ok := v.(map[string]any)
	if !ok {
		c.mismatch(path, "object", typeOf(v))
		return
	}
	for _, name := range s.Required {
		if _, ok := m[name]; !ok {
			c.mismatch(join(path, name), "required property", "missing")
		}
	}
	for name, val := range m {
		if prop, ok := s.Properties[name]; ok {
			c.check(prop, val, join(path, name))
			continue
		}
		switch {
		case s.AdditionalForbidden:
			c.mismatch(join(path, name), "no additional properties", "unexpected property")
		case s.AdditionalProperties != nil:
			c.check(s.AdditionalProperties, val, join(path, name))
		}
	}
}

func (c *checker) array(s *contract.Schema, v any, path string) {
	items, ok := v.([]any)
	if !ok {
		c.mismatch(path, s.Describe(), typeOf(v))
		return
	}
	if s.MinItems != nil && len(items) < *s.MinItems {
		c.mismatch(path, fmt.Sprintf("at least %d items", *s.MinItems), fmt.Sprintf("%d items", len(items)))
	}
	if s.MaxItems != nil && len(items) > *s.MaxItems {
		c.mismatch(path, fmt.Sprintf("at most %d items", *s.MaxItems), fmt.Sprintf("%d items", len(items)))
	}
	for i, item := range items {
		c.check(s.Items, item, path+"["+strconv.Itoa(i)+"]")
	}
}

func (c *checker) enum(s *contract.Schema, v any, path string) {
	for _, allowed := range s.Enum {
		if equalValue(allowed, v) {
			return
		}
	}
	c.mismatch(path, "one of "+render(s.Enum), render(v))
}

func (c *checker) union(s *contract.Schema, v any, path string) {
	matched := 0
	for _, variant := range s.Variants {
		var sub checker
		sub.check(variant, v, path)
		if len(sub.diff) == 0 {
			matched++
		}
	}
	switch {
	case s.Mode == contract.UnionOneOf && matched != 1:
		c.mismatch(path, fmt.Sprintf("exactly one of %d variants", len(s.Variants)), fmt.Sprintf("matched %d", matched))
	case s.Mode == contract.UnionAnyOf && matched == 0:
		c.mismatch(path, fmt.Sprintf("any of %d variants", len(s.Variants)), "matched none")
	}
}

func (c *checker) primitive(s *contract.Schema, v any, path string) {
	actual := typeOf(v)
	switch s.Type {
	case contract.TypeAny:
		return
	case contract.TypeNumber:
		if actual != "integer" && actual != "number" {
			c.mismatch(path, "number", actual)
			return
		}
		c.bounds(s, v, path)
	case contract.TypeInteger:
		if actual != "integer" {
			c.mismatch(path, "integer", actual)
			return
		}
		c.bounds(s, v, path)
	case contract.TypeString:
		if actual != "string" {
			c.mismatch(path, "string", actual)
			return
		}
		n := utf8.RuneCountInString(v.(string))
		if s.MinLength != nil && n < *s.MinLength {
			c.mismatch(path, fmt.Sprintf("length >= %d", *s.MinLength), fmt.Sprintf("length %d", n))
		}
		if s.MaxLength != nil && n > *s.MaxLength {
			c.mismatch(path, fmt.Sprintf("length <= %d", *s.MaxLength), fmt.Sprintf("length %d", n))
		}
	default:
		if actual != string(s.Type) {
			c.mismatch(path, string(s.Type), actual)
		}
	}
}

func (c *checker) bounds(s *contract.Schema, v any, path string) {
	f, ok := toFloat(v)
	if !ok {
		return
	}
	if s.Minimum != nil {
		if f < *s.Minimum || (s.ExclusiveMinimum && f == *s.Minimum) {
			op := ">="
			if s.ExclusiveMinimum {
				op = ">"
			}
			c.mismatch(path, fmt.Sprintf("%s %g", op, *s.Minimum), render(v))
		}
	}
	if s.Maximum != nil {
		if f > *s.Maximum || (s.ExclusiveMaximum && f == *s.Maximum) {
			op := "<="
			if s.ExclusiveMaximum {
				op = "<"
			}
			c.mismatch(path, fmt.Sprintf("%s %g", op, *s.Maximum), render(v))
		}
	}
}

// typeOf names the JSON type of a decoded value; integral numbers are
// reported as "integer".
func typeOf(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case json.Number, float64, int, int64:
		f, _ := toFloat(t)
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			return "integer"
		}
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

// equalValue compares decoded JSON values; numbers compare by value.
func equalValue(a, b any) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if okA || okB {
		return okA && okB && fa == fb
	}
	switch a.(type) {
	case map[string]any, []any:
		ja, errA := json.Marshal(a)
		jb, errB := json.Marshal(b)
		return errA == nil && errB == nil && bytes.Equal(ja, jb)
	}
	switch b.(type) {
	case map[string]any, []any:
		return false
	}
	return a == b
}

func render(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	s := string(data)
	if len(s) > 80 {
		s = s[:77] + "..."
	}
	return s
}

func join(path, name string) string {
	return path + "." + name
}
