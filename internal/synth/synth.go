// Package synth derives a deterministic test suite from a loaded contract.
//
// Every operation yields, in order, one happy-path case, boundary probes for
// each constrained input, required-violation cases and type-violation cases.
// Values are produced by a seeded generator keyed on the operation, the
// input and the category, so the same contract always gives the same suite.
package synth

import (
	"fmt"
	"strings"

	"github.com/y0f/apiprobe/internal/contract"
)

type Category string

const (
	HappyPath         Category = "happy_path"
	Boundary          Category = "boundary"
	RequiredViolation Category = "required_violation"
	TypeViolation     Category = "type_violation"
)

// Categories lists every category in synthesis order.
var Categories = []Category{HappyPath, Boundary, RequiredViolation, TypeViolation}

// Value is one concrete request input.
type Value struct {
	Name  string
	In    contract.Location
	Value any
}

// TestCase is an immutable, synthesized invocation of one operation.
type TestCase struct {
	ID        string
	Operation *contract.Operation
	Category  Category
	// Target names the probed input ("id", "body", "body.name"); empty for
	// happy-path cases.
	Target string
	// Probe labels the boundary edge or violation ("min-1", "omitted").
	Probe  string
	Values []Value
	// ExpectRejection is set when the target must answer with a 4xx.
	ExpectRejection bool
	// SkipReason is non-empty for placeholder cases that must not execute.
	SkipReason string
}

// Name is the human-readable case label used in reports.
func (tc *TestCase) Name() string {
	parts := []string{tc.Operation.ID, string(tc.Category)}
	if tc.Target != "" {
		parts = append(parts, tc.Target)
	}
	if tc.Probe != "" {
		parts = append(parts, tc.Probe)
	}
	return strings.Join(parts, " ")
}

// Lookup returns the value sent for (in, name).
func (tc *TestCase) Lookup(in contract.Location, name string) (any, bool) {
	for _, v := range tc.Values {
		if v.In == in && v.Name == name {
			return v.Value, true
		}
	}
	return nil, false
}

// Suite is the ordered output of Synthesize.
type Suite struct {
	Cases  []*TestCase
	Errors []*Error
}

// Count returns the number of cases in category cat.
func (s *Suite) Count(cat Category) int {
	n := 0
	for _, tc := range s.Cases {
		if tc.Category == cat {
			n++
		}
	}
	return n
}

// ForOperation returns the cases synthesized for operation id.
func (s *Suite) ForOperation(id string) []*TestCase {
	var out []*TestCase
	for _, tc := range s.Cases {
		if tc.Operation.ID == id {
			out = append(out, tc)
		}
	}
	return out
}

// Error reports an operation whose schema is too underspecified to produce
// a type-correct value.
type Error struct {
	OperationID string
	Target      string
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("synthesize %s: %s: %v", e.OperationID, e.Target, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Synthesize builds the suite for every operation of c. An operation that
// cannot be synthesized contributes one skipped placeholder case and an
// entry in Suite.Errors; the others are unaffected.
func Synthesize(c *contract.Contract) *Suite {
	s := &Suite{}
	for _, op := range c.Operations {
		cases, err := synthesizeOperation(op)
		if err != nil {
			s.Errors = append(s.Errors, err)
			cases = []*TestCase{{
				Operation:  op,
				Category:   HappyPath,
				SkipReason: err.Error(),
			}}
		}
		for _, tc := range cases {
			tc.ID = fmt.Sprintf("T%05d-%s", len(s.Cases)+1, op.ID)
			s.Cases = append(s.Cases, tc)
		}
	}
	return s
}

// target is one probe-able input: a non-body parameter, the whole body, or
// a top-level property of an object body.
type target struct {
	name     string
	param    *contract.Parameter
	prop     string
	schema   *contract.Schema
	required bool
}

type opBuilder struct {
	op    *contract.Operation
	base  []Value
	cases []*TestCase
}

func synthesizeOperation(op *contract.Operation) ([]*TestCase, *Error) {
	b := &opBuilder{op: op}
	if err := b.baseline(); err != nil {
		return nil, err
	}
	b.add(&TestCase{Category: HappyPath, Values: b.copyBase()})
	if err := b.boundaries(); err != nil {
		return nil, err
	}
	b.requiredViolations()
	b.typeViolations()
	return b.cases, nil
}

func (b *opBuilder) add(tc *TestCase) {
	tc.Operation = b.op
	b.cases = append(b.cases, tc)
}

// baseline computes one valid value for every parameter, required or not.
func (b *opBuilder) baseline() *Error {
	for _, p := range b.op.Parameters {
		v := p.Example
		if !p.HasExample {
			var err error
			v, err = newGenerator(b.op.ID, p.Name, HappyPath).value(p.Schema)
			if err != nil {
				return &Error{OperationID: b.op.ID, Target: p.Name, Err: err}
			}
		}
		b.base = append(b.base, Value{Name: p.Name, In: p.In, Value: v})
	}
	return nil
}

func (b *opBuilder) targets() []target {
	var out []target
	for _, p := range b.op.Parameters {
		if p.In == contract.InBody && p.Schema.Kind == contract.KindObject && len(p.Schema.Properties) > 0 {
			for _, name := range p.Schema.PropertyNames() {
				out = append(out, target{
					name:     "body." + name,
					param:    p,
					prop:     name,
					schema:   p.Schema.Properties[name],
					required: p.Schema.IsRequired(name),
				})
			}
			continue
		}
		out = append(out, target{name: p.Name, param: p, schema: p.Schema, required: p.Required})
		if p.In == contract.InBody {
			out[len(out)-1].name = "body"
		}
	}
	return out
}

func (b *opBuilder) copyBase() []Value {
	out := make([]Value, len(b.base))
	copy(out, b.base)
	return out
}

// with returns the baseline with target t set to v.
func (b *opBuilder) with(t target, v any) []Value {
	out := b.copyBase()
	for i := range out {
		if out[i].In != t.param.In || out[i].Name != t.param.Name {
			continue
		}
		if t.prop == "" {
			out[i].Value = v
			continue
		}
		m := copyObject(out[i].Value)
		m[t.prop] = v
		out[i].Value = m
	}
	return out
}

// without returns the baseline with target t removed.
func (b *opBuilder) without(t target) []Value {
	out := make([]Value, 0, len(b.base))
	for _, v := range b.base {
		if v.In == t.param.In && v.Name == t.param.Name {
			if t.prop == "" {
				continue
			}
			m := copyObject(v.Value)
			delete(m, t.prop)
			v.Value = m
		}
		out = append(out, v)
	}
	return out
}

func copyObject(v any) map[string]any {
	src, _ := v.(map[string]any)
	out := make(map[string]any, len(src)+1)
	for k, x := range src {
		out[k] = x
	}
	return out
}

func (b *opBuilder) boundaries() *Error {
	for _, t := range b.targets() {
		if !t.schema.Constrained() {
			continue
		}
		probes, err := boundaryProbes(t.schema, newGenerator(b.op.ID, t.name, Boundary))
		if err != nil {
			return &Error{OperationID: b.op.ID, Target: t.name, Err: err}
		}
		for _, p := range probes {
			b.add(&TestCase{
				Category:        Boundary,
				Target:          t.name,
				Probe:           p.label,
				Values:          b.with(t, p.value),
				ExpectRejection: p.reject,
			})
		}
	}
	return nil
}

func (b *opBuilder) requiredViolations() {
	bodyOmitted := false
	for _, t := range b.targets() {
		if t.param.In == contract.InPath {
			continue
		}
		if t.param.In == contract.InBody && t.param.Required && !bodyOmitted {
			bodyOmitted = true
			b.omit(target{name: "body", param: t.param})
			if t.prop == "" {
				continue
			}
		}
		if t.required {
			b.omit(t)
		}
	}
}

func (b *opBuilder) omit(t target) {
	b.add(&TestCase{
		Category:        RequiredViolation,
		Target:          t.name,
		Probe:           "omitted",
		Values:          b.without(t),
		ExpectRejection: true,
	})
}

func (b *opBuilder) typeViolations() {
	for _, t := range b.targets() {
		v, ok := wrongType(t.schema, t.param.In == contract.InBody)
		if !ok {
			continue
		}
		b.add(&TestCase{
			Category:        TypeViolation,
			Target:          t.name,
			Probe:           "wrong_type",
			Values:          b.with(t, v),
			ExpectRejection: true,
		})
	}
}

// wrongType returns a value of a different primitive type than s admits.
// Strings outside the body have no such value on the wire.
func wrongType(s *contract.Schema, inBody bool) (any, bool) {
	switch s.Kind {
	case contract.KindUnion:
		return nil, false
	case contract.KindObject:
		return "abc", inBody
	case contract.KindArray:
		if inBody {
			return "abc", true
		}
		if s.Items != nil && s.Items.Kind == contract.KindPrimitive {
			switch s.Items.Type {
			case contract.TypeInteger, contract.TypeNumber, contract.TypeBoolean:
				return []any{"abc"}, true
			}
		}
		return nil, false
	}
	switch s.Type {
	case contract.TypeInteger, contract.TypeNumber, contract.TypeBoolean:
		return "abc", true
	case contract.TypeString:
		if inBody {
			return 12345, true
		}
	}
	return nil, false
}
