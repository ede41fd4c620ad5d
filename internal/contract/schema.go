package contract

import "sort"

// Kind tags the variant a Schema represents. The set is closed: every
// consumer switches over these five values.
type Kind int

const (
	KindPrimitive Kind = iota
	KindObject
	KindArray
	KindEnum
	KindUnion
)

func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindEnum:
		return "enum"
	case KindUnion:
		return "union"
	default:
		return "unknown"
	}
}

// Type is a JSON primitive type name.
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeNull    Type = "null"
	// TypeAny is used for schemas that declare no type at all ({}).
	TypeAny Type = ""
)

// UnionMode distinguishes oneOf from anyOf.
type UnionMode string

const (
	UnionOneOf UnionMode = "oneOf"
	UnionAnyOf UnionMode = "anyOf"
)

// Schema is a fully resolved schema tree. Recursive contracts produce a
// pointer graph: a property may point back at an ancestor.
type Schema struct {
	Kind     Kind
	Nullable bool

	Example    any
	HasExample bool

	// Primitive (and the underlying type of an enum).
	Type             Type
	Format           string
	MinLength        *int
	MaxLength        *int
	Minimum          *float64
	Maximum          *float64
	ExclusiveMinimum bool
	ExclusiveMaximum bool
	MultipleOf       *float64
	Pattern          string

	// Enum.
	Enum []any

	// Object.
	Properties map[string]*Schema
	Required   []string
	// AdditionalProperties is nil when extra keys are allowed without a
	// schema; AdditionalForbidden is set for additionalProperties: false.
	AdditionalProperties *Schema
	AdditionalForbidden  bool

	// Array.
	Items    *Schema
	MinItems *int
	MaxItems *int

	// Union.
	Variants []*Schema
	Mode     UnionMode
}

// PropertyNames returns the object's property names in a stable order.
func (s *Schema) PropertyNames() []string {
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRequired reports whether name is listed in the object's required set.
func (s *Schema) IsRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

// HasLengthBounds reports whether a string schema declares a length constraint.
func (s *Schema) HasLengthBounds() bool {
	return s.MinLength != nil || s.MaxLength != nil
}

// HasRange reports whether a numeric schema declares minimum or maximum.
func (s *Schema) HasRange() bool {
	return s.Minimum != nil || s.Maximum != nil
}

// HasItemBounds reports whether an array schema declares minItems or maxItems.
func (s *Schema) HasItemBounds() bool {
	return s.MinItems != nil || s.MaxItems != nil
}

// Constrained reports whether the schema carries any constraint the
// synthesizer can probe at its edges.
func (s *Schema) Constrained() bool {
	switch s.Kind {
	case KindEnum:
		return len(s.Enum) > 0
	case KindPrimitive:
		switch s.Type {
		case TypeString:
			return s.HasLengthBounds()
		case TypeInteger, TypeNumber:
			return s.HasRange()
		}
	case KindArray:
		return s.HasItemBounds()
	}
	return false
}

// Describe returns a short human-readable type label, e.g. "integer",
// "array<string>", "enum(string)".
func (s *Schema) Describe() string {
	if s == nil {
		return "any"
	}
	switch s.Kind {
	case KindPrimitive:
		if s.Type == TypeAny {
			return "any"
		}
		return string(s.Type)
	case KindObject:
		return "object"
	case KindArray:
		if s.Items == nil {
			return "array"
		}
		return "array<" + s.Items.Describe() + ">"
	case KindEnum:
		if s.Type == TypeAny {
			return "enum"
		}
		return "enum(" + string(s.Type) + ")"
	case KindUnion:
		return string(s.Mode)
	}
	return "unknown"
}
