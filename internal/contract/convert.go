package contract

import (
	"encoding/json"
	"sort"
)

// schema converts a raw schema node into a Schema. References are memoized
// per target so recursive definitions close into a graph instead of
// expanding forever.
func (l *loader) schema(node any, ptr string) (*Schema, error) {
	if b, ok := node.(bool); ok {
		if !b {
			return nil, schemaErr(ptr, "schema false accepts no value")
		}
		return &Schema{Kind: KindPrimitive, Type: TypeAny}, nil
	}
	m, ok := node.(map[string]any)
	if !ok {
		return nil, schemaErr(ptr, "schema must be an object")
	}

	if ref, ok := m["$ref"].(string); ok {
		if s, ok := l.schemas[ref]; ok {
			return s, nil
		}
		target, err := l.resolve(ref, ptr)
		if err != nil {
			return nil, err
		}
		placeholder := &Schema{Kind: KindPrimitive, Type: TypeAny}
		l.schemas[ref] = placeholder
		built, err := l.schema(target, ref[1:])
		if err != nil {
			return nil, err
		}
		if built != placeholder {
			*placeholder = *built
		}
		return placeholder, nil
	}

	s, err := l.shape(m, ptr)
	if err != nil {
		return nil, err
	}
	if m["nullable"] == true || m["x-nullable"] == true {
		s.Nullable = true
	}
	if ex, ok := m["example"]; ok {
		s.Example, s.HasExample = ex, true
	} else if def, ok := m["default"]; ok {
		s.Example, s.HasExample = def, true
	}
	return s, nil
}

func (l *loader) shape(m map[string]any, ptr string) (*Schema, error) {
	if parts, ok := m["allOf"].([]any); ok {
		return l.allOf(m, parts, ptr)
	}
	for _, mode := range []UnionMode{UnionOneOf, UnionAnyOf} {
		parts, ok := m[string(mode)].([]any)
		if !ok {
			continue
		}
		u := &Schema{Kind: KindUnion, Mode: mode}
		for i, part := range parts {
			v, err := l.schema(part, ptr+"/"+string(mode)+"/"+itoa(i))
			if err != nil {
				return nil, err
			}
			u.Variants = append(u.Variants, v)
		}
		if len(u.Variants) == 0 {
			return nil, schemaErr(ptr, "%s has no variants", mode)
		}
		return u, nil
	}

	typ, nullable, err := schemaType(m, ptr)
	if err != nil {
		return nil, err
	}

	if values, ok := m["enum"].([]any); ok {
		s := &Schema{Kind: KindEnum, Type: typ, Nullable: nullable, Enum: values}
		if s.Type == TypeAny && len(values) > 0 {
			s.Type = inferType(values[0])
		}
		return s, nil
	}

	switch typ {
	case "object":
		return l.object(m, ptr, nullable)
	case "array":
		raw, ok := m["items"]
		if !ok {
			return nil, schemaErr(ptr, "array schema requires items")
		}
		items, err := l.schema(raw, ptr+"/items")
		if err != nil {
			return nil, err
		}
		return &Schema{
			Kind:     KindArray,
			Nullable: nullable,
			Items:    items,
			MinItems: intOf(m["minItems"]),
			MaxItems: intOf(m["maxItems"]),
		}, nil
	case TypeAny:
		if _, ok := m["properties"]; ok {
			return l.object(m, ptr, nullable)
		}
		if _, ok := m["items"]; ok {
			return nil, schemaErr(ptr, "schema with items must declare type array")
		}
	}

	s := &Schema{
		Kind:       KindPrimitive,
		Type:       typ,
		Nullable:   nullable,
		Format:     stringOf(m["format"]),
		MinLength:  intOf(m["minLength"]),
		MaxLength:  intOf(m["maxLength"]),
		Minimum:    floatOf(m["minimum"]),
		Maximum:    floatOf(m["maximum"]),
		MultipleOf: floatOf(m["multipleOf"]),
		Pattern:    stringOf(m["pattern"]),
	}
	// 3.0 uses booleans, 3.1 puts the bound itself in exclusiveMinimum.
	switch v := m["exclusiveMinimum"].(type) {
	case bool:
		s.ExclusiveMinimum = v
	case float64:
		s.Minimum, s.ExclusiveMinimum = &v, true
	}
	switch v := m["exclusiveMaximum"].(type) {
	case bool:
		s.ExclusiveMaximum = v
	case float64:
		s.Maximum, s.ExclusiveMaximum = &v, true
	}
	return s, nil
}

func (l *loader) object(m map[string]any, ptr string, nullable bool) (*Schema, error) {
	s := &Schema{Kind: KindObject, Nullable: nullable, Properties: make(map[string]*Schema)}
	if props, ok := m["properties"].(map[string]any); ok {
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			child, err := l.schema(props[name], ptr+"/properties/"+escapePointer(name))
			if err != nil {
				return nil, err
			}
			s.Properties[name] = child
		}
	}
	s.Required = stringList(m["required"])
	switch ap := m["additionalProperties"].(type) {
	case bool:
		s.AdditionalForbidden = !ap
	case map[string]any:
		extra, err := l.schema(ap, ptr+"/additionalProperties")
		if err != nil {
			return nil, err
		}
		s.AdditionalProperties = extra
	}
	return s, nil
}

// allOf merges object parts into one object. A single non-object part is
// passed through unchanged.
func (l *loader) allOf(m map[string]any, parts []any, ptr string) (*Schema, error) {
	var resolved []*Schema
	for i, part := range parts {
		s, err := l.schema(part, ptr+"/allOf/"+itoa(i))
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, s)
	}
	if _, ok := m["properties"]; ok {
		own, err := l.object(m, ptr, false)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, own)
	}
	if len(resolved) == 1 && resolved[0].Kind != KindObject {
		return resolved[0], nil
	}

	merged := &Schema{Kind: KindObject, Properties: make(map[string]*Schema)}
	seen := make(map[string]bool)
	for _, part := range resolved {
		if part.Kind == KindPrimitive && part.Type == TypeAny {
			continue
		}
		if part.Kind != KindObject {
			return nil, schemaErr(ptr, "allOf can only combine object schemas, got %s", part.Kind)
		}
		for name, prop := range part.Properties {
			merged.Properties[name] = prop
		}
		for _, r := range part.Required {
			if !seen[r] {
				seen[r] = true
				merged.Required = append(merged.Required, r)
			}
		}
		if part.AdditionalForbidden {
			merged.AdditionalForbidden = true
		}
		if part.AdditionalProperties != nil {
			merged.AdditionalProperties = part.AdditionalProperties
		}
	}
	return merged, nil
}

func schemaType(m map[string]any, ptr string) (Type, bool, error) {
	switch t := m["type"].(type) {
	case nil:
		return TypeAny, false, nil
	case string:
		typ, err := checkType(t, ptr)
		return typ, false, err
	case []any:
		// 3.1 style: ["string", "null"].
		nullable := false
		typ := TypeAny
		for _, item := range t {
			name, _ := item.(string)
			if name == "null" {
				nullable = true
				continue
			}
			checked, err := checkType(name, ptr)
			if err != nil {
				return TypeAny, false, err
			}
			typ = checked
		}
		if typ == TypeAny && nullable {
			return TypeNull, false, nil
		}
		return typ, nullable, nil
	default:
		return TypeAny, false, schemaErr(ptr, "type must be a string or array")
	}
}

func checkType(name, ptr string) (Type, error) {
	switch name {
	case "string", "integer", "number", "boolean", "null", "object", "array":
		return Type(name), nil
	case "file":
		return TypeString, nil
	default:
		return TypeAny, schemaErr(ptr, "unknown type %q", name)
	}
}

func inferType(v any) Type {
	switch t := v.(type) {
	case string:
		return TypeString
	case bool:
		return TypeBoolean
	case float64:
		if t == float64(int64(t)) {
			return TypeInteger
		}
		return TypeNumber
	case json.Number:
		return TypeNumber
	}
	return TypeAny
}

func intOf(v any) *int {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	n := int(f)
	return &n
}

func floatOf(v any) *float64 {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	return &f
}

func itoa(i int) string {
	return stringOf(float64(i))
}
