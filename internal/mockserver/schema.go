package mockserver

import (
	"encoding/json"
	"sort"
	"strings"
)

// SchemaDraft is stamped into every inferred schema.
const SchemaDraft = "http://json-schema.org/draft-04/schema"

// schemaSample is how many recent events feed an inferred schema.
const schemaSample = 100

type schemaType interface {
	toMap() map[string]any
}

// simpleType is one of null, boolean, integer, number, string or any.
type simpleType string

const (
	typeAny     simpleType = "any"
	typeNull    simpleType = "null"
	typeInteger simpleType = "integer"
	typeNumber  simpleType = "number"
	typeBoolean simpleType = "boolean"
	typeString  simpleType = "string"
)

func (t simpleType) toMap() map[string]any {
	return map[string]any{"type": string(t)}
}

type arrayType struct {
	items schemaType
}

func (t arrayType) toMap() map[string]any {
	return map[string]any{"type": "array", "items": t.items.toMap()}
}

type objectType struct {
	properties map[string]schemaType
	required   []string
}

func (t objectType) toMap() map[string]any {
	props := make(map[string]any, len(t.properties))
	for name, typ := range t.properties {
		props[name] = typ.toMap()
	}
	required := t.required
	if required == nil {
		required = []string{}
	}
	return map[string]any{"type": "object", "properties": props, "required": required}
}

// combine returns the narrowest type covering both a and b.
func combine(a, b schemaType) schemaType {
	if a == typeNull {
		return b
	}
	if b == typeNull {
		return a
	}
	switch at := a.(type) {
	case simpleType:
		bt, ok := b.(simpleType)
		if !ok || at == typeAny || bt == typeAny {
			return typeAny
		}
		if at == bt {
			return at
		}
		if (at == typeInteger && bt == typeNumber) || (at == typeNumber && bt == typeInteger) {
			return typeNumber
		}
		return typeAny
	case arrayType:
		bt, ok := b.(arrayType)
		if !ok {
			return typeAny
		}
		return arrayType{items: combine(at.items, bt.items)}
	case objectType:
		bt, ok := b.(objectType)
		if !ok {
			return typeAny
		}
		props := make(map[string]schemaType, len(at.properties)+len(bt.properties))
		var required []string
		for name, typ := range at.properties {
			props[name] = typ
		}
		for name, typ := range bt.properties {
			if existing, ok := props[name]; ok {
				props[name] = combine(existing, typ)
				if contains(at.required, name) && contains(bt.required, name) {
					required = append(required, name)
				}
				continue
			}
			props[name] = typ
		}
		sort.Strings(required)
		return objectType{properties: props, required: required}
	default:
		return typeAny
	}
}

func parseValue(v any) schemaType {
	switch val := v.(type) {
	case nil:
		return typeNull
	case bool:
		return typeBoolean
	case string:
		return typeString
	case json.Number:
		if strings.ContainsAny(val.String(), ".eE") {
			return typeNumber
		}
		return typeInteger
	case float64, float32:
		return typeNumber
	case int, int32, int64:
		return typeInteger
	case []any:
		var items schemaType = typeNull
		for _, item := range val {
			items = combine(items, parseValue(item))
		}
		return arrayType{items: items}
	case map[string]any:
		props := make(map[string]schemaType, len(val))
		required := make([]string, 0, len(val))
		for name, item := range val {
			props[name] = parseValue(item)
			required = append(required, name)
		}
		sort.Strings(required)
		return objectType{properties: props, required: required}
	default:
		return typeAny
	}
}

// InferSchema combines the types of events into a single JSON schema.
func InferSchema(events []map[string]any) map[string]any {
	var typ schemaType = typeNull
	for _, ev := range events {
		typ = combine(typ, parseValue(ev))
	}
	schema := typ.toMap()
	schema["$schema"] = SchemaDraft
	return schema
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
