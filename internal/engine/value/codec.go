package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ErrAliasCycle is returned when a YAML alias refers to one of its own
// ancestors.
var ErrAliasCycle = errors.New("yaml alias refers to itself")

// UnmarshalYAML decodes a YAML node. A null scalar decodes to KindNull; keys
// missing from a mapping stay absent.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	decoded, err := fromNode(node, make(map[*yaml.Node]bool))
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// MarshalYAML encodes v as plain YAML data.
func (v Value) MarshalYAML() (any, error) {
	return v.ToAny(), nil
}

// UnmarshalYAML decodes a YAML mapping into m.
func (m *Map) UnmarshalYAML(node *yaml.Node) error {
	decoded, err := fromNode(node, make(map[*yaml.Node]bool))
	if err != nil {
		return err
	}
	switch decoded.kind {
	case KindMapping:
		m.entries = decoded.m.entries
	case KindNull, KindAbsent:
		m.entries = make(map[string]Value)
	default:
		return fmt.Errorf("line %d: expected a mapping, got %s", node.Line, decoded.kind)
	}
	return nil
}

// MarshalYAML encodes m as a plain YAML mapping.
func (m *Map) MarshalYAML() (any, error) {
	return m.ToAny(), nil
}

// DecodeYAML parses a YAML document into a map. An empty document yields an
// empty map.
func DecodeYAML(data []byte) (*Map, error) {
	m := NewMap()
	if len(bytes.TrimSpace(data)) == 0 {
		return m, nil
	}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodeYAML renders m as a YAML document with two-space indentation.
func EncodeYAML(m *Map) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m.ToAny()); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func fromNode(node *yaml.Node, expanding map[*yaml.Node]bool) (Value, error) {
	if node == nil {
		return Value{}, nil
	}

	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return Value{}, nil
		}
		return fromNode(node.Content[0], expanding)

	case yaml.AliasNode:
		if expanding[node.Alias] {
			return Value{}, fmt.Errorf("line %d: %w", node.Line, ErrAliasCycle)
		}
		expanding[node.Alias] = true
		defer delete(expanding, node.Alias)
		return fromNode(node.Alias, expanding)

	case yaml.SequenceNode:
		items := make([]Value, 0, len(node.Content))
		for _, child := range node.Content {
			item, err := fromNode(child, expanding)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return Value{kind: KindSequence, seq: items}, nil

	case yaml.MappingNode:
		return mappingFromNode(node, expanding)

	case yaml.ScalarNode:
		return scalarFromNode(node)
	}

	return Value{}, fmt.Errorf("line %d: unsupported yaml node kind %d", node.Line, node.Kind)
}

func mappingFromNode(node *yaml.Node, expanding map[*yaml.Node]bool) (Value, error) {
	expanding[node] = true
	defer delete(expanding, node)

	m := NewMap()
	var merges []*Map
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		val, err := fromNode(valNode, expanding)
		if err != nil {
			return Value{}, err
		}

		// "<<" merge keys contribute entries the mapping does not set itself.
		if keyNode.Kind == yaml.ScalarNode && keyNode.ShortTag() == "!!merge" {
			switch val.kind {
			case KindMapping:
				merges = append(merges, val.m)
			case KindSequence:
				for _, item := range val.seq {
					if item.kind == KindMapping {
						merges = append(merges, item.m)
					}
				}
			}
			continue
		}
		m.Set(keyNode.Value, val)
	}

	for _, src := range merges {
		for key, val := range src.entries {
			if _, exists := m.entries[key]; !exists {
				m.entries[key] = val
			}
		}
	}
	return Mapping(m), nil
}

func scalarFromNode(node *yaml.Node) (Value, error) {
	switch node.ShortTag() {
	case "!!null":
		return Null(), nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return Value{}, err
		}
		return Bool(b), nil
	case "!!int":
		var i int64
		if err := node.Decode(&i); err == nil {
			return Int(i), nil
		}
		var f float64
		if err := node.Decode(&f); err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return Value{}, err
		}
		return Float(f), nil
	default:
		return String(node.Value), nil
	}
}

// MarshalJSON encodes v as JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

// UnmarshalJSON decodes JSON into v. Integers stay integers.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = fromJSON(raw)
	return nil
}

// MarshalJSON encodes m as a JSON object.
func (m *Map) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.ToAny())
}

// UnmarshalJSON decodes a JSON object into m.
func (m *Map) UnmarshalJSON(data []byte) error {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	switch v.kind {
	case KindMapping:
		m.entries = v.m.entries
	case KindNull:
		m.entries = make(map[string]Value)
	default:
		return fmt.Errorf("expected a JSON object, got %s", v.kind)
	}
	return nil
}

func fromJSON(raw any) Value {
	switch x := raw.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(string(x), 10, 64); err == nil {
			return Int(i)
		}
		f, _ := x.Float64()
		return Float(f)
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = fromJSON(item)
		}
		return Value{kind: KindSequence, seq: items}
	case map[string]any:
		m := NewMap()
		for key, item := range x {
			m.Set(key, fromJSON(item))
		}
		return Mapping(m)
	default:
		return FromAny(x)
	}
}
