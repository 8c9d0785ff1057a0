package queue

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Param is one named task parameter. Value holds a string, a number
// (int64 or float64), or a list of strings.
type Param struct {
	Name  string
	Value any
}

// Spec is an ordered parameter list. Order is preserved through JSON
// persistence so the environment handed to a payload script is reproducible.
type Spec []Param

// Get returns the value for a parameter name.
func (s Spec) Get(name string) (any, bool) {
	for _, p := range s {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// EnvValue renders a parameter value as the environment string handed to the
// subprocess: lists join with ",", numbers use their decimal string form, and
// everything else passes through as-is.
func EnvValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		joined := ""
		for i, item := range v {
			if i > 0 {
				joined += ","
			}
			joined += item
		}
		return joined
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ApplyEnv overlays the spec onto an environment map, one variable per
// parameter. Later parameters and spec entries win collisions.
func (s Spec) ApplyEnv(env map[string]string) {
	for _, p := range s {
		env[p.Name] = EnvValue(p.Value)
	}
}

type paramJSON struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the spec as an array of name/value objects.
func (s Spec) MarshalJSON() ([]byte, error) {
	out := make([]paramJSON, 0, len(s))
	for _, p := range s {
		raw, err := json.Marshal(p.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal spec parameter %q: %w", p.Name, err)
		}
		out = append(out, paramJSON{Name: p.Name, Value: raw})
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the array form, preserving parameter order.
func (s *Spec) UnmarshalJSON(data []byte) error {
	var raw []paramJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	spec := make(Spec, 0, len(raw))
	for _, entry := range raw {
		value, err := decodeParamValue(entry.Value)
		if err != nil {
			return fmt.Errorf("decode spec parameter %q: %w", entry.Name, err)
		}
		spec = append(spec, Param{Name: entry.Name, Value: value})
	}
	*s = spec
	return nil
}

func decodeParamValue(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var str string
		if err := json.Unmarshal(raw, &str); err != nil {
			return nil, err
		}
		return str, nil
	case '[':
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return list, nil
	default:
		var num json.Number
		if err := json.Unmarshal(raw, &num); err != nil {
			return nil, err
		}
		if i, err := num.Int64(); err == nil {
			return i, nil
		}
		f, err := num.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	}
}

// ParseSpec decodes a persisted spec document. Empty input yields an empty spec.
func ParseSpec(data string) (Spec, error) {
	if data == "" {
		return nil, nil
	}
	var spec Spec
	if err := json.Unmarshal([]byte(data), &spec); err != nil {
		return nil, fmt.Errorf("parse task spec: %w", err)
	}
	return spec, nil
}

// EncodeSpec renders a spec to its persisted JSON document.
func EncodeSpec(spec Spec) (string, error) {
	if len(spec) == 0 {
		return "", nil
	}
	data, err := json.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("encode task spec: %w", err)
	}
	return string(data), nil
}
