package enroll

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
)

// NameField is the profile key every enrollment must carry.
const NameField = "name"

// reservedFields cannot be used as profile keys because they name the
// record's own attributes.
var reservedFields = map[string]struct{}{
	"id":     {},
	"vector": {},
}

// Profile is the ordered key/value document describing an enrolled user.
// Values are plain JSON values (string, float64, bool, nil, []any, map[string]any).
// The zero Profile is empty.
type Profile struct {
	keys   []string
	values map[string]any
}

// ParseProfile decodes a JSON object into a Profile, keeping the key order of the document.
// A repeated key keeps its first position and its last value.
func ParseProfile(data []byte) (Profile, error) {
	var p Profile
	if err := p.UnmarshalJSON(data); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Len returns the number of fields.
func (p Profile) Len() int {
	return len(p.keys)
}

// Keys returns the field names in document order.
func (p Profile) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Get returns the value stored under key.
func (p Profile) Get(key string) (any, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Name returns the name field, or "" if it is missing or not a string.
func (p Profile) Name() string {
	s, _ := p.values[NameField].(string)
	return s
}

// With returns a copy of p with key set to value. New keys are appended.
func (p Profile) With(key string, value any) Profile {
	out := p.clone()
	if _, ok := out.values[key]; !ok {
		out.keys = append(out.keys, key)
	}
	out.values[key] = value
	return out
}

func (p Profile) clone() Profile {
	out := Profile{
		keys:   p.Keys(),
		values: make(map[string]any, len(p.values)+1),
	}
	for k, v := range p.values {
		out.values[k] = v
	}
	return out
}

// Map returns the fields as an unordered map.
func (p Profile) Map() map[string]any {
	out := make(map[string]any, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Equal compares two profiles field by field. Key order is not significant.
func (p Profile) Equal(o Profile) bool {
	if len(p.values) != len(o.values) {
		return false
	}
	for k, v := range p.values {
		ov, ok := o.values[k]
		if !ok || !reflect.DeepEqual(v, ov) {
			return false
		}
	}
	return true
}

// Validate checks the invariants a UserRecord profile must satisfy.
func (p Profile) Validate() error {
	raw, ok := p.values[NameField]
	if !ok {
		return fmt.Errorf("%w: missing %q field", ErrMalformedSource, NameField)
	}
	name, ok := raw.(string)
	if !ok {
		return fmt.Errorf("%w: %q must be a string, got %T", ErrMalformedSource, NameField, raw)
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: %q is empty", ErrMalformedSource, NameField)
	}
	for _, k := range p.keys {
		if _, reserved := reservedFields[k]; reserved {
			return fmt.Errorf("%w: field %q is reserved", ErrMalformedSource, k)
		}
	}
	return nil
}

// MarshalJSON encodes the profile as a JSON object in key order.
func (p Profile) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("encoding profile key: %w", err)
		}
		vb, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, fmt.Errorf("encoding profile field %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping key order.
func (p *Profile) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("reading profile: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("profile must be a JSON object")
	}

	keys := make([]string, 0)
	values := make(map[string]any)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("reading profile key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected profile token %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("reading profile field %q: %w", key, err)
		}
		if _, seen := values[key]; !seen {
			keys = append(keys, key)
		}
		values[key] = v
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("reading profile end: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after profile object")
	}

	p.keys = keys
	p.values = values
	return nil
}
