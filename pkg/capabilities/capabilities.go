// Package capabilities implements the client-facing capability bag used
// throughout the grid: a mapping from string keys to JSON-shaped leaves,
// encoded with sorted keys, with structural equality, right-biased merge
// into a new value, and stereotype matching.
package capabilities

import (
	"encoding/json"
	"sort"

	"dario.cat/mergo"
	"github.com/tidwall/gjson"
)

// Capabilities is an unordered mapping from string to JSON-shaped value.
// The zero value is an empty, usable capability set.
type Capabilities map[string]any

// Parse decodes a JSON object into a Capabilities value. Nested objects
// and arrays are preserved as generic maps/slices.
func Parse(raw []byte) (Capabilities, error) {
	if len(raw) == 0 {
		return Capabilities{}, nil
	}
	var c Capabilities
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return c, nil
}

// MarshalJSON produces a deterministic object encoding by sorting keys,
// so that round-tripping a Capabilities value is stable for tests and
// for the queue's UI-facing contents() listing.
func (c Capabilities) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte("{")
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(c[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// Equal reports whether c and other are structurally identical: same
// keys, and values equal after a JSON round-trip (so that e.g. int(1)
// and float64(1) compare equal, matching how both sides typically
// arrive after unmarshalling a wire payload).
func (c Capabilities) Equal(other Capabilities) bool {
	if len(c) != len(other) {
		return false
	}
	cb, err := json.Marshal(c)
	if err != nil {
		return false
	}
	ob, err := json.Marshal(other)
	if err != nil {
		return false
	}
	return jsonEqual(cb, ob)
}

func jsonEqual(a, b []byte) bool {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	ab, _ := json.Marshal(av)
	bb, _ := json.Marshal(bv)
	return string(ab) == string(bb)
}

// Satisfies reports whether c (typically a slot's stereotype) satisfies
// every non-null key requested in want (typically a client's requested
// capabilities). A requested key with a nil/missing value is ignored:
// only explicitly requested, non-null capabilities constrain the match.
func (c Capabilities) Satisfies(want Capabilities) bool {
	if len(want) == 0 {
		return true
	}
	selfBytes, err := json.Marshal(c)
	if err != nil {
		return false
	}
	selfJSON := gjson.ParseBytes(selfBytes)

	for key, wantVal := range want {
		if wantVal == nil {
			continue
		}
		got := selfJSON.Get(gjsonEscape(key))
		if !got.Exists() {
			return false
		}
		wantBytes, err := json.Marshal(wantVal)
		if err != nil {
			return false
		}
		if !jsonEqual([]byte(got.Raw), wantBytes) {
			return false
		}
	}
	return true
}

// gjsonEscape escapes path-metacharacters gjson treats specially so a
// capability key containing a literal "." or "*" is matched verbatim.
func gjsonEscape(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '.', '*', '?', '|', '#', '@':
			out = append(out, '\\')
		}
		out = append(out, key[i])
	}
	return string(out)
}

// Merge returns a new Capabilities with other merged on top of c,
// right-biased per key: a key present in both keeps other's value.
// Nested maps are merged recursively; mergo handles the deep-merge walk
// the way the teacher's config layer merges CLI flags over file
// defaults over environment values.
func (c Capabilities) Merge(other Capabilities) (Capabilities, error) {
	result := make(Capabilities, len(c))
	for k, v := range c {
		result[k] = v
	}
	if err := mergo.Merge(&result, map[string]any(other), mergo.WithOverride); err != nil {
		return nil, err
	}
	return result, nil
}

// Clone returns a shallow copy of c.
func (c Capabilities) Clone() Capabilities {
	out := make(Capabilities, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
