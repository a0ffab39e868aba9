package domain

import (
	"encoding/json"
	"sort"
	"strings"
)

// ClaimSet is an immutable set of claim names. Grants carry two of these:
// one for ID-token claims and one for userinfo claims. They are derived by
// the claims resolver, never hand-edited, and merge by set union.
type ClaimSet struct {
	values map[string]struct{}
}

// NewClaimSet builds a ClaimSet from the given claim names.
func NewClaimSet(names ...string) ClaimSet {
	values := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			values[n] = struct{}{}
		}
	}
	return ClaimSet{values: values}
}

// ParseClaimSet parses the space-delimited storage form.
func ParseClaimSet(s string) ClaimSet {
	return NewClaimSet(strings.Fields(s)...)
}

// Contains reports whether the claim name is in the set.
func (c ClaimSet) Contains(name string) bool {
	_, ok := c.values[name]
	return ok
}

// Merge returns a new ClaimSet holding the union of both sets.
func (c ClaimSet) Merge(other ClaimSet) ClaimSet {
	values := make(map[string]struct{}, len(c.values)+len(other.values))
	for v := range c.values {
		values[v] = struct{}{}
	}
	for v := range other.values {
		values[v] = struct{}{}
	}
	return ClaimSet{values: values}
}

// Names returns the claim names in sorted order.
func (c ClaimSet) Names() []string {
	out := make([]string, 0, len(c.values))
	for v := range c.values {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// String returns the space-delimited storage form, sorted for stability.
func (c ClaimSet) String() string {
	return strings.Join(c.Names(), " ")
}

// IsEmpty reports whether the set holds no claims.
func (c ClaimSet) IsEmpty() bool { return len(c.values) == 0 }

// Len returns the number of claims in the set.
func (c ClaimSet) Len() int { return len(c.values) }

// MarshalJSON encodes the set as a sorted array of claim names.
func (c ClaimSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Names())
}

// UnmarshalJSON decodes an array of claim names.
func (c *ClaimSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*c = NewClaimSet(names...)
	return nil
}
