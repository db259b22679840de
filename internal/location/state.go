package location

import (
	"sort"
	"strings"
)

// Separator terminates every non-empty base.
const Separator = "/"

// State is the in-memory model of "where the user is": an action base plus
// a set of logical (decoded) parameter values.
//
// A key missing from the map is distinct from a key set to "". Get reports
// the difference through its second return value.
type State struct {
	base   string
	params map[string]string
}

// New returns a State with the given base and no parameters.
func New(base string) *State {
	return &State{
		base:   normalizeBase(base),
		params: make(map[string]string),
	}
}

func normalizeBase(base string) string {
	if base != "" && !strings.HasSuffix(base, Separator) {
		return base + Separator
	}
	return base
}

// Get returns the value for key and whether it is set.
func (s *State) Get(key string) (string, bool) {
	v, ok := s.params[key]
	return v, ok
}

// GetOr returns the value for key, or def when the key is not set.
func (s *State) GetOr(key, def string) string {
	if v, ok := s.params[key]; ok {
		return v
	}
	return def
}

// Has reports whether key is set (possibly to the empty string).
func (s *State) Has(key string) bool {
	_, ok := s.params[key]
	return ok
}

// Set assigns value to key.
func (s *State) Set(key, value string) *State {
	s.params[key] = value
	return s
}

// SetAll merges values into the parameter map; the last write wins per key.
func (s *State) SetAll(values map[string]string) *State {
	for k, v := range values {
		s.params[k] = v
	}
	return s
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *State) Delete(key string) *State {
	delete(s.params, key)
	return s
}

// Reset clears the base and every parameter.
func (s *State) Reset() *State {
	s.base = ""
	s.params = make(map[string]string)
	return s
}

// SetBase replaces the base. Parameters are dropped unless preserveParams
// is true.
func (s *State) SetBase(value string, preserveParams bool) *State {
	s.base = normalizeBase(value)
	if !preserveParams {
		s.params = make(map[string]string)
	}
	return s
}

// Base returns the normalized base, including its trailing separator.
func (s *State) Base() string {
	return s.base
}

// GetBase returns the base without its trailing separator, for display and
// comparison with action names.
func (s *State) GetBase() string {
	return strings.TrimSuffix(s.base, Separator)
}

// IsUnset reports whether no base has been chosen yet.
func (s *State) IsUnset() bool {
	return s.base == ""
}

// Len returns the number of parameters.
func (s *State) Len() int {
	return len(s.params)
}

// Keys returns the parameter names in sorted order.
func (s *State) Keys() []string {
	keys := make([]string, 0, len(s.params))
	for k := range s.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Params returns a copy of the parameter map.
func (s *State) Params() map[string]string {
	out := make(map[string]string, len(s.params))
	for k, v := range s.params {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	return &State{base: s.base, params: s.Params()}
}

// Equal reports whether both states have the same base and the same
// key/value pairs, independent of insertion order.
func (s *State) Equal(other *State) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.base != other.base || len(s.params) != len(other.params) {
		return false
	}
	for k, v := range s.params {
		ov, ok := other.params[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

func (s *State) String() string {
	return Serialize(s)
}
