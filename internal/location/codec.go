// Package location models the navigation state kept in a client's address
// fragment and converts it to and from its wire form:
//
//	base[?k1=v1&k2=v2...]
//
// Values are percent-encoded one by one; the base and the keys are written
// as-is. Parsing never fails: malformed input degrades to a best-effort
// State.
package location

import (
	"net/url"
	"strings"
)

// FragmentMarker is the optional prefix carried by raw address-bar text.
const FragmentMarker = "#"

// Serialize renders s as base[?k=v&...]. Keys are emitted in sorted order so
// equal states always produce identical text.
func Serialize(s *State) string {
	if s.Len() == 0 {
		return s.base
	}

	var b strings.Builder
	b.WriteString(s.base)
	b.WriteByte('?')
	for i, k := range s.Keys() {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(Escape(s.params[k]))
	}
	return b.String()
}

// Parse reads address-bar text into a State. A leading "#" is accepted.
// Empty text yields defaultLocation's base with no parameters.
func Parse(text, defaultLocation string) *State {
	text = strings.TrimPrefix(text, FragmentMarker)
	if text == "" {
		base, _, _ := strings.Cut(strings.TrimPrefix(defaultLocation, FragmentMarker), "?")
		return New(base)
	}

	base, query, _ := strings.Cut(text, "?")
	s := New(base)
	if query == "" {
		return s
	}

	for _, pair := range strings.Split(query, "&") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		s.params[key] = Unescape(value)
	}
	return s
}

// Escape percent-encodes a single parameter value. Spaces become %20.
func Escape(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}

// Unescape decodes a percent-encoded value. Invalid escape sequences leave
// the input unchanged.
func Unescape(value string) string {
	decoded, err := url.PathUnescape(value)
	if err != nil {
		return value
	}
	return decoded
}

// Normalize returns the canonical text for raw address-bar input.
func Normalize(text, defaultLocation string) string {
	return Serialize(Parse(text, defaultLocation))
}
