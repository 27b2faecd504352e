package geocode

import "strings"

// Normalizer turns a raw incident location into the cache key: the locality
// suffix is appended, then the whole string is lowercased and trimmed.
type Normalizer struct {
	suffix string
}

// NewNormalizer returns a Normalizer for a locality such as "Seattle, WA".
func NewNormalizer(locality string) Normalizer {
	n := Normalizer{}
	if locality = strings.TrimSpace(locality); locality != "" {
		n.suffix = ", " + locality
	}
	return n
}

// Key returns the normalized address for raw. Empty input still yields a key.
func (n Normalizer) Key(raw string) string {
	return strings.TrimSpace(strings.ToLower(raw + n.suffix))
}
