package registrant

import "strings"

// Bag is line-item metadata with keys normalised once at the boundary:
// lower-cased, trimmed and whitespace-collapsed. Blank values are dropped.
type Bag map[string]string

func NewBag(meta map[string]string) Bag {
	b := make(Bag, len(meta))
	for k, v := range meta {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		b[normKey(k)] = v
	}
	return b
}

func (b Bag) Get(key string) (string, bool) {
	v, ok := b[normKey(key)]
	return v, ok
}

// First returns the first present key in order.
func (b Bag) First(keys ...string) (string, string, bool) {
	for _, k := range keys {
		if v, ok := b.Get(k); ok {
			return k, v, true
		}
	}
	return "", "", false
}

func (b Bag) Truthy(keys ...string) bool {
	_, v, ok := b.First(keys...)
	if !ok {
		return false
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on", "ja", "oui":
		return true
	}
	return false
}

func normKey(k string) string {
	return strings.Join(strings.Fields(strings.ToLower(k)), " ")
}
