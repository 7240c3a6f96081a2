package signature

import (
	"encoding/json"
	"fmt"
	"os"
)

// Alias maps alternate spellings of a place name onto one canonical spelling.
type Alias struct {
	Canonical  string   `json:"canonical"`
	Alternates []string `json:"alternates"`
}

// Table resolves locale variants of venue, city and region names. A Table is
// read-only once built and is safe for concurrent use.
type Table struct {
	byKey map[string]string
}

var defaultAliases = []Alias{
	{Canonical: "Zurich", Alternates: []string{"Zürich", "Zuerich", "Zurigo", "Zurich City"}},
	{Canonical: "Geneva", Alternates: []string{"Genève", "Genf", "Ginevra", "Geneve"}},
	{Canonical: "Basel", Alternates: []string{"Bâle", "Basilea", "Bale"}},
	{Canonical: "Bern", Alternates: []string{"Berne", "Berna"}},
	{Canonical: "Lucerne", Alternates: []string{"Luzern", "Lucerna"}},
	{Canonical: "Lausanne", Alternates: []string{"Losanna"}},
	{Canonical: "Lugano", Alternates: []string{}},
	{Canonical: "Winterthur", Alternates: []string{"Winterthour"}},
	{Canonical: "St. Gallen", Alternates: []string{"Saint-Gall", "San Gallo", "St Gallen", "Sankt Gallen"}},
	{Canonical: "Fribourg", Alternates: []string{"Freiburg im Üechtland", "Friburgo"}},
	{Canonical: "Neuchatel", Alternates: []string{"Neuchâtel", "Neuenburg"}},
	{Canonical: "Grisons", Alternates: []string{"Graubünden", "Grigioni", "Grischun"}},
	{Canonical: "Ticino", Alternates: []string{"Tessin"}},
	{Canonical: "Valais", Alternates: []string{"Wallis", "Vallese"}},
	{Canonical: "Vaud", Alternates: []string{"Waadt"}},
	{Canonical: "Central Switzerland", Alternates: []string{"Zentralschweiz", "Suisse centrale", "Svizzera centrale"}},
	{Canonical: "Eastern Switzerland", Alternates: []string{"Ostschweiz", "Suisse orientale", "Svizzera orientale"}},
	{Canonical: "Western Switzerland", Alternates: []string{"Westschweiz", "Romandie", "Suisse romande"}},
}

func NewTable(aliases ...Alias) *Table {
	t := &Table{byKey: make(map[string]string)}
	t.add(aliases)
	return t
}

// DefaultTable returns the built-in alias set.
func DefaultTable() *Table {
	return NewTable(defaultAliases...)
}

// With returns a copy of t extended by aliases. Existing keys keep their
// canonical spelling so that the table never re-targets a known name.
func (t *Table) With(aliases ...Alias) *Table {
	cp := &Table{byKey: make(map[string]string, len(t.byKey))}
	for k, v := range t.byKey {
		cp.byKey[k] = v
	}
	cp.add(aliases)
	return cp
}

// LoadTable reads a JSON array of aliases and merges it over the defaults.
func LoadTable(path string) (*Table, error) {
	const op = "signature.LoadTable"

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var aliases []Alias
	if err := json.Unmarshal(b, &aliases); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return DefaultTable().With(aliases...), nil
}

// Resolve returns the folded canonical spelling for s, or false when s is
// not a known variant.
func (t *Table) Resolve(s string) (string, bool) {
	folded := fold(s)
	if folded == "" {
		return "", false
	}

	if c, ok := t.byKey[folded]; ok {
		return c, true
	}

	if c, ok := t.byKey[translit(folded)]; ok {
		return c, true
	}

	return "", false
}

func (t *Table) Len() int { return len(t.byKey) }

func (t *Table) add(aliases []Alias) {
	for _, a := range aliases {
		canonical := fold(a.Canonical)
		if canonical == "" {
			continue
		}

		names := append([]string{a.Canonical}, a.Alternates...)
		for _, n := range names {
			f := fold(n)
			if f == "" {
				continue
			}
			for _, k := range []string{f, translit(f)} {
				if _, taken := t.byKey[k]; !taken {
					t.byKey[k] = canonical
				}
			}
		}
	}
}
