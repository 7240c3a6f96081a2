package signature

import (
	"strings"
	"unicode"

	"github.com/gosimple/unidecode"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// fold lower-cases s, applies NFC and collapses all whitespace and control
// runs into single spaces.
func fold(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// translit is the ASCII form of an already folded string, used only as a
// secondary lookup key.
func translit(folded string) string {
	return strings.Join(strings.Fields(strings.ToLower(unidecode.Unidecode(folded))), " ")
}
