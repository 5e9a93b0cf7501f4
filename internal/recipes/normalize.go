package recipes

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName folds case, strips accents and collapses whitespace so that
// "Piña  Colada" and "pina colada" match.
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}
	folded := cases.Fold().String(stripped)
	return strings.Join(strings.Fields(folded), " ")
}

// Catalog indexes active products by normalized name.
type Catalog struct {
	byName map[string]Product
}

// NewCatalog builds a catalog; on duplicate names the lowest id wins.
func NewCatalog(products []Product) *Catalog {
	c := &Catalog{byName: make(map[string]Product, len(products))}
	for _, p := range products {
		if !p.Active {
			continue
		}
		key := NormalizeName(p.Name)
		if existing, ok := c.byName[key]; ok && existing.ID < p.ID {
			continue
		}
		c.byName[key] = p
	}
	return c
}

// Lookup finds a product by name.
func (c *Catalog) Lookup(name string) (Product, bool) {
	if c == nil {
		return Product{}, false
	}
	p, ok := c.byName[NormalizeName(name)]
	return p, ok
}

// Len reports how many names are indexed.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.byName)
}
