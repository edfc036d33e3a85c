package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/outfitly/stylescout/internal/models"
)

// Microdata extracts products marked up with schema.org microdata
// attributes (itemscope/itemtype/itemprop).
func Microdata() Strategy {
	return Strategy{Name: "microdata", Extract: extractMicrodata}
}

func extractMicrodata(p *Page) *models.Candidate {
	scope := p.doc.Find(`[itemtype*="schema.org/Product"]`).First()
	if scope.Length() == 0 {
		return nil
	}

	c := &models.Candidate{
		Name:        itemprop(scope, "name"),
		Description: itemprop(scope, "description"),
		Brand:       itemprop(scope, "brand"),
		Category:    itemprop(scope, "category"),
		ExternalID:  itemprop(scope, "sku"),
	}

	scope.Find(`[itemprop="image"]`).Each(func(_ int, sel *goquery.Selection) {
		if src := attrOr(sel, "src", "content", "href"); src != "" {
			c.Images = append(c.Images, models.Image{URL: src})
		}
	})

	offer := scope.Find(`[itemprop="offers"]`).First()
	if offer.Length() > 0 {
		c.Price = itemprop(offer, "price")
		c.Currency = itemprop(offer, "priceCurrency")
	} else {
		c.Price = itemprop(scope, "price")
		c.Currency = itemprop(scope, "priceCurrency")
	}
	return c
}

// itemprop reads an itemprop value, preferring the content/value attributes
// over element text as microdata prescribes.
func itemprop(scope *goquery.Selection, name string) string {
	sel := scope.Find(`[itemprop="` + name + `"]`).First()
	if sel.Length() == 0 {
		return ""
	}
	if v, ok := sel.Attr("content"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if v, ok := sel.Attr("value"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return text(sel)
}

func attrOr(sel *goquery.Selection, names ...string) string {
	for _, name := range names {
		if v, ok := sel.Attr(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
