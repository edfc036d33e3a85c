package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/outfitly/stylescout/internal/models"
)

// OpenGraph extracts product data from Open Graph and product: meta tags.
// Thin compared to structured data, but most storefronts carry at least
// og:title and a price for share previews.
func OpenGraph() Strategy {
	return Strategy{Name: "opengraph", Extract: extractOpenGraph}
}

func extractOpenGraph(p *Page) *models.Candidate {
	meta := func(property string) string {
		sel := p.doc.Find(`meta[property="` + property + `"]`).First()
		if sel.Length() == 0 {
			sel = p.doc.Find(`meta[name="` + property + `"]`).First()
		}
		v, _ := sel.Attr("content")
		return strings.TrimSpace(v)
	}

	ogType := meta("og:type")
	if ogType != "" && !strings.Contains(ogType, "product") {
		return nil
	}

	c := &models.Candidate{
		Name:        meta("og:title"),
		Description: meta("og:description"),
		Brand:       meta("product:brand"),
		Price:       meta("product:price:amount"),
		Currency:    meta("product:price:currency"),
	}
	if c.Price == "" {
		c.Price = meta("og:price:amount")
		c.Currency = meta("og:price:currency")
	}

	p.doc.Find(`meta[property="og:image"]`).Each(func(_ int, sel *goquery.Selection) {
		if v, ok := sel.Attr("content"); ok && strings.TrimSpace(v) != "" {
			c.Images = append(c.Images, models.Image{URL: strings.TrimSpace(v)})
		}
	})
	return c
}
