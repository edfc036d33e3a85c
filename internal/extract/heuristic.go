package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/outfitly/stylescout/internal/models"
)

// last-resort price shapes: "$1,299.00", "1.299,00 €", "USD 49.99"
var (
	priceTextRe   = regexp.MustCompile(`[$€£¥]\s?\d[\d.,]*|\d[\d.,]*\s?[$€£¥]|(?:USD|EUR|GBP)\s?\d[\d.,]*`)
	currencyRe    = regexp.MustCompile(`[$€£¥]|USD|EUR|GBP`)
	domainBrandRe = regexp.MustCompile(`^(?:www\.|shop\.|store\.)?([^.]+)\.`)
)

const minImageURLLen = 30

// Heuristic is the final cascade step: generic CSS-pattern guessing plus
// text-pattern price scanning. Low precision, but better than dropping a
// page that every structured path missed.
func Heuristic() Strategy {
	return Strategy{Name: "heuristic", Extract: extractHeuristic}
}

func extractHeuristic(p *Page) *models.Candidate {
	c := &models.Candidate{}

	c.Name = text(p.doc.Find("h1"))
	if c.Name == "" {
		c.Name = strings.TrimSpace(p.doc.Find("title").First().Text())
	}

	// elements whose class mentions price, cheapest plausible match first
	p.doc.Find(`[class*="price"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if m := priceTextRe.FindString(sel.Text()); m != "" {
			c.Price = m
			return false
		}
		return true
	})
	if c.Price == "" {
		if m := priceTextRe.FindString(p.doc.Find("body").Text()); m != "" {
			c.Price = m
		}
	}
	if c.Price != "" {
		c.Currency = currencyFromSymbol(currencyRe.FindString(c.Price))
	}

	p.doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src := attrOr(img, "src", "data-src")
		if !plausibleProductImage(src) {
			return
		}
		alt, _ := img.Attr("alt")
		c.Images = append(c.Images, models.Image{URL: src, Alt: strings.TrimSpace(alt)})
	})

	c.Brand = brandFromDomain(p.Host)
	return c
}

// plausibleProductImage filters tracking pixels, sprites and inline data
// URIs by requiring a real, reasonably long URL.
func plausibleProductImage(src string) bool {
	if len(src) < minImageURLLen {
		return false
	}
	if strings.HasPrefix(src, "data:") {
		return false
	}
	lower := strings.ToLower(src)
	return !strings.Contains(lower, "sprite") && !strings.Contains(lower, "icon") &&
		!strings.Contains(lower, "logo")
}

func brandFromDomain(host string) string {
	m := domainBrandRe.FindStringSubmatch(host)
	if len(m) < 2 {
		return ""
	}
	name := m[1]
	return strings.ToUpper(name[:1]) + name[1:]
}

func currencyFromSymbol(sym string) string {
	switch sym {
	case "$", "USD":
		return "USD"
	case "€", "EUR":
		return "EUR"
	case "£", "GBP":
		return "GBP"
	case "¥":
		return "JPY"
	}
	return ""
}
