package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/outfitly/stylescout/internal/models"
)

// DOM extracts through the adapter's configured CSS selectors. This is the
// workhorse for brands whose pages carry no structured data.
func DOM(sel Selectors) Strategy {
	return Strategy{
		Name: "dom",
		Extract: func(p *Page) *models.Candidate {
			return extractDOM(p, sel)
		},
	}
}

func extractDOM(p *Page, sel Selectors) *models.Candidate {
	c := &models.Candidate{}

	if sel.Name != "" {
		c.Name = text(p.doc.Find(sel.Name))
	}
	if sel.Price != "" {
		c.Price = text(p.doc.Find(sel.Price))
	}
	if sel.SalePrice != "" {
		c.SalePrice = text(p.doc.Find(sel.SalePrice))
	}
	if sel.Description != "" {
		c.Description = text(p.doc.Find(sel.Description))
	}

	if sel.Images != "" {
		p.doc.Find(sel.Images).Each(func(_ int, img *goquery.Selection) {
			src := attrOr(img, "src", "data-src", "srcset")
			if src == "" {
				return
			}
			// srcset: take the first URL
			if i := strings.IndexAny(src, " ,"); i > 0 {
				src = src[:i]
			}
			alt, _ := img.Attr("alt")
			c.Images = append(c.Images, models.Image{URL: src, Alt: strings.TrimSpace(alt)})
		})
	}

	if sel.Sizes != "" {
		p.doc.Find(sel.Sizes).Each(func(_ int, opt *goquery.Selection) {
			size := text(opt)
			if size == "" {
				return
			}
			available := !opt.HasClass("disabled") && !opt.HasClass("sold-out") &&
				!opt.Is("[disabled]") && !opt.Is("[data-unavailable]")
			c.Variants = append(c.Variants, models.Variant{
				Size:      size,
				Color:     colorFromDOM(p, sel),
				Available: available,
			})
		})
	}

	if sel.Breadcrumbs != "" {
		var crumbs []string
		p.doc.Find(sel.Breadcrumbs).Each(func(_ int, crumb *goquery.Selection) {
			if t := text(crumb); t != "" && t != c.Name {
				crumbs = append(crumbs, t)
			}
		})
		// first crumb after the root is the category, the next the subcategory
		if len(crumbs) > 1 {
			c.Category = crumbs[1]
		} else if len(crumbs) == 1 {
			c.Category = crumbs[0]
		}
		if len(crumbs) > 2 {
			c.Subcategory = crumbs[2]
		}
	}
	return c
}

func colorFromDOM(p *Page, sel Selectors) string {
	if sel.Colors == "" {
		return ""
	}
	picked := p.doc.Find(sel.Colors).First()
	if v := attrOr(picked, "data-color", "title", "aria-label"); v != "" {
		return v
	}
	return text(picked)
}
