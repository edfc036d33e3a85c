// Package extract implements the cascading product-extraction pipeline. Each
// strategy is a pure function of the captured page content; the pipeline runs
// them in order and short-circuits on the first non-empty candidate.
package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/outfitly/stylescout/internal/models"
)

// Page is an immutable snapshot of a loaded product page.
type Page struct {
	URL  string
	Host string
	HTML string
	doc  *goquery.Document
}

func NewPage(pageURL, html string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page html: %w", err)
	}
	host := ""
	if u, err := url.Parse(pageURL); err == nil {
		host = u.Host
	}
	return &Page{URL: pageURL, Host: host, HTML: html, doc: doc}, nil
}

func (p *Page) Doc() *goquery.Document {
	return p.doc
}

// Strategy is one extraction attempt. Extract returns nil or an empty
// candidate when the strategy has nothing to offer for this page.
type Strategy struct {
	Name    string
	Extract func(p *Page) *models.Candidate
}

// Run evaluates strategies left to right and returns the first non-empty
// candidate, tagged with the strategy that produced it. Nil means the whole
// cascade came up empty.
func Run(p *Page, strategies []Strategy) *models.Candidate {
	for _, s := range strategies {
		c := s.Extract(p)
		if c.IsEmpty() {
			continue
		}
		c.Source = s.Name
		return c
	}
	return nil
}

// Selectors is the per-brand CSS selector set used by the DOM strategy.
type Selectors struct {
	Name         string
	Price        string
	SalePrice    string
	Description  string
	Images       string
	Sizes        string
	Colors       string
	Availability string
	Breadcrumbs  string
}

func text(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.First().Text())
}
