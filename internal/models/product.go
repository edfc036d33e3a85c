package models

import (
	"time"
)

// ScrapedProduct is the canonical output of a successful crawl. Prices are
// integer minor-currency units (cents) to avoid float drift downstream.
type ScrapedProduct struct {
	ExternalID       string    `json:"external_id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Brand            string    `json:"brand"`
	Category         string    `json:"category"`
	Subcategory      string    `json:"subcategory,omitempty"`
	BasePrice        int64     `json:"base_price"`
	SalePrice        *int64    `json:"sale_price,omitempty"`
	Currency         string    `json:"currency"`
	Images           []Image   `json:"images"`
	Variants         []Variant `json:"variants"`
	Materials        string    `json:"materials,omitempty"`
	CareInstructions string    `json:"care_instructions,omitempty"`
	Tags             []string  `json:"tags"`
	Gender           string    `json:"gender,omitempty"`
	Season           string    `json:"season,omitempty"`
	URL              string    `json:"url"`
	ScrapedAt        time.Time `json:"scraped_at"`
}

type Image struct {
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

type Variant struct {
	Color         string `json:"color"`
	Size          string `json:"size"`
	SKU           string `json:"sku"`
	Available     bool   `json:"available"`
	StockQuantity int    `json:"stock_quantity"`
	Price         *int64 `json:"price,omitempty"`
}

// Candidate holds raw fields pulled out of a page by one extraction strategy
// before normalization. String prices because sites render them every which
// way; the normalizer owns parsing.
type Candidate struct {
	ExternalID  string
	Name        string
	Description string
	Brand       string
	Category    string
	Subcategory string
	Price       string
	SalePrice   string
	Currency    string
	Images      []Image
	Variants    []Variant
	Materials   string
	Tags        []string
	Gender      string
	Source      string
}

// IsEmpty reports whether the candidate carries nothing worth keeping. A name
// or a price is enough to short-circuit the cascade.
func (c *Candidate) IsEmpty() bool {
	if c == nil {
		return true
	}
	return c.Name == "" && c.Price == ""
}
