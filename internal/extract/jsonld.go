package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/outfitly/stylescout/internal/models"
)

// JSONLD extracts schema.org Product blocks embedded as
// script[type="application/ld+json"]. Handles top-level objects, arrays and
// @graph containers; the first Product node wins.
func JSONLD() Strategy {
	return Strategy{Name: "jsonld", Extract: extractJSONLD}
}

func extractJSONLD(p *Page) *models.Candidate {
	var candidate *models.Candidate
	p.doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		var raw interface{}
		if err := json.Unmarshal([]byte(sel.Text()), &raw); err != nil {
			return true
		}
		if node := findProductNode(raw); node != nil {
			candidate = productFromJSONLD(node)
			return false
		}
		return true
	})
	return candidate
}

// findProductNode walks a decoded JSON-LD value looking for a node typed as
// a schema.org Product.
func findProductNode(raw interface{}) map[string]interface{} {
	switch v := raw.(type) {
	case map[string]interface{}:
		if isProductType(v["@type"]) {
			return v
		}
		if graph, ok := v["@graph"].([]interface{}); ok {
			return findProductNode(graph)
		}
	case []interface{}:
		for _, item := range v {
			if node := findProductNode(item); node != nil {
				return node
			}
		}
	}
	return nil
}

func isProductType(t interface{}) bool {
	switch v := t.(type) {
	case string:
		return strings.EqualFold(v, "Product")
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.EqualFold(s, "Product") {
				return true
			}
		}
	}
	return false
}

func productFromJSONLD(node map[string]interface{}) *models.Candidate {
	c := &models.Candidate{
		Name:        jsonString(node["name"]),
		Description: jsonString(node["description"]),
		Category:    jsonString(node["category"]),
	}

	if c.ExternalID = jsonString(node["sku"]); c.ExternalID == "" {
		c.ExternalID = jsonString(node["productID"])
	}

	switch brand := node["brand"].(type) {
	case string:
		c.Brand = brand
	case map[string]interface{}:
		c.Brand = jsonString(brand["name"])
	}

	for _, img := range jsonImages(node["image"]) {
		c.Images = append(c.Images, models.Image{URL: img})
	}

	price, currency := jsonOffer(node["offers"])
	c.Price = price
	c.Currency = currency

	if material := jsonString(node["material"]); material != "" {
		c.Materials = material
	}
	return c
}

// jsonOffer pulls price and currency out of an offers value, which may be a
// single Offer, an AggregateOffer (lowPrice) or an array of offers.
func jsonOffer(raw interface{}) (price, currency string) {
	switch v := raw.(type) {
	case map[string]interface{}:
		price = jsonString(v["price"])
		if price == "" {
			price = jsonString(v["lowPrice"])
		}
		currency = jsonString(v["priceCurrency"])
		return price, currency
	case []interface{}:
		for _, item := range v {
			if p, cur := jsonOffer(item); p != "" {
				return p, cur
			}
		}
	}
	return "", ""
}

func jsonImages(raw interface{}) []string {
	switch v := raw.(type) {
	case string:
		return []string{v}
	case map[string]interface{}:
		if u := jsonString(v["url"]); u != "" {
			return []string{u}
		}
	case []interface{}:
		var out []string
		for _, item := range v {
			out = append(out, jsonImages(item)...)
		}
		return out
	}
	return nil
}

// jsonString renders scalar JSON values to strings; numbers keep their
// natural formatting so the normalizer can parse them as prices.
func jsonString(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	}
	return ""
}
