// Package normalize coerces raw extraction candidates into the canonical
// product schema and rejects records that fail the required-field
// invariants. Rejection is terminal: re-scraping the same page cannot fix a
// data-quality failure.
package normalize

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/outfitly/stylescout/internal/adapters"
	"github.com/outfitly/stylescout/internal/models"
)

// RejectError marks a validation rejection. Callers treat it as a terminal
// failure, distinct from recoverable extraction errors.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string {
	return "product rejected: " + e.Reason
}

const defaultCurrency = "USD"

// Validate turns a candidate into a ScrapedProduct or rejects it. Required:
// non-empty name and a parseable positive base price. Missing optional
// fields get safe defaults; the external id is derived from the URL when the
// extraction did not supply one.
func Validate(c *models.Candidate, sourceURL string, adapter adapters.Adapter) (*models.ScrapedProduct, error) {
	if c == nil {
		return nil, &RejectError{Reason: "no extraction candidate"}
	}

	name := strings.TrimSpace(c.Name)
	if name == "" {
		return nil, &RejectError{Reason: "empty product name"}
	}

	basePrice, currency, err := ParsePrice(c.Price)
	if err != nil || basePrice <= 0 {
		return nil, &RejectError{Reason: fmt.Sprintf("unparseable or non-positive price %q", c.Price)}
	}
	if c.Currency != "" {
		currency = normalizeCurrency(c.Currency)
	}
	if currency == "" {
		currency = defaultCurrency
	}

	product := &models.ScrapedProduct{
		Name:        name,
		Description: strings.TrimSpace(c.Description),
		Category:    strings.TrimSpace(c.Category),
		Subcategory: strings.TrimSpace(c.Subcategory),
		BasePrice:   basePrice,
		Currency:    currency,
		Images:      c.Images,
		Variants:    c.Variants,
		Materials:   strings.TrimSpace(c.Materials),
		Tags:        c.Tags,
		Gender:      strings.TrimSpace(c.Gender),
		URL:         sourceURL,
		ScrapedAt:   time.Now(),
	}
	if product.Images == nil {
		product.Images = []models.Image{}
	}
	if product.Variants == nil {
		product.Variants = []models.Variant{}
	}
	if product.Tags == nil {
		product.Tags = []string{}
	}

	if sale, _, err := ParsePrice(c.SalePrice); err == nil && sale > 0 && sale < basePrice {
		product.SalePrice = &sale
	}

	// A brand-specific adapter's declared brand always beats whatever text
	// the page offered; only the generic adapter trusts detected brand.
	if adapter != nil && adapter.Brand() != "generic" {
		product.Brand = adapter.Brand()
	} else {
		product.Brand = strings.TrimSpace(c.Brand)
		if product.Brand == "" {
			product.Brand = brandFromHost(sourceURL)
		}
	}

	product.ExternalID = strings.TrimSpace(c.ExternalID)
	if product.ExternalID == "" {
		product.ExternalID = deriveExternalID(sourceURL, adapter)
	}

	return product, nil
}

// deriveExternalID applies the adapter's URL pattern, falling back to the
// last path segment and finally a generated id.
func deriveExternalID(sourceURL string, adapter adapters.Adapter) string {
	if adapter != nil {
		if re := adapter.Config().IDPattern; re != nil {
			if m := re.FindStringSubmatch(sourceURL); len(m) > 1 {
				return m[1]
			}
		}
	}
	if u, err := url.Parse(sourceURL); err == nil {
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		if last := segments[len(segments)-1]; last != "" {
			return last
		}
	}
	return "scraped-" + uuid.New().String()
}

func brandFromHost(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(u.Host, "www.")
	if i := strings.Index(host, "."); i > 0 {
		host = host[:i]
	}
	if host == "" {
		return ""
	}
	return strings.ToUpper(host[:1]) + host[1:]
}

var (
	priceNumRe      = regexp.MustCompile(`\d[\d.,]*`)
	priceSymbolRe   = regexp.MustCompile(`[$€£¥]|USD|EUR|GBP|JPY`)
	errNoPrice      = fmt.Errorf("no numeric price found")
	symbolCurrency  = map[string]string{"$": "USD", "€": "EUR", "£": "GBP", "¥": "JPY"}
)

// ParsePrice parses a rendered price string into integer minor-currency
// units, handling both "1,299.00" and "1.299,00" digit grouping plus an
// optional currency marker. Returns the detected currency code when the
// string carried one.
func ParsePrice(raw string) (int64, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, "", errNoPrice
	}

	currency := ""
	if sym := priceSymbolRe.FindString(raw); sym != "" {
		if code, ok := symbolCurrency[sym]; ok {
			currency = code
		} else {
			currency = sym
		}
	}

	num := priceNumRe.FindString(raw)
	if num == "" {
		return 0, currency, errNoPrice
	}

	major, minor := splitDecimal(num)
	value, err := strconv.ParseInt(major, 10, 64)
	if err != nil {
		return 0, currency, fmt.Errorf("failed to parse price %q: %w", raw, err)
	}
	cents := value * 100
	if minor != "" {
		if len(minor) == 1 {
			minor += "0"
		}
		m, err := strconv.ParseInt(minor[:2], 10, 64)
		if err != nil {
			return 0, currency, fmt.Errorf("failed to parse price %q: %w", raw, err)
		}
		cents += m
	}
	return cents, currency, nil
}

// splitDecimal separates integer digits from decimal digits, inferring which
// of '.' and ',' is the decimal separator: when both appear the later one
// is; a lone separator followed by exactly two digits is decimal, otherwise
// it is digit grouping.
func splitDecimal(num string) (major, minor string) {
	lastDot := strings.LastIndex(num, ".")
	lastComma := strings.LastIndex(num, ",")

	sep := -1
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			sep = lastDot
		} else {
			sep = lastComma
		}
	case lastDot >= 0:
		if len(num)-lastDot-1 <= 2 {
			sep = lastDot
		}
	case lastComma >= 0:
		if len(num)-lastComma-1 <= 2 {
			sep = lastComma
		}
	}

	if sep < 0 {
		return stripSeparators(num), ""
	}
	return stripSeparators(num[:sep]), stripSeparators(num[sep+1:])
}

func stripSeparators(s string) string {
	s = strings.ReplaceAll(s, ".", "")
	return strings.ReplaceAll(s, ",", "")
}

func normalizeCurrency(raw string) string {
	raw = strings.TrimSpace(raw)
	if code, ok := symbolCurrency[raw]; ok {
		return code
	}
	if len(raw) == 3 {
		return strings.ToUpper(raw)
	}
	return ""
}
