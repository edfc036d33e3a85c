package adapters

import (
	"encoding/json"
	"regexp"

	"github.com/outfitly/stylescout/internal/extract"
	"github.com/outfitly/stylescout/internal/models"
)

var everlaneIDRe = regexp.MustCompile(`/products/([^/?#]+)`)

// Everlane renders product pages through Next.js; the page state global
// carries a richer product payload than the DOM, including per-variant
// stock. The JSON-state strategy sits right after JSON-LD, which Everlane
// ships inconsistently.
func Everlane() Adapter {
	return &everlane{base{
		brand: "everlane",
		cfg: Config{
			BaseURL:   "https://www.everlane.com",
			IDPattern: everlaneIDRe,
			Selectors: extract.Selectors{
				Name:        `h1[data-testid="product-name"]`,
				Price:       `span[data-testid="product-price"]`,
				SalePrice:   `span[data-testid="product-sale-price"]`,
				Description: `div[data-testid="product-details"] p`,
				Images:      `div[data-testid="product-gallery"] img`,
				Sizes:       `button[data-testid^="size-"]`,
				Colors:      `button[aria-pressed="true"][data-testid^="color-"]`,
				Breadcrumbs: `nav[aria-label="Breadcrumb"] a`,
			},
			HasAjaxLoading: true,
			HasLazyImages:  true,
			UsesJSONLD:     true,
		},
	}}
}

type everlane struct {
	base
}

func (e *everlane) Strategies() []extract.Strategy {
	jsonState := extract.ScriptJSONState("everlane-next-data", "script#__NEXT_DATA__", parseEverlaneState)
	cascade := defaultCascade(e.cfg)
	// after JSON-LD, before microdata
	out := make([]extract.Strategy, 0, len(cascade)+1)
	out = append(out, cascade[0], jsonState)
	out = append(out, cascade[1:]...)
	return out
}

// everlaneState mirrors the slice of __NEXT_DATA__ this adapter depends on.
// Coupled to Everlane's current front end; a redesign empties it and the
// cascade falls through to the DOM strategies.
type everlaneState struct {
	Props struct {
		PageProps struct {
			Product struct {
				Permalink   string `json:"permalink"`
				DisplayName string `json:"displayName"`
				Details     string `json:"details"`
				Price       string `json:"price"`
				SalePrice   string `json:"salePrice"`
				Currency    string `json:"currency"`
				Category    string `json:"category"`
				Gender      string `json:"gender"`
				Albums      []struct {
					Src string `json:"src"`
					Alt string `json:"alt"`
				} `json:"albums"`
				Variants []struct {
					Color     string `json:"color"`
					Size      string `json:"size"`
					SKU       string `json:"sku"`
					Orderable bool   `json:"orderable"`
					Quantity  int    `json:"quantity"`
				} `json:"variants"`
			} `json:"product"`
		} `json:"pageProps"`
	} `json:"props"`
}

func parseEverlaneState(raw []byte) *models.Candidate {
	var state everlaneState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil
	}
	product := state.Props.PageProps.Product
	if product.DisplayName == "" {
		return nil
	}

	c := &models.Candidate{
		ExternalID:  product.Permalink,
		Name:        product.DisplayName,
		Description: product.Details,
		Price:       product.Price,
		SalePrice:   product.SalePrice,
		Currency:    product.Currency,
		Category:    product.Category,
		Gender:      product.Gender,
	}
	for _, album := range product.Albums {
		c.Images = append(c.Images, models.Image{URL: album.Src, Alt: album.Alt})
	}
	for _, v := range product.Variants {
		c.Variants = append(c.Variants, models.Variant{
			Color:         v.Color,
			Size:          v.Size,
			SKU:           v.SKU,
			Available:     v.Orderable,
			StockQuantity: v.Quantity,
		})
	}
	return c
}
