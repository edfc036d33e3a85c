package adapters

import (
	"regexp"

	"github.com/outfitly/stylescout/internal/extract"
)

// genericIDRe matches the trailing path segment of common product URL
// shapes: /products/slug, /p/slug, /item/slug.
var genericIDRe = regexp.MustCompile(`/(?:products?|p|item|dp)/([^/?#]+)`)

// Generic is the fallback adapter for brands without a registered adapter.
// It leans on structured data and heuristics; its selector set covers the
// most common storefront markup.
func Generic() Adapter {
	return &base{
		brand: "generic",
		cfg: Config{
			IDPattern: genericIDRe,
			Selectors: extract.Selectors{
				Name:        `h1.product-title, h1.product-name, h1[class*="product"], h1`,
				Price:       `.product-price, .price, [class*="price"]:not([class*="sale"])`,
				SalePrice:   `.sale-price, .price--sale, [class*="sale-price"]`,
				Description: `.product-description, [class*="description"]`,
				Images:      `.product-images img, .product-gallery img, [class*="gallery"] img`,
				Sizes:       `.size-selector button, select[name*="size"] option, [class*="size"] button`,
				Breadcrumbs: `.breadcrumb a, nav[aria-label="breadcrumb"] a, [class*="breadcrumb"] a`,
			},
			UsesJSONLD: true,
		},
	}
}
