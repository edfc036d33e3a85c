package adapters

import (
	"context"
	"regexp"

	"github.com/outfitly/stylescout/internal/extract"
	"github.com/playwright-community/playwright-go"
)

// Zara product URLs end in -p<numeric id>.html.
var zaraIDRe = regexp.MustCompile(`-p(\d+)\.html`)

// Zara lazy-loads the whole gallery and renders prices client-side, so the
// page needs a full scroll pass and a settle before capture.
func Zara() Adapter {
	return &zara{base{
		brand: "zara",
		cfg: Config{
			BaseURL:   "https://www.zara.com",
			IDPattern: zaraIDRe,
			Selectors: extract.Selectors{
				Name:        `h1.product-detail-info__header-name`,
				Price:       `.product-detail-info__price .money-amount__main`,
				SalePrice:   `.product-detail-info__price .price-current--discounted .money-amount__main`,
				Description: `.expandable-text__inner-content p`,
				Images:      `.product-detail-images__image img`,
				Sizes:       `.size-selector__size-list button`,
				Colors:      `.product-detail-color-selector__color--selected`,
				Breadcrumbs: `.layout-breadcrumb__item a`,
			},
			RequiresScrolling: true,
			HasLazyImages:     true,
			HasSizeChart:      true,
		},
	}}
}

type zara struct {
	base
}

// PreparePage adds an extra settle after scrolling; the size selector mounts
// late and the base wait on the name selector is not enough.
func (z *zara) PreparePage(ctx context.Context, page playwright.Page) error {
	if err := z.base.PreparePage(ctx, page); err != nil {
		return err
	}
	waitForSelector(page, z.cfg.Selectors.Sizes, 4000)
	return settle(ctx, page, 800)
}

