// Package adapters holds per-brand scraping configuration: selectors,
// page-preparation hooks and extraction-strategy overrides. One adapter
// instance per brand, registered at construction.
package adapters

import (
	"context"
	"regexp"

	"github.com/outfitly/stylescout/internal/extract"
	"github.com/playwright-community/playwright-go"
)

// Config is the static, immutable description of how a brand's product pages
// are laid out and how they behave.
type Config struct {
	BaseURL   string
	Selectors extract.Selectors

	// IDPattern derives the external product id from a page URL; the first
	// capture group is the id.
	IDPattern *regexp.Regexp

	HasAjaxLoading    bool
	RequiresScrolling bool
	HasLazyImages     bool
	UsesJSONLD        bool
	HasSizeChart      bool
}

// Adapter binds a brand to its extraction behavior. PreparePage runs against
// the live page before content capture (scrolling, waits); Strategies is the
// ordered extraction cascade evaluated against the captured content.
type Adapter interface {
	Brand() string
	Config() Config
	PreparePage(ctx context.Context, page playwright.Page) error
	Strategies() []extract.Strategy
}

// base provides flag-driven page preparation shared by all adapters.
type base struct {
	brand string
	cfg   Config
}

func (b *base) Brand() string  { return b.brand }
func (b *base) Config() Config { return b.cfg }

// PreparePage applies the hooks the config flags call for: scroll to trigger
// lazy loads, wait for the product name to render, settle for AJAX content.
func (b *base) PreparePage(ctx context.Context, page playwright.Page) error {
	if b.cfg.RequiresScrolling || b.cfg.HasLazyImages {
		if err := scrollThroughPage(ctx, page); err != nil {
			return err
		}
	}
	if sel := b.cfg.Selectors.Name; sel != "" {
		waitForSelector(page, sel, 5000)
	}
	if b.cfg.HasAjaxLoading {
		if err := settle(ctx, page, 1500); err != nil {
			return err
		}
	}
	return nil
}

// defaultCascade is the standard strategy order: structured data, microdata,
// social meta, configured selectors, then heuristics. Brand adapters that
// parse in-page JSON state insert their strategy after the structured-data
// step.
func defaultCascade(cfg Config) []extract.Strategy {
	return []extract.Strategy{
		extract.JSONLD(),
		extract.Microdata(),
		extract.OpenGraph(),
		extract.DOM(cfg.Selectors),
		extract.Heuristic(),
	}
}

func (b *base) Strategies() []extract.Strategy {
	return defaultCascade(b.cfg)
}
