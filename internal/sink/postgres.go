package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/outfitly/stylescout/internal/models"
)

// PostgresSink syncs accepted products into the catalog database. Upserts by
// (brand, external_id) so re-crawls refresh rather than duplicate.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// Schema reference (managed by the catalog service's migrations):
//
//	scraped_products(brand, external_id, name, description, category,
//	  subcategory, base_price, sale_price, currency, images jsonb,
//	  variants jsonb, materials, tags jsonb, gender, url, scraped_at,
//	  PRIMARY KEY (brand, external_id))
//	scrape_failures(job_id, url, brand, attempts, last_error, failed_at)
func (s *PostgresSink) StoreProduct(ctx context.Context, product *models.ScrapedProduct) error {
	images, err := json.Marshal(product.Images)
	if err != nil {
		return fmt.Errorf("failed to marshal images: %w", err)
	}
	variants, err := json.Marshal(product.Variants)
	if err != nil {
		return fmt.Errorf("failed to marshal variants: %w", err)
	}
	tags, err := json.Marshal(product.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
		INSERT INTO scraped_products
		(brand, external_id, name, description, category, subcategory,
		 base_price, sale_price, currency, images, variants, materials,
		 tags, gender, url, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (brand, external_id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			subcategory = EXCLUDED.subcategory,
			base_price = EXCLUDED.base_price,
			sale_price = EXCLUDED.sale_price,
			currency = EXCLUDED.currency,
			images = EXCLUDED.images,
			variants = EXCLUDED.variants,
			materials = EXCLUDED.materials,
			tags = EXCLUDED.tags,
			gender = EXCLUDED.gender,
			url = EXCLUDED.url,
			scraped_at = EXCLUDED.scraped_at
	`
	_, err = s.pool.Exec(ctx, query,
		product.Brand, product.ExternalID, product.Name, product.Description,
		product.Category, product.Subcategory, product.BasePrice, product.SalePrice,
		product.Currency, images, variants, product.Materials, tags,
		product.Gender, product.URL, product.ScrapedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

func (s *PostgresSink) StoreFailure(ctx context.Context, failure *Failure) error {
	query := `
		INSERT INTO scrape_failures (job_id, url, brand, attempts, last_error, failed_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (job_id) DO UPDATE SET
			attempts = EXCLUDED.attempts,
			last_error = EXCLUDED.last_error,
			failed_at = NOW()
	`
	_, err := s.pool.Exec(ctx, query,
		failure.JobID, failure.URL, failure.Brand, failure.Attempts, failure.LastErr)
	if err != nil {
		return fmt.Errorf("failed to record failure: %w", err)
	}
	return nil
}
