package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outfitly/stylescout/internal/models"
)

type explodingSink struct{}

func (explodingSink) StoreProduct(ctx context.Context, product *models.ScrapedProduct) error {
	return errors.New("wire severed")
}

func (explodingSink) StoreFailure(ctx context.Context, failure *Failure) error {
	return errors.New("wire severed")
}

func TestMemorySinkCollectsOutcomes(t *testing.T) {
	s := NewMemorySink()
	ctx := context.Background()

	require.NoError(t, s.StoreProduct(ctx, &models.ScrapedProduct{Name: "Tee"}))
	require.NoError(t, s.StoreFailure(ctx, &Failure{JobID: "j1", LastErr: "boom"}))

	products := s.Products()
	require.Len(t, products, 1)
	assert.Equal(t, "Tee", products[0].Name)

	failures := s.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "j1", failures[0].JobID)
}

func TestMultiSinkFansOutToEverySink(t *testing.T) {
	a, b := NewMemorySink(), NewMemorySink()
	multi := NewMultiSink(a, b)
	ctx := context.Background()

	require.NoError(t, multi.StoreProduct(ctx, &models.ScrapedProduct{Name: "Coat"}))
	assert.Len(t, a.Products(), 1)
	assert.Len(t, b.Products(), 1)

	require.NoError(t, multi.StoreFailure(ctx, &Failure{JobID: "j2"}))
	assert.Len(t, a.Failures(), 1)
	assert.Len(t, b.Failures(), 1)
}

func TestMultiSinkAttemptsAllDespiteErrors(t *testing.T) {
	healthy := NewMemorySink()
	multi := NewMultiSink(explodingSink{}, healthy)
	ctx := context.Background()

	err := multi.StoreProduct(ctx, &models.ScrapedProduct{Name: "Scarf"})
	assert.Error(t, err, "first sink's error surfaces")
	assert.Len(t, healthy.Products(), 1, "later sinks still receive the write")
}
