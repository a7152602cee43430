package listing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardmarket/internal/core/listing"
)

// storeContract runs the behaviour every Store implementation must share.
func storeContract(t *testing.T, s listing.Store) {
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"Kuriboh", "Raigeki", "Pot of Greed"} {
		l := &listing.Listing{
			ID:           name,
			Owner:        "u1",
			CardName:     name,
			PostType:     listing.PostTypeSell,
			Condition:    "Near Mint",
			CardImageURL: listing.PlaceholderImageURL,
			IsActive:     i != 2,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		if i == 1 {
			l.Owner = "u2"
		}
		require.NoError(t, s.Create(ctx, l))
	}

	got, err := s.GetByID(ctx, "Kuriboh")
	require.NoError(t, err)
	assert.Equal(t, "Kuriboh", got.CardName)
	assert.Nil(t, got.Price)
	assert.Equal(t, listing.StatusIdle, got.Enrichment.PriceStatus)

	_, err = s.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, listing.ErrNotFound)

	p := 12.34
	api := true
	msg := "no card image found"
	status := listing.Enrichment{PriceStatus: listing.StatusDone, ImageStatus: listing.StatusError, LastError: &msg}
	require.NoError(t, s.UpdateFields(ctx, "Kuriboh", listing.Fields{Price: &p, IsAPIPrice: &api, Enrichment: &status}))

	got, err = s.GetByID(ctx, "Kuriboh")
	require.NoError(t, err)
	require.NotNil(t, got.Price)
	assert.Equal(t, 12.34, *got.Price)
	assert.True(t, got.IsAPIPrice)
	assert.Equal(t, listing.PlaceholderImageURL, got.CardImageURL)
	assert.Equal(t, listing.StatusDone, got.Enrichment.PriceStatus)
	assert.Equal(t, listing.StatusError, got.Enrichment.ImageStatus)
	require.NotNil(t, got.Enrichment.LastError)
	assert.Equal(t, msg, *got.Enrichment.LastError)

	require.NoError(t, s.UpdateFields(ctx, "Kuriboh", listing.Fields{ClearPrice: true}))
	got, err = s.GetByID(ctx, "Kuriboh")
	require.NoError(t, err)
	assert.Nil(t, got.Price)

	assert.ErrorIs(t, s.UpdateFields(ctx, "missing", listing.Fields{ClearPrice: true}), listing.ErrNotFound)

	active, err := s.List(ctx, listing.Filter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "Raigeki", active[0].ID)
	assert.Equal(t, "Kuriboh", active[1].ID)

	mine, err := s.List(ctx, listing.Filter{Owner: "u1"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	limited, err := s.List(ctx, listing.Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "Pot of Greed", limited[0].ID)

	require.NoError(t, s.Delete(ctx, "Raigeki"))
	assert.ErrorIs(t, s.Delete(ctx, "Raigeki"), listing.ErrNotFound)
	require.NoError(t, s.Ping(ctx))
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, listing.NewMemoryStore())
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := listing.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &listing.Listing{ID: "a", CardName: "Kuriboh"}))

	got, err := s.GetByID(ctx, "a")
	require.NoError(t, err)
	got.CardName = "mutated"

	again, err := s.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Kuriboh", again.CardName)
}
