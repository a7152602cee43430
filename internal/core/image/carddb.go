package image

import (
	"context"
	"errors"

	"cardmarket/internal/platform/carddb"
)

type cardLookup interface {
	Lookup(ctx context.Context, name string) (*carddb.Card, error)
}

// CardDB falls back to the public card database's smallest image.
type CardDB struct {
	client cardLookup
}

func NewCardDB(client cardLookup) *CardDB { return &CardDB{client: client} }

func (c *CardDB) Name() string { return "carddb" }

func (c *CardDB) Lookup(ctx context.Context, cardName string) (string, error) {
	card, err := c.client.Lookup(ctx, cardName)
	if errors.Is(err, carddb.ErrNoCard) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return card.SmallestImage(), nil
}
