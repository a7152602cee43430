package price

import (
	"context"
	"errors"

	"cardmarket/internal/platform/carddb"
)

type cardLookup interface {
	Lookup(ctx context.Context, name string) (*carddb.Card, error)
}

// CardDB is the secondary source: the card database's listed TCGplayer price.
type CardDB struct {
	client cardLookup
}

func NewCardDB(client cardLookup) *CardDB { return &CardDB{client: client} }

func (c *CardDB) Name() string { return "carddb" }

func (c *CardDB) Lookup(ctx context.Context, term string) (*float64, error) {
	card, err := c.client.Lookup(ctx, term)
	if errors.Is(err, carddb.ErrNoCard) {
		return nil, nil
	}
	if err != nil {
		if isRetryable(err) {
			return nil, Transient(err)
		}
		return nil, err
	}
	if v, ok := card.MarketPrice(); ok {
		return &v, nil
	}
	return nil, nil
}
