package carddb_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardmarket/internal/platform/carddb"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v7/cardinfo.php" {
			http.NotFound(w, r)
			return
		}
		switch r.URL.Query().Get("name") {
		case "Dark Magician":
			_, _ = w.Write([]byte(`{"data":[{"id":46986414,"name":"Dark Magician",
				"card_images":[{"id":46986414,"image_url":"https://img/dm.jpg","image_url_small":"https://img/dm_small.jpg"}],
				"card_prices":[{"tcgplayer_price":"0.00"},{"tcgplayer_price":"1.49"}]}]}`))
		case "Broken":
			w.WriteHeader(http.StatusBadGateway)
		case "Challenge":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html>Just a moment...</html>`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"No card matching your query was found in the database."}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLookup(t *testing.T) {
	c := carddb.New(newServer(t).URL, 5*time.Second, 0)

	card, err := c.Lookup(context.Background(), " Dark Magician ")
	require.NoError(t, err)
	assert.Equal(t, "https://img/dm_small.jpg", card.SmallestImage())
	p, ok := card.MarketPrice()
	assert.True(t, ok)
	assert.Equal(t, 1.49, p)

	_, err = c.Lookup(context.Background(), "Nope")
	assert.ErrorIs(t, err, carddb.ErrNoCard)

	_, err = c.Lookup(context.Background(), "Broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, carddb.ErrNoCard)
	assert.Contains(t, err.Error(), "502")
}

func TestLookup_NonJSONSuccessIsNotNoCard(t *testing.T) {
	c := carddb.New(newServer(t).URL, 5*time.Second, 0)

	_, err := c.Lookup(context.Background(), "Challenge")
	require.Error(t, err)
	assert.NotErrorIs(t, err, carddb.ErrNoCard)
	assert.Contains(t, err.Error(), "decode card database response")
}

func TestCard_FallsBackToFullImage(t *testing.T) {
	card := carddb.Card{CardImages: []carddb.CardImage{{ImageURL: "https://img/full.jpg"}}}
	assert.Equal(t, "https://img/full.jpg", card.SmallestImage())
	_, ok := card.MarketPrice()
	assert.False(t, ok)
}
