package carddb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"cardmarket/internal/logger"
)

// ErrNoCard is returned when the database has no card by that name.
var ErrNoCard = errors.New("card not found in card database")

type CardImage struct {
	ID            int64  `json:"id"`
	ImageURL      string `json:"image_url"`
	ImageURLSmall string `json:"image_url_small"`
}

type CardPrice struct {
	TCGPlayerPrice  string `json:"tcgplayer_price"`
	CardmarketPrice string `json:"cardmarket_price"`
	EbayPrice       string `json:"ebay_price"`
}

type Card struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	CardImages []CardImage `json:"card_images"`
	CardPrices []CardPrice `json:"card_prices"`
}

type cardInfoResponse struct {
	Data  []Card `json:"data"`
	Error string `json:"error"`
}

// Client talks to the public YGOPRODeck card database.
type Client struct {
	log     *logger.Logger
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

func New(baseURL string, timeout time.Duration, rps float64) *Client {
	c := &Client{
		log:     logger.New("CardDB"),
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
	if rps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return c
}

// Lookup returns the first card matching name exactly.
func (c *Client) Lookup(ctx context.Context, name string) (*Card, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	u := c.baseURL + "/api/v7/cardinfo.php?name=" + url.QueryEscape(strings.TrimSpace(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("card database request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read card database response: %w", err)
	}

	var parsed cardInfoResponse
	// an unknown name comes back as 400 with an error message
	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		_ = json.Unmarshal(body, &parsed)
		c.log.LogDebugf("no card %q: %s", name, parsed.Error)
		return nil, ErrNoCard
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("card database returned status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode card database response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, ErrNoCard
	}
	return &parsed.Data[0], nil
}

// SmallestImage prefers the small rendition and falls back to the full one.
func (c *Card) SmallestImage() string {
	for _, img := range c.CardImages {
		if img.ImageURLSmall != "" {
			return img.ImageURLSmall
		}
	}
	for _, img := range c.CardImages {
		if img.ImageURL != "" {
			return img.ImageURL
		}
	}
	return ""
}

// MarketPrice returns the first positive TCGplayer price.
func (c *Card) MarketPrice() (float64, bool) {
	for _, p := range c.CardPrices {
		v, err := strconv.ParseFloat(strings.TrimSpace(p.TCGPlayerPrice), 64)
		if err == nil && v > 0 {
			return v, true
		}
	}
	return 0, false
}
