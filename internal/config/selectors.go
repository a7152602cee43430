package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Selectors are the DOM hooks the scrapers depend on. Third-party markup changes
// without notice, so they live in configuration rather than code.
type Selectors struct {
	Price PriceSelectors `yaml:"price"`
	Wiki  WikiSelectors  `yaml:"wiki"`
}

type PriceSelectors struct {
	// MarketPrice is tried as a CSS selector list; the first match wins.
	MarketPrice []string `yaml:"market_price"`
	// NoResults marks a search page that loaded fine but matched nothing.
	NoResults []string `yaml:"no_results"`
}

type WikiSelectors struct {
	CardImage    []string `yaml:"card_image"`
	PreviewImage []string `yaml:"preview_image"`
}

func DefaultSelectors() Selectors {
	return Selectors{
		Price: PriceSelectors{
			MarketPrice: []string{
				"span.product-card__market-price--value",
				".product-card__market-price--value",
			},
			NoResults: []string{
				".blank-slate",
				".search-results__no-results",
			},
		},
		Wiki: WikiSelectors{
			CardImage: []string{
				"td.cardtable-cardimage a img",
				"td.cardtable-cardimage img",
			},
			PreviewImage: []string{
				`meta[property="og:image"]`,
			},
		},
	}
}

// LoadSelectors reads a YAML selector file over the defaults. Lists present in the
// file replace the default list; omitted lists keep it. An empty path yields defaults.
func LoadSelectors(path string) (Selectors, error) {
	sel := DefaultSelectors()
	if path == "" {
		return sel, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return sel, fmt.Errorf("read selectors: %w", err)
	}
	var override Selectors
	if err := yaml.Unmarshal(b, &override); err != nil {
		return sel, fmt.Errorf("parse selectors %s: %w", path, err)
	}
	merge(&sel.Price.MarketPrice, override.Price.MarketPrice)
	merge(&sel.Price.NoResults, override.Price.NoResults)
	merge(&sel.Wiki.CardImage, override.Wiki.CardImage)
	merge(&sel.Wiki.PreviewImage, override.Wiki.PreviewImage)
	return sel, nil
}

func merge(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = src
	}
}
