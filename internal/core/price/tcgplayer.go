package price

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"golang.org/x/time/rate"

	"cardmarket/internal/config"
	"cardmarket/internal/logger"
	"cardmarket/internal/platform/browser"
)

// Sessions is the borrowing side of the browser manager.
type Sessions interface {
	Acquire(ctx context.Context) (browser.Session, error)
	Release(s browser.Session)
	Discard(s browser.Session)
}

type TCGPlayerOptions struct {
	BaseURL           string
	ProductLine       string
	NavigationTimeout time.Duration
	SelectorTimeout   time.Duration
	Selectors         config.PriceSelectors
	RPS               float64
}

// TCGPlayer reads the market price of the first search result on the
// marketplace's product search page through a headless browser.
type TCGPlayer struct {
	log      *logger.Logger
	sessions Sessions
	opts     TCGPlayerOptions
	limiter  *rate.Limiter
}

func NewTCGPlayer(sessions Sessions, opts TCGPlayerOptions) *TCGPlayer {
	t := &TCGPlayer{log: logger.New("TCGPlayer"), sessions: sessions, opts: opts}
	if opts.RPS > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}
	return t
}

func (t *TCGPlayer) Name() string { return "tcgplayer" }

func (t *TCGPlayer) Lookup(ctx context.Context, term string) (*float64, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	sess, err := t.sessions.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer t.sessions.Release(sess)

	p, err := t.search(sess, term)
	if err != nil {
		if sessionLevel(err) || !sess.IsConnected() {
			t.sessions.Discard(sess)
		}
		if isRetryable(err) {
			return nil, Transient(err)
		}
		return nil, err
	}
	return p, nil
}

// SearchURL builds the product search URL for term.
func (t *TCGPlayer) SearchURL(term string) string {
	q := url.Values{}
	q.Set("productLineName", t.opts.ProductLine)
	q.Set("q", term)
	q.Set("view", "grid")
	return strings.TrimRight(t.opts.BaseURL, "/") + "/search/" + url.PathEscape(t.opts.ProductLine) + "/product?" + q.Encode()
}

func (t *TCGPlayer) search(sess browser.Session, term string) (*float64, error) {
	profile := RandomProfile()
	bctx, err := sess.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:        playwright.String(profile.UserAgent),
		ExtraHttpHeaders: profile.Headers(),
		Viewport:         &playwright.Size{Width: 1280, Height: 800},
	})
	if err != nil {
		return nil, fmt.Errorf("browser context: %w", err)
	}
	defer bctx.Close()

	// prices are text, skip the heavy assets
	if err := bctx.Route("**/*", func(route playwright.Route) {
		switch route.Request().ResourceType() {
		case "image", "stylesheet", "font", "media":
			route.Abort("blockedbyclient")
		default:
			route.Continue()
		}
	}); err != nil {
		t.log.LogDebugf("resource blocking unavailable: %v", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("new page: %w", err)
	}

	searchURL := t.SearchURL(term)
	t.log.Debug().Str("url", searchURL).Msg("price search")
	if _, err := page.Goto(searchURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(t.opts.NavigationTimeout.Milliseconds())),
	}); err != nil {
		return nil, fmt.Errorf("goto failed: %w", err)
	}

	priceSel := strings.Join(t.opts.Selectors.MarketPrice, ", ")
	first := page.Locator(priceSel).First()
	waitErr := first.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(t.opts.SelectorTimeout.Milliseconds())),
	})
	if waitErr != nil {
		if t.noResults(page) {
			return nil, nil
		}
		return nil, fmt.Errorf("market price selector timeout: %w", waitErr)
	}

	text, err := first.TextContent()
	if err != nil {
		return nil, fmt.Errorf("read market price: %w", err)
	}
	return ParsePrice(text), nil
}

func (t *TCGPlayer) noResults(page playwright.Page) bool {
	if len(t.opts.Selectors.NoResults) == 0 {
		return false
	}
	n, err := page.Locator(strings.Join(t.opts.Selectors.NoResults, ", ")).Count()
	return err == nil && n > 0
}

var nonNumeric = regexp.MustCompile(`[^0-9.\-]+`)

// ParsePrice extracts a positive amount from display text such as "$1,234.56".
func ParsePrice(text string) *float64 {
	cleaned := nonNumeric.ReplaceAllString(text, "")
	if cleaned == "" {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return nil
	}
	return &v
}
