package image

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly"
	"golang.org/x/time/rate"

	"cardmarket/internal/config"
	"cardmarket/internal/logger"
)

const wikiUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

type WikiOptions struct {
	BaseURL     string
	TargetWidth int
	Timeout     time.Duration
	Selectors   config.WikiSelectors
	RPS         float64
}

// Wiki reads the card-table image from a card's wiki page.
type Wiki struct {
	log     *logger.Logger
	opts    WikiOptions
	origin  string
	limiter *rate.Limiter
}

func NewWiki(opts WikiOptions) *Wiki {
	w := &Wiki{log: logger.New("WikiImage"), opts: opts, origin: originOf(opts.BaseURL)}
	if opts.RPS > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}
	return w
}

func (w *Wiki) Name() string { return "wiki" }

// PageTitle is the wiki title for a card name: spaces become underscores.
func PageTitle(cardName string) string {
	return strings.ReplaceAll(strings.TrimSpace(cardName), " ", "_")
}

// PageURLs returns the canonical article URL and the index.php form of it.
func (w *Wiki) PageURLs(cardName string) (primary, alternate string) {
	title := PageTitle(cardName)
	base := strings.TrimRight(w.opts.BaseURL, "/")
	return base + "/wiki/" + url.PathEscape(title), base + "/index.php?title=" + url.QueryEscape(title)
}

func (w *Wiki) Lookup(ctx context.Context, cardName string) (string, error) {
	primary, alternate := w.PageURLs(cardName)
	body, err := w.fetch(ctx, primary)
	if err != nil {
		w.log.LogDebugf("wiki page %s failed (%v), trying %s", primary, err, alternate)
		body, err = w.fetch(ctx, alternate)
		if err != nil {
			return "", fmt.Errorf("wiki page for %q: %w", cardName, err)
		}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse wiki page: %w", err)
	}
	return w.Normalize(w.extract(doc)), nil
}

func (w *Wiki) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := colly.NewCollector(colly.UserAgent(wikiUserAgent), colly.AllowURLRevisit())
	if w.opts.Timeout > 0 {
		c.SetRequestTimeout(w.opts.Timeout)
	}
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Referer", strings.TrimRight(w.opts.BaseURL, "/")+"/")
	})

	var body []byte
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	if err := c.Visit(pageURL); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("empty response from %s", pageURL)
	}
	return body, nil
}

func (w *Wiki) extract(doc *goquery.Document) string {
	for _, sel := range w.opts.Selectors.CardImage {
		img := doc.Find(sel).First()
		if img.Length() == 0 {
			continue
		}
		if srcset, ok := img.Attr("srcset"); ok {
			if u := PickSrcset(srcset, w.opts.TargetWidth); u != "" {
				return u
			}
		}
		for _, attr := range []string{"src", "data-src"} {
			if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" {
				return v
			}
		}
	}
	for _, sel := range w.opts.Selectors.PreviewImage {
		if v := strings.TrimSpace(doc.Find(sel).First().AttrOr("content", "")); v != "" {
			return v
		}
	}
	return ""
}

type srcsetEntry struct {
	url   string
	width float64
}

// PickSrcset chooses from a srcset value: the entry at targetWidth (a "300w"
// descriptor or a "/300px-" thumbnail path), else the widest declared entry,
// else the first.
func PickSrcset(srcset string, targetWidth int) string {
	var entries []srcsetEntry
	for _, part := range strings.Split(srcset, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		e := srcsetEntry{url: fields[0]}
		if len(fields) > 1 {
			d := fields[1]
			if n, err := strconv.ParseFloat(strings.TrimRight(d, "wx"), 64); err == nil {
				if strings.HasSuffix(d, "w") {
					e.width = n
				} else if strings.HasSuffix(d, "x") {
					// density descriptors only rank relative to each other
					e.width = n / 1000
				}
			}
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return ""
	}
	if targetWidth > 0 {
		marker := "/" + strconv.Itoa(targetWidth) + "px-"
		for _, e := range entries {
			if e.width == float64(targetWidth) || strings.Contains(e.url, marker) {
				return e.url
			}
		}
	}
	ranked := append([]srcsetEntry(nil), entries...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].width > ranked[j].width })
	if ranked[0].width > 0 {
		return ranked[0].url
	}
	return entries[0].url
}

// Normalize makes protocol- and root-relative image URLs absolute.
func (w *Wiki) Normalize(raw string) string {
	return NormalizeURL(raw, w.origin)
}

func NormalizeURL(raw, origin string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return ""
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.HasPrefix(raw, "/"):
		return strings.TrimRight(origin, "/") + raw
	}
	return raw
}

func originOf(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return strings.TrimRight(base, "/")
	}
	return u.Scheme + "://" + u.Host
}
