package price_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardmarket/internal/core/price"
	"cardmarket/internal/platform/browser"
	"cardmarket/internal/platform/carddb"
)

func TestTCGPlayer_SearchURL(t *testing.T) {
	src := price.NewTCGPlayer(nil, price.TCGPlayerOptions{BaseURL: "https://www.tcgplayer.com/", ProductLine: "yugioh"})

	u, err := url.Parse(src.SearchURL("Hi Speedroid Cork"))
	require.NoError(t, err)
	assert.Equal(t, "/search/yugioh/product", u.Path)
	assert.Equal(t, "Hi Speedroid Cork", u.Query().Get("q"))
	assert.Equal(t, "yugioh", u.Query().Get("productLineName"))
	assert.Equal(t, "grid", u.Query().Get("view"))
}

type noSessions struct{ err error }

func (n noSessions) Acquire(context.Context) (browser.Session, error) { return nil, n.err }
func (noSessions) Release(browser.Session)                            {}
func (noSessions) Discard(browser.Session)                            {}

// failingSession fails every NewContext with err.
type failingSession struct {
	err       error
	connected bool
}

func (f *failingSession) NewContext(...playwright.BrowserNewContextOptions) (playwright.BrowserContext, error) {
	return nil, f.err
}

func (f *failingSession) IsConnected() bool { return f.connected }

type recordingSessions struct {
	sess      *failingSession
	released  int
	discarded int
}

func (r *recordingSessions) Acquire(context.Context) (browser.Session, error) { return r.sess, nil }
func (r *recordingSessions) Release(browser.Session)                          { r.released++ }
func (r *recordingSessions) Discard(browser.Session)                          { r.discarded++ }

func TestTCGPlayer_SessionFailures(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		connected   bool
		wantDiscard bool
		wantRetry   bool
	}{
		{name: "browser gone", err: errors.New("target closed"), connected: true, wantDiscard: true, wantRetry: true},
		{name: "disconnected session", err: errors.New("context creation failed"), connected: false, wantDiscard: true},
		{name: "network error on live session", err: errors.New("net::ERR_NAME_NOT_RESOLVED"), connected: true, wantRetry: true},
		{name: "page protocol error", err: errors.New("Protocol error (Page.navigate): Cannot navigate to invalid URL"), connected: true, wantRetry: true},
		{name: "bad selector", err: errors.New("invalid selector"), connected: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &recordingSessions{sess: &failingSession{err: tt.err, connected: tt.connected}}
			src := price.NewTCGPlayer(sessions, price.TCGPlayerOptions{BaseURL: "https://x", ProductLine: "yugioh"})

			p, err := src.Lookup(context.Background(), "Kuriboh")
			require.Error(t, err)
			assert.Nil(t, p)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, sessions.released)
			if tt.wantDiscard {
				assert.Equal(t, 1, sessions.discarded)
			} else {
				assert.Zero(t, sessions.discarded)
			}
			if tt.wantRetry {
				assert.ErrorIs(t, err, price.ErrTransient)
			} else {
				assert.NotErrorIs(t, err, price.ErrTransient)
			}
		})
	}
}

func TestTCGPlayer_SessionUnavailablePassesThrough(t *testing.T) {
	unavailable := errors.Join(browser.ErrSessionUnavailable, errors.New("no chromium"))
	src := price.NewTCGPlayer(noSessions{err: unavailable}, price.TCGPlayerOptions{BaseURL: "https://x", ProductLine: "yugioh"})

	_, err := src.Lookup(context.Background(), "Kuriboh")
	assert.ErrorIs(t, err, browser.ErrSessionUnavailable)
	assert.NotErrorIs(t, err, price.ErrTransient)
}

func TestCardDBSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("name") {
		case "Ash Blossom":
			_, _ = w.Write([]byte(`{"data":[{"name":"Ash Blossom","card_prices":[{"tcgplayer_price":"4.10"}]}]}`))
		case "Unpriced":
			_, _ = w.Write([]byte(`{"data":[{"name":"Unpriced","card_prices":[{"tcgplayer_price":"0"}]}]}`))
		case "Overloaded":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()
	src := price.NewCardDB(carddb.New(srv.URL, 5*time.Second, 0))

	p, err := src.Lookup(context.Background(), "Ash Blossom")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 4.10, *p)

	p, err = src.Lookup(context.Background(), "Unpriced")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = src.Lookup(context.Background(), "ash blossom")
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = src.Lookup(context.Background(), "Overloaded")
	assert.ErrorIs(t, err, price.ErrTransient)
}

func TestTransientClassification(t *testing.T) {
	err := price.Transient(errors.New("net::ERR_TIMED_OUT"))
	assert.ErrorIs(t, err, price.ErrTransient)
	assert.Same(t, err, price.Transient(err))
	assert.Nil(t, price.Transient(nil))
}
