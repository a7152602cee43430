package image_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardmarket/internal/config"
	"cardmarket/internal/core/image"
)

const cardTablePage = `<html><head>
<meta property="og:image" content="https://ms.yugipedia.com/og.png">
</head><body><table><tr>
<td class="cardtable-cardimage"><a href="/wiki/File:BEWD.png"><img
  src="/thumbs/200px-BEWD.png"
  srcset="//ms.yugipedia.com/thumb/a/ab/BEWD.png/450px-BEWD.png 1.5x, //ms.yugipedia.com/thumb/a/ab/BEWD.png/300px-BEWD.png 1x"></a></td>
</tr></table></body></html>`

func newWiki(baseURL string) *image.Wiki {
	return image.NewWiki(image.WikiOptions{
		BaseURL:     baseURL,
		TargetWidth: 300,
		Timeout:     5 * time.Second,
		Selectors:   config.DefaultSelectors().Wiki,
	})
}

func TestWikiLookup_PrefersTargetWidthThumbnail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wiki/Blue-Eyes_White_Dragon" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(cardTablePage))
	}))
	defer srv.Close()

	url, err := newWiki(srv.URL).Lookup(context.Background(), "Blue-Eyes White Dragon")
	require.NoError(t, err)
	assert.Equal(t, "https://ms.yugipedia.com/thumb/a/ab/BEWD.png/300px-BEWD.png", url)
}

func TestWikiLookup_RetriesAlternateURL(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/index.php" && r.URL.Query().Get("title") == "Dark_Magician" {
			_, _ = w.Write([]byte(`<table><td class="cardtable-cardimage"><a><img data-src="/images/dm.png"></a></td></table>`))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	url, err := newWiki(srv.URL).Lookup(context.Background(), "Dark Magician")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/images/dm.png", url)
	assert.Equal(t, int32(2), hits.Load())
}

func TestWikiLookup_FallsBackToPreviewImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><meta property="og:image" content="//cdn.example/x.png"></head><body></body></html>`))
	}))
	defer srv.Close()

	url, err := newWiki(srv.URL).Lookup(context.Background(), "Kuriboh")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/x.png", url)
}

func TestWikiLookup_NoImageIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>nothing here</p></body></html>`))
	}))
	defer srv.Close()

	url, err := newWiki(srv.URL).Lookup(context.Background(), "Kuriboh")
	require.NoError(t, err)
	assert.Empty(t, url)
}

func TestWikiLookup_BothURLsFailing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newWiki(srv.URL).Lookup(context.Background(), "Kuriboh")
	assert.Error(t, err)
}

func TestNormalizeURL(t *testing.T) {
	origin := "https://yugipedia.com"
	assert.Equal(t, "https://cdn.example/x.png", image.NormalizeURL("//cdn.example/x.png", origin))
	assert.Equal(t, "https://yugipedia.com/wiki/x.png", image.NormalizeURL("/wiki/x.png", origin))
	assert.Equal(t, "https://other.example/y.png", image.NormalizeURL(" https://other.example/y.png ", origin))
	assert.Empty(t, image.NormalizeURL("", origin))
}

func TestPickSrcset(t *testing.T) {
	tests := []struct {
		name   string
		srcset string
		want   string
	}{
		{"width descriptor match", "a.png 150w, b.png 300w, c.png 600w", "b.png"},
		{"thumbnail path match", "/t/450px-c.png 1.5x, /t/300px-c.png 1x", "/t/300px-c.png"},
		{"largest when no match", "a.png 150w, c.png 600w, b.png 450w", "c.png"},
		{"first without descriptors", "a.png, b.png", "a.png"},
		{"empty", "  ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, image.PickSrcset(tt.srcset, 300))
		})
	}
}
