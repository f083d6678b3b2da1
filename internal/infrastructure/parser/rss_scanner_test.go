package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"NewsDigest/internal/config"
	"NewsDigest/internal/scanner"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/" xmlns:content="http://purl.org/rss/1.0/modules/content/">
  <channel>
    <title>Example Wire</title>
    <link>https://wire.example</link>
    <description>Example feed</description>
    <item>
      <title>Fresh story</title>
      <link>https://wire.example/fresh</link>
      <description><![CDATA[<p>Fresh <b>summary</b> text.</p>]]></description>
      <content:encoded><![CDATA[<p>Full body</p><img src="https://img.example/inline.jpg"/>]]></content:encoded>
      <pubDate>Sat, 08 Nov 2025 10:00:00 GMT</pubDate>
      <media:content url="https://img.example/fresh.jpg" medium="image"/>
    </item>
    <item>
      <title>Enclosure story</title>
      <link>https://wire.example/enclosure</link>
      <description>Plain   text</description>
      <pubDate>Sat, 08 Nov 2025 09:00:00 GMT</pubDate>
      <enclosure url="https://img.example/enclosure.png" type="image/png" length="10"/>
    </item>
    <item>
      <title>Old story</title>
      <link>https://wire.example/old</link>
      <pubDate>Wed, 05 Nov 2025 09:00:00 GMT</pubDate>
    </item>
    <item>
      <title></title>
      <link>https://wire.example/untitled</link>
      <pubDate>Sat, 08 Nov 2025 09:00:00 GMT</pubDate>
    </item>
  </channel>
</rss>`

var scanNow = time.Date(2025, time.November, 8, 12, 0, 0, 0, time.UTC)

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/feed.xml":
			w.Header().Set("Content-Type", "application/rss+xml")
			_, _ = w.Write([]byte(sampleFeed))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRSSScannerScan(t *testing.T) {
	t.Parallel()

	server := feedServer(t)
	sc := NewRSSScanner(server.Client(), nil)

	items, err := sc.Scan(context.Background(), scanner.Request{
		Now:      scanNow,
		SiteName: "wire",
		Categories: []scanner.Category{
			{Name: "main", URL: server.URL + "/feed.xml"},
			{Name: "broken", URL: server.URL + "/missing.xml"},
		},
	})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 recent items, got %d", len(items))
	}

	fresh := items[0]
	if fresh.Title != "Fresh story" || fresh.URL != "https://wire.example/fresh" {
		t.Fatalf("unexpected item: %+v", fresh)
	}
	if fresh.SourceID != "wire" || fresh.SourceName != "Example Wire" {
		t.Fatalf("unexpected source: %s / %s", fresh.SourceID, fresh.SourceName)
	}
	if fresh.Description != "Fresh summary text." || fresh.Body != "Full body" {
		t.Fatalf("unexpected text: %q / %q", fresh.Description, fresh.Body)
	}
	if fresh.ImageURL != "https://img.example/fresh.jpg" {
		t.Fatalf("unexpected image: %s", fresh.ImageURL)
	}
	if !fresh.PublishedAt.Equal(time.Date(2025, time.November, 8, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected published time: %v", fresh.PublishedAt)
	}

	enclosure := items[1]
	if enclosure.ImageURL != "https://img.example/enclosure.png" || enclosure.Description != "Plain text" {
		t.Fatalf("unexpected enclosure item: %+v", enclosure)
	}
}

func TestRSSScannerOptions(t *testing.T) {
	t.Parallel()

	server := feedServer(t)
	sc := NewRSSScanner(server.Client(), nil)

	items, err := sc.Scan(context.Background(), scanner.Request{
		Now:        scanNow,
		SiteName:   "wire",
		Categories: []scanner.Category{{Name: "main", URL: server.URL + "/feed.xml"}},
		Options:    map[string]string{"maxAge": "168h", "maxItems": "2"},
	})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected maxItems to cap results at 2, got %d", len(items))
	}

	items, err = sc.Scan(context.Background(), scanner.Request{
		Now:        scanNow,
		SiteName:   "wire",
		Categories: []scanner.Category{{Name: "main", URL: server.URL + "/feed.xml"}},
		Options:    map[string]string{"maxAge": "168h"},
	})
	if err != nil {
		t.Fatalf("Scan error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected old story within a week, got %d", len(items))
	}
}

func TestRSSScannerAllFeedsFail(t *testing.T) {
	t.Parallel()

	server := feedServer(t)
	sc := NewRSSScanner(server.Client(), nil)

	_, err := sc.Scan(context.Background(), scanner.Request{
		Now:        scanNow,
		SiteName:   "wire",
		Categories: []scanner.Category{{Name: "broken", URL: server.URL + "/missing.xml"}},
	})
	if err == nil {
		t.Fatalf("expected error when every feed fails")
	}

	if _, err := sc.Scan(context.Background(), scanner.Request{SiteName: "empty"}); err == nil {
		t.Fatalf("expected error without feeds")
	}
}

func TestHTMLText(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                                    "",
		"  plain \n text ":                    "plain text",
		"<p>Hello <i>world</i></p>":           "Hello world",
		"Fish &amp; chips":                    "Fish & chips",
		"<div>a<script>var x;</script>b</div>": "ab",
	}
	for in, want := range cases {
		if got := htmlText(in); got != want {
			t.Fatalf("htmlText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFirstImage(t *testing.T) {
	t.Parallel()

	if got := firstImage(`<p>x</p><img src=" https://i/1.jpg "><img src="https://i/2.jpg">`); got != "https://i/1.jpg" {
		t.Fatalf("unexpected image: %q", got)
	}
	if got := firstImage("no images here"); got != "" {
		t.Fatalf("expected no image, got %q", got)
	}
}

func TestStrategySourceSkipsFailingSites(t *testing.T) {
	t.Parallel()

	server := feedServer(t)
	reg := scanner.NewRegistry()
	reg.Register(NewRSSScanner(server.Client(), nil))

	source := NewStrategySource(reg, []config.SiteConfig{
		{Name: "wire", Scanner: "rss", Categories: []config.CategoryConfig{{Name: "main", URL: server.URL + "/feed.xml"}}},
		{Name: "ghost", Scanner: "atom", Categories: []config.CategoryConfig{{Name: "main", URL: server.URL + "/feed.xml"}}},
		{Name: "down", Scanner: "rss", Categories: []config.CategoryConfig{{Name: "main", URL: server.URL + "/missing.xml"}}},
	}, nil)

	items, err := source.FetchCandidates(context.Background(), scanNow)
	if err != nil {
		t.Fatalf("FetchCandidates error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(items))
	}
	for _, item := range items {
		if item.SourceID != "wire" {
			t.Fatalf("unexpected source id: %s", item.SourceID)
		}
	}
}

func TestStrategySourceAllSitesFail(t *testing.T) {
	t.Parallel()

	source := NewStrategySource(scanner.NewRegistry(), []config.SiteConfig{{Name: "ghost", Scanner: "atom"}}, nil)
	if _, err := source.FetchCandidates(context.Background(), scanNow); err == nil || !strings.Contains(err.Error(), "all sites failed") {
		t.Fatalf("expected all sites failed error, got %v", err)
	}

	if _, err := NewStrategySource(nil, nil, nil).FetchCandidates(context.Background(), scanNow); err == nil {
		t.Fatalf("expected error without registry")
	}
}
