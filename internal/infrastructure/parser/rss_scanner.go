package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/scanner"
)

const (
	defaultMaxAge   = 24 * time.Hour
	defaultMaxItems = 50
	userAgent       = "NewsDigest/1.0"
)

// RSSScanner reads RSS and Atom feeds and keeps recently published items.
type RSSScanner struct {
	client   *http.Client
	maxAge   time.Duration
	maxItems int
	logger   *slog.Logger
}

// NewRSSScanner wires an HTTP client; items older than 24h are dropped by default.
func NewRSSScanner(client *http.Client, logger *slog.Logger) *RSSScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &RSSScanner{client: client, maxAge: defaultMaxAge, maxItems: defaultMaxItems, logger: logger}
}

// Name identifies the strategy inside the registry.
func (s *RSSScanner) Name() string {
	return "rss"
}

// Scan fetches every feed of the site. A failing feed is logged and skipped;
// the scan fails only when no feed could be read.
func (s *RSSScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.CandidateItem, error) {
	if len(req.Categories) == 0 {
		return nil, fmt.Errorf("no feeds provided for site %s", req.SiteName)
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	maxAge, maxItems := req.Limits(s.maxAge, s.maxItems)

	var (
		results []domain.CandidateItem
		lastErr error
		failed  int
	)
	for _, cat := range req.Categories {
		feed, err := s.fetchFeed(ctx, cat.URL)
		if err != nil {
			failed++
			lastErr = fmt.Errorf("feed %s: %w", cat.Name, err)
			s.warn("feed skipped", "site", req.SiteName, "feed", cat.Name, "error", err)
			continue
		}

		sourceName := strings.TrimSpace(feed.Title)
		if sourceName == "" {
			sourceName = req.SiteName
		}

		kept := 0
		for _, item := range feed.Items {
			if kept == maxItems {
				break
			}
			candidate, ok := toCandidate(item, req.SiteName, sourceName, now, maxAge)
			if !ok {
				continue
			}
			results = append(results, candidate)
			kept++
		}
	}

	if failed == len(req.Categories) {
		return nil, lastErr
	}
	return results, nil
}

func (s *RSSScanner) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	fp := gofeed.NewParser()
	fp.Client = s.client
	fp.UserAgent = userAgent

	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

func toCandidate(item *gofeed.Item, siteName, sourceName string, now time.Time, maxAge time.Duration) (domain.CandidateItem, bool) {
	title := strings.TrimSpace(item.Title)
	link := strings.TrimSpace(item.Link)
	if title == "" || link == "" {
		return domain.CandidateItem{}, false
	}

	var published time.Time
	if item.PublishedParsed != nil {
		published = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		published = item.UpdatedParsed.UTC()
	}
	if !scanner.Fresh(published, now, maxAge) {
		return domain.CandidateItem{}, false
	}

	author := ""
	if item.Author != nil {
		author = item.Author.Name
	}

	return domain.CandidateItem{
		SourceID:    siteName,
		SourceName:  sourceName,
		Author:      author,
		Title:       title,
		Description: htmlText(item.Description),
		Body:        htmlText(item.Content),
		URL:         link,
		ImageURL:    extractImage(item),
		PublishedAt: published,
		CollectedAt: now.UTC(),
	}, true
}

// extractImage looks at media extensions, enclosures, the item image and finally inline <img> tags.
func extractImage(item *gofeed.Item) string {
	if media, ok := item.Extensions["media"]; ok {
		for _, m := range media["content"] {
			if strings.HasPrefix(m.Attrs["type"], "image") || m.Attrs["medium"] == "image" {
				if u := m.Attrs["url"]; u != "" {
					return u
				}
			}
		}
		for _, m := range media["thumbnail"] {
			if u := m.Attrs["url"]; u != "" {
				return u
			}
		}
	}

	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image") && enc.URL != "" {
			return enc.URL
		}
	}

	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}

	for _, fragment := range []string{item.Content, item.Description} {
		if src := firstImage(fragment); src != "" {
			return src
		}
	}
	return ""
}

func firstImage(fragment string) string {
	if !strings.Contains(fragment, "<img") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	src, _ := doc.Find("img[src]").First().Attr("src")
	return strings.TrimSpace(src)
}

// htmlText strips markup and collapses whitespace.
func htmlText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func (s *RSSScanner) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
