package scanner

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"NewsDigest/internal/domain"
)

// Option keys understood by every strategy.
const (
	OptionMaxAge   = "maxAge"
	OptionMaxItems = "maxItems"
)

// Category describes a concrete feed endpoint provided by config.
type Category struct {
	Name string
	URL  string
}

// Request carries all parameters required to execute a scan.
type Request struct {
	Now        time.Time
	SiteName   string
	Categories []Category
	Options    map[string]string
	// MaxAge drops items published longer ago than this; zero falls back to the options.
	MaxAge time.Duration
	// MaxItems caps items kept per feed; zero falls back to the options.
	MaxItems int
}

// Limits resolves the freshness window and per-feed cap: explicit fields win over
// options, options over the strategy defaults.
func (r Request) Limits(defaultAge time.Duration, defaultItems int) (time.Duration, int) {
	age := r.MaxAge
	if age <= 0 {
		age = optionDuration(r.Options, OptionMaxAge, defaultAge)
	}
	items := r.MaxItems
	if items <= 0 {
		items = optionInt(r.Options, OptionMaxItems, defaultItems)
	}
	return age, items
}

// Fresh reports whether an item published at the given time is inside the window.
// Undated items are kept; a non-positive window keeps everything.
func Fresh(published, now time.Time, maxAge time.Duration) bool {
	if published.IsZero() || maxAge <= 0 {
		return true
	}
	return now.Sub(published) <= maxAge
}

// Scanner captures a single collection strategy (RSS, Atom, etc.).
type Scanner interface {
	Name() string
	Scan(ctx context.Context, req Request) ([]domain.CandidateItem, error)
}

// Registry keeps a mapping from scanner names to their implementations.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[string]Scanner{}}
}

// Register adds or replaces a scanner implementation.
func (r *Registry) Register(scanner Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[scanner.Name()] = scanner
}

// Resolve returns a scanner by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %s is not registered (have %s)", name, strings.Join(r.Names(), ", "))
}

// Names lists the registered strategies in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.scanners))
	for name := range r.scanners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Scan runs the named strategy and normalises what it returns.
func (r *Registry) Scan(ctx context.Context, name string, req Request) ([]domain.CandidateItem, error) {
	strategy, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	items, err := strategy.Scan(ctx, req)
	if err != nil {
		return nil, err
	}
	return Normalize(items, req), nil
}

// Normalize drops items without a title or URL, items outside the request window
// and repeated URLs, and attributes unlabelled items to the requesting site.
func Normalize(items []domain.CandidateItem, req Request) []domain.CandidateItem {
	maxAge, _ := req.Limits(0, 0)
	seen := make(map[string]bool, len(items))
	out := make([]domain.CandidateItem, 0, len(items))
	for _, item := range items {
		item.Title = strings.TrimSpace(item.Title)
		item.URL = strings.TrimSpace(item.URL)
		if item.Title == "" || item.URL == "" || seen[item.URL] {
			continue
		}
		if !req.Now.IsZero() && !Fresh(item.PublishedAt, req.Now, maxAge) {
			continue
		}
		if item.SourceID == "" {
			item.SourceID = req.SiteName
		}
		seen[item.URL] = true
		out = append(out, item)
	}
	return out
}

func optionDuration(options map[string]string, key string, fallback time.Duration) time.Duration {
	if raw, ok := options[key]; ok {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func optionInt(options map[string]string, key string, fallback int) int {
	if raw, ok := options[key]; ok {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
