package parser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"NewsDigest/internal/config"
	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/scanner"
)

// StrategySource implements CandidateSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	sites    []config.SiteConfig
	logger   *slog.Logger
}

var _ ports.CandidateSource = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined sites.
func NewStrategySource(reg *scanner.Registry, sites []config.SiteConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sites:    sites,
		logger:   log,
	}
}

// FetchCandidates runs every configured site. Failing sites are logged and skipped;
// an error is returned only when all of them fail.
func (s *StrategySource) FetchCandidates(ctx context.Context, now time.Time) ([]domain.CandidateItem, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	s.debug("fetch candidates", "sites", len(s.sites))

	var (
		aggregated []domain.CandidateItem
		lastErr    error
		failed     int
	)
	for _, site := range s.sites {
		if err := ctx.Err(); err != nil {
			return aggregated, err
		}

		s.debug("process site", "site", site.Name, "scanner", site.Scanner, "feeds", len(site.Categories))
		req := scanner.Request{
			Now:        now,
			SiteName:   site.Name,
			Options:    site.Options,
			Categories: toScannerCategories(site.Categories),
		}

		results, err := s.registry.Scan(ctx, site.Scanner, req)
		if err != nil {
			failed++
			lastErr = fmt.Errorf("scan site %s: %w", site.Name, err)
			s.warn("site skipped", "site", site.Name, "error", err)
			continue
		}
		s.debug("site produced candidates", "site", site.Name, "count", len(results))
		aggregated = append(aggregated, results...)
	}

	if len(s.sites) > 0 && failed == len(s.sites) {
		return nil, fmt.Errorf("all sites failed: %w", lastErr)
	}

	s.debug("strategy source done", "total_candidates", len(aggregated))
	return aggregated, nil
}

func toScannerCategories(cfg []config.CategoryConfig) []scanner.Category {
	categories := make([]scanner.Category, 0, len(cfg))
	for _, cat := range cfg {
		categories = append(categories, scanner.Category{
			Name: cat.Name,
			URL:  cat.URL,
		})
	}
	return categories
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *StrategySource) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
