package ranking

import (
	"sort"
	"time"

	"NewsDigest/internal/domain"
)

const (
	ImpactWeight      = 0.7
	CredibilityWeight = 3.0

	FreshBonus   = 6.0
	RecentBonus  = 3.0
	FreshWindow  = 3 * time.Hour
	RecentWindow = 8 * time.Hour
)

// Scored pairs a record with its rank score.
type Scored struct {
	Record domain.VerifiedRecord
	Score  float64
}

// FreshnessBonus rewards recently published records. Unknown publication time earns nothing.
func FreshnessBonus(published, now time.Time) float64 {
	if published.IsZero() {
		return 0
	}
	age := now.Sub(published)
	switch {
	case age < FreshWindow:
		return FreshBonus
	case age < RecentWindow:
		return RecentBonus
	default:
		return 0
	}
}

// Score computes impact*0.7 + credibility*3.0 plus the freshness bonus.
// A record without analysis counts as zero impact.
func Score(r domain.VerifiedRecord, now time.Time) float64 {
	base := float64(r.ImpactScore())*ImpactWeight + r.CredibilityScore*CredibilityWeight
	return base + FreshnessBonus(r.PublishedAt, now)
}

// Rank scores records and sorts them by score descending. Ties keep input order.
func Rank(records []domain.VerifiedRecord, now time.Time) []Scored {
	out := make([]Scored, len(records))
	for i, r := range records {
		out[i] = Scored{Record: r, Score: Score(r, now)}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// HighVolumeCap is the number of Technology and AI items admitted for a given limit.
func HighVolumeCap(totalLimit int, quota float64) int {
	return int(float64(totalLimit) * quota)
}

// Balance walks the sorted list into at most totalLimit items, skipping high-volume
// category items once their quota is exhausted.
func Balance(sorted []Scored, totalLimit int, quota float64) []Scored {
	if totalLimit <= 0 {
		return nil
	}
	limit := HighVolumeCap(totalLimit, quota)

	out := make([]Scored, 0, min(totalLimit, len(sorted)))
	highVolume := 0
	for _, s := range sorted {
		if len(out) == totalLimit {
			break
		}
		if domain.HighVolumeCategories[s.Record.Category()] {
			if highVolume >= limit {
				continue
			}
			highVolume++
		}
		out = append(out, s)
	}
	return out
}
