package credibility

import (
	"net/url"
	"strings"
)

// GenericSource is the table key used for unknown or empty source ids.
const GenericSource = "generic"

// DefaultSources is the built-in source trust table.
var DefaultSources = map[string]float64{
	"bbc-news":         0.95,
	"reuters":          0.95,
	"associated-press": 0.95,
	"techcrunch":       0.85,
	"the-verge":        0.80,
	"cnn":              0.85,
	"wired":            0.82,
	"arstechnica":      0.85,
	"engadget":         0.75,
	"fox-news":         0.70,
	GenericSource:      0.5,
}

// Scorer maps a source identifier and URL to a trust score in [0,1].
type Scorer struct {
	sources map[string]float64
	generic float64
}

// NewScorer merges overrides into the default table. A non-positive generic keeps the default.
func NewScorer(overrides map[string]float64, generic float64) *Scorer {
	sources := make(map[string]float64, len(DefaultSources)+len(overrides))
	for k, v := range DefaultSources {
		sources[k] = v
	}
	for k, v := range overrides {
		sources[strings.ToLower(strings.TrimSpace(k))] = clamp(v)
	}
	if generic > 0 {
		sources[GenericSource] = clamp(generic)
	}
	return &Scorer{sources: sources, generic: sources[GenericSource]}
}

// Score returns the trust score for the item. Government and academic hosts always score 1.0.
func (s *Scorer) Score(sourceID, rawURL string) float64 {
	if OfficialHost(rawURL) {
		return 1.0
	}
	id := strings.ToLower(strings.TrimSpace(sourceID))
	if id == "" {
		return s.generic
	}
	if score, ok := s.sources[id]; ok {
		return score
	}
	return s.generic
}

// OfficialHost reports whether the URL host is a government or academic domain:
// a "gov" or "edu" label anywhere in the host, or an "ac.<cc>" suffix.
func OfficialHost(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}

	labels := strings.Split(host, ".")
	for _, label := range labels {
		if label == "gov" || label == "edu" {
			return true
		}
	}
	n := len(labels)
	return n >= 3 && labels[n-2] == "ac" && len(labels[n-1]) == 2
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
