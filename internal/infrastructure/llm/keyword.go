package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

// CategoryOther is assigned when no keyword matches. It is not a digest section.
const CategoryOther = "Other News"

const keywordImpact = 7

type keywordSet struct {
	category string
	words    []string
}

// Checked in order; the first category with a matching keyword wins.
var categoryKeywords = []keywordSet{
	{domain.CategoryTechnology, []string{"tech", "apple", "google", "microsoft", "cyber", "software", "app", "digital"}},
	{domain.CategoryAI, []string{"ai", "gpt", "llm", "intelligence", "neural", "robot", "algorithm"}},
	{domain.CategorySports, []string{"sport", "cricket", "football", "nba", "score", "cup", "match", "league", "racing"}},
	{domain.CategoryPolitics, []string{"election", "parliament", "senate", "minister", "president", "policy", "vote", "congress", "law"}},
	{domain.CategoryBusiness, []string{"market", "stock", "economy", "trade", "bank", "finance", "ceo", "startup", "inflation"}},
	{domain.CategoryWorld, []string{"war", "un", "global", "china", "europe", "ukraine", "gaza", "russia", "international"}},
	{domain.CategoryIndia, []string{"india", "delhi", "mumbai", "modi", "bjp", "cricket", "bollywood"}},
	{domain.CategoryScience, []string{"space", "nasa", "doctor", "virus", "cancer", "health", "science", "discovery", "planet"}},
	{domain.CategoryEducation, []string{"school", "university", "student", "college", "exam", "education", "teacher"}},
	{domain.CategoryEntertainment, []string{"movie", "film", "star", "celebrity", "actor", "music", "cinema", "show"}},
	{domain.CategoryEnvironment, []string{"climate", "environment", "global warming", "sustainability", "green", "carbon", "renewable", "nature"}},
	{domain.CategoryLifestyle, []string{"travel", "wellness", "lifestyle", "health", "culture", "fashion", "food", "leisure"}},
	{domain.CategoryDefense, []string{"defense", "military", "security", "navy", "army", "warfare", "pentagon", "weapon", "nato"}},
	{domain.CategoryBreaking, []string{"breaking", "urgent", "just in", "emergency", "crisis"}},
}

var impactTags = map[string][]string{
	domain.CategoryBusiness:    {"Market Impact", "Jobs"},
	domain.CategoryTechnology:  {"Market Impact", "Jobs"},
	domain.CategoryPolitics:    {"Policy Impact"},
	domain.CategoryWorld:       {"Policy Impact"},
	domain.CategoryEducation:   {"Exam Relevance"},
	domain.CategoryIndia:       {"Public Impact"},
	domain.CategoryEnvironment: {"Climate Risk", "Sustainability"},
	domain.CategoryDefense:     {"National Security", "Geopolitical Impact"},
	domain.CategoryLifestyle:   {"Personal Wellness"},
}

// KeywordAnalyzer classifies articles from their title without any remote call.
type KeywordAnalyzer struct{}

var _ ports.Analyzer = KeywordAnalyzer{}

// Analyze never fails.
func (KeywordAnalyzer) Analyze(_ context.Context, title, _ string) (domain.Analysis, error) {
	category := ClassifyTitle(title)

	bias := "Neutral"
	if category == domain.CategoryPolitics {
		bias = "Mixed Perspectives"
	}

	return domain.Analysis{
		Category:    category,
		ImpactScore: keywordImpact,
		SummaryBullets: []string{
			fmt.Sprintf("Key update regarding %s...", truncateRunes(title, 25)),
			"Details on the event implications.",
			"Expert consensus summary.",
		},
		WhyItMatters:    fmt.Sprintf("This update regarding '%s' is significant for the %s sector.", title, category),
		WhoIsAffected:   "General Public and Stakeholders",
		ShortTermImpact: "Immediate awareness and local discussions.",
		LongTermImpact:  "Potential policy shifts or long-term behavioral changes.",
		Sentiment:       "Neutral",
		ImpactTags:      append([]string{}, impactTags[category]...),
		BiasRating:      bias,
	}, nil
}

// ClassifyTitle returns the first category whose keywords occur in the title.
// Short keywords must match a whole word, longer ones a word prefix, phrases a substring.
func ClassifyTitle(title string) string {
	lower := strings.ToLower(title)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for _, set := range categoryKeywords {
		for _, kw := range set.words {
			if matchKeyword(lower, words, kw) {
				return set.category
			}
		}
	}
	return CategoryOther
}

func matchKeyword(lower string, words []string, kw string) bool {
	if strings.Contains(kw, " ") {
		return strings.Contains(lower, kw)
	}
	for _, w := range words {
		if len(kw) <= 3 {
			if w == kw {
				return true
			}
			continue
		}
		if strings.HasPrefix(w, kw) {
			return true
		}
	}
	return false
}

type sourceRule struct {
	needles  []string
	category string
}

var sourceRules = []sourceRule{
	{[]string{"sport", "espn"}, domain.CategorySports},
	{[]string{"tech", "wired"}, domain.CategoryTechnology},
	{[]string{"politics", "politico"}, domain.CategoryPolitics},
	{[]string{"business", "cnbc", "wsj"}, domain.CategoryBusiness},
	{[]string{"world", "aljazeera"}, domain.CategoryWorld},
	{[]string{"india", "ndtv"}, domain.CategoryIndia},
	{[]string{"science", "webmd", "nasa"}, domain.CategoryScience},
	{[]string{"education", "chronicle"}, domain.CategoryEducation},
	{[]string{"variety", "hollywood"}, domain.CategoryEntertainment},
	{[]string{"mit", "ai"}, domain.CategoryAI},
	{[]string{"grist", "natgeo", "earth"}, domain.CategoryEnvironment},
	{[]string{"lifestyle", "travel"}, domain.CategoryLifestyle},
	{[]string{"defense", "military"}, domain.CategoryDefense},
}

// OverrideCategory replaces an analysed category when the source id names a known beat.
func OverrideCategory(sourceID, category string) string {
	sid := strings.ToLower(sourceID)
	if sid == "" {
		return category
	}
	for _, rule := range sourceRules {
		for _, needle := range rule.needles {
			if strings.Contains(sid, needle) {
				return rule.category
			}
		}
	}
	return category
}
