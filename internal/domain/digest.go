package domain

import "time"

const (
	CategoryBreaking      = "Breaking News"
	CategoryPolitics      = "Politics"
	CategoryBusiness      = "Business & Economy"
	CategorySports        = "Sports"
	CategoryTechnology    = "Technology"
	CategoryAI            = "AI & Machine Learning"
	CategoryWorld         = "World News"
	CategoryIndia         = "India / Local News"
	CategoryScience       = "Science & Health"
	CategoryEducation     = "Education"
	CategoryEntertainment = "Entertainment"
	CategoryEnvironment   = "Environment & Climate"
	CategoryLifestyle     = "Lifestyle & Wellness"
	CategoryDefense       = "Defense & Security"
)

// Categories lists the mandatory digest sections in display order.
var Categories = []string{
	CategoryBreaking,
	CategoryPolitics,
	CategoryBusiness,
	CategorySports,
	CategoryTechnology,
	CategoryAI,
	CategoryWorld,
	CategoryIndia,
	CategoryScience,
	CategoryEducation,
	CategoryEntertainment,
	CategoryEnvironment,
	CategoryLifestyle,
	CategoryDefense,
}

// IsCategory reports whether name is one of the mandatory categories.
func IsCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

// HighVolumeCategories are capped during balancing.
var HighVolumeCategories = map[string]bool{
	CategoryTechnology: true,
	CategoryAI:         true,
}

// DigestEntry is a ranked story with its display fields.
type DigestEntry struct {
	RecordID        int64     `json:"id"`
	Title           string    `json:"title"`
	URL             string    `json:"url"`
	SourceName      string    `json:"source"`
	ImageURL        string    `json:"image_url,omitempty"`
	PublishedAt     time.Time `json:"published_at,omitzero"`
	Category        string    `json:"category"`
	ImpactScore     int       `json:"impact_score"`
	RankScore       float64   `json:"rank_score"`
	SummaryBullets  []string  `json:"summary_bullets,omitempty"`
	ImpactTags      []string  `json:"impact_tags,omitempty"`
	WhyItMatters    string    `json:"why_it_matters,omitempty"`
	WhoIsAffected   string    `json:"who_is_affected,omitempty"`
	ShortTermImpact string    `json:"short_term_impact,omitempty"`
	LongTermImpact  string    `json:"long_term_impact,omitempty"`
	BiasRating      string    `json:"bias_rating,omitempty"`
}

// BriefEntry is a headline of the quick brief.
type BriefEntry struct {
	RecordID int64  `json:"id"`
	Title    string `json:"title"`
}

// TrendingEntry is a trending story with a display-only engagement figure.
type TrendingEntry struct {
	DigestEntry
	Engagement int `json:"engagement"`
}

// Digest is an immutable snapshot produced by one pipeline run.
type Digest struct {
	ID          int64                    `json:"id,omitempty"`
	GeneratedAt time.Time                `json:"generated_at"`
	TopStories  []DigestEntry            `json:"top_stories"`
	Brief       []BriefEntry             `json:"brief"`
	Categories  map[string][]DigestEntry `json:"categories"`
	Trending    []TrendingEntry          `json:"trending"`
}

// Notice is the (title, category, url) tuple handed to delivery channels.
type Notice struct {
	Title    string `json:"title"`
	Category string `json:"category,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Delivery is the payload passed to notifiers after a digest is stored.
type Delivery struct {
	DigestID    int64     `json:"digest_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Brief       []Notice  `json:"brief"`
	TopStories  []Notice  `json:"top_stories"`
}
