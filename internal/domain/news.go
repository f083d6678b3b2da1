package domain

import "time"

// CandidateItem is a collected news item awaiting verification.
type CandidateItem struct {
	ID                int64
	SourceID          string
	SourceName        string
	Author            string
	Title             string
	Description       string
	Body              string
	URL               string
	ImageURL          string
	PublishedAt       time.Time
	CollectedAt       time.Time
	VerificationScore float64
	// IsVerified means the score reached the credibility minimum, even if the item was a duplicate.
	IsVerified bool
	Duplicate  bool
	Processed  bool
}

// Text returns the body, falling back to the description for feeds without full content.
func (c CandidateItem) Text() string {
	if c.Body != "" {
		return c.Body
	}
	return c.Description
}

// SourceRef is the display data reached through a verified record's back-reference.
type SourceRef struct {
	CandidateID int64
	SourceID    string
	SourceName  string
	URL         string
	ImageURL    string
}

// VerifiedRecord is a candidate that passed verification.
type VerifiedRecord struct {
	ID               int64
	CandidateID      int64
	Title            string
	Body             string
	CredibilityScore float64
	PublishedAt      time.Time
	CreatedAt        time.Time
	Source           SourceRef
	// Analysis is nil until the analysis stage has run for the record.
	Analysis *Analysis
}

// Analyzed reports whether enrichment has been attached.
func (r VerifiedRecord) Analyzed() bool {
	return r.Analysis != nil
}

// Category returns the analysed category or an empty string.
func (r VerifiedRecord) Category() string {
	if r.Analysis == nil {
		return ""
	}
	return r.Analysis.Category
}

// ImpactScore returns the analysed impact or zero when missing.
func (r VerifiedRecord) ImpactScore() int {
	if r.Analysis == nil {
		return 0
	}
	return r.Analysis.ImpactScore
}

// Analysis holds the enrichment produced by the external analysis stage.
type Analysis struct {
	Category        string   `json:"category"`
	ImpactScore     int      `json:"impact_score"`
	SummaryBullets  []string `json:"summary_bullets"`
	WhyItMatters    string   `json:"why_it_matters"`
	WhoIsAffected   string   `json:"who_is_affected"`
	ShortTermImpact string   `json:"short_term_impact"`
	LongTermImpact  string   `json:"long_term_impact"`
	Sentiment       string   `json:"sentiment"`
	ImpactTags      []string `json:"impact_tags"`
	BiasRating      string   `json:"bias_rating"`
}
