package ranking

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"NewsDigest/internal/domain"
)

// Config tunes digest assembly.
type Config struct {
	TotalLimit      int
	HighVolumeQuota float64
	RotationPool    int
	TopStories      int
	BriefSize       int
	TrendingSize    int
}

// DefaultConfig returns the production sizes.
func DefaultConfig() Config {
	return Config{
		TotalLimit:      50,
		HighVolumeQuota: 0.15,
		RotationPool:    20,
		TopStories:      10,
		BriefSize:       5,
		TrendingSize:    10,
	}
}

const (
	minEngagement   = 1200
	engagementRange = 48000
)

// Assembler turns verified records into a digest.
type Assembler struct {
	cfg   Config
	clock func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewAssembler builds an assembler. Zero sizes and quota take the defaults; a nil
// rnd is seeded from the current time.
func NewAssembler(cfg Config, rnd *rand.Rand, clock func() time.Time) *Assembler {
	def := DefaultConfig()
	if cfg.TotalLimit <= 0 {
		cfg.TotalLimit = def.TotalLimit
	}
	if cfg.HighVolumeQuota <= 0 || cfg.HighVolumeQuota > 1 {
		cfg.HighVolumeQuota = def.HighVolumeQuota
	}
	if cfg.RotationPool <= 0 {
		cfg.RotationPool = def.RotationPool
	}
	if cfg.TopStories <= 0 {
		cfg.TopStories = def.TopStories
	}
	if cfg.BriefSize <= 0 {
		cfg.BriefSize = def.BriefSize
	}
	if cfg.TrendingSize <= 0 {
		cfg.TrendingSize = def.TrendingSize
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if clock == nil {
		clock = time.Now
	}
	return &Assembler{cfg: cfg, rnd: rnd, clock: clock}
}

// Assemble ranks records and builds every digest section. records are expected
// newest first; equal scores keep that order.
func (a *Assembler) Assemble(records []domain.VerifiedRecord) domain.Digest {
	now := a.clock()
	sorted := Rank(records, now)
	balanced := Balance(sorted, a.cfg.TotalLimit, a.cfg.HighVolumeQuota)

	a.mu.Lock()
	defer a.mu.Unlock()

	return domain.Digest{
		GeneratedAt: now.UTC(),
		TopStories:  a.rotate(balanced),
		Brief:       brief(sorted, a.cfg.BriefSize),
		Categories:  Categorize(balanced),
		Trending:    a.trending(sorted),
	}
}

// Categorize maps balanced items into the 14 mandatory sections. Unknown categories are dropped.
func Categorize(balanced []Scored) map[string][]domain.DigestEntry {
	out := make(map[string][]domain.DigestEntry, len(domain.Categories))
	for _, name := range domain.Categories {
		out[name] = []domain.DigestEntry{}
	}
	for _, s := range balanced {
		cat := s.Record.Category()
		if _, ok := out[cat]; !ok {
			continue
		}
		out[cat] = append(out[cat], Entry(s))
	}
	return out
}

// rotate samples TopStories items without replacement from the head of the pool,
// presented in rank order.
func (a *Assembler) rotate(balanced []Scored) []domain.DigestEntry {
	pool := balanced
	if len(pool) > a.cfg.RotationPool {
		pool = pool[:a.cfg.RotationPool]
	}
	n := min(a.cfg.TopStories, len(pool))

	picked := a.rnd.Perm(len(pool))[:n]
	sort.Ints(picked)

	out := make([]domain.DigestEntry, 0, n)
	for _, idx := range picked {
		out = append(out, Entry(pool[idx]))
	}
	return out
}

// trending prefers local stories and tops up from the second rank slice.
func (a *Assembler) trending(sorted []Scored) []domain.TrendingEntry {
	size := a.cfg.TrendingSize
	chosen := make([]Scored, 0, size)
	used := map[int]bool{}

	for i, s := range sorted {
		if len(chosen) == size {
			break
		}
		if s.Record.Category() == domain.CategoryIndia {
			chosen = append(chosen, s)
			used[i] = true
		}
	}

	for i := size; i < 2*size && i < len(sorted) && len(chosen) < size; i++ {
		if used[i] {
			continue
		}
		chosen = append(chosen, sorted[i])
	}

	out := make([]domain.TrendingEntry, 0, len(chosen))
	for _, s := range chosen {
		out = append(out, domain.TrendingEntry{
			DigestEntry: Entry(s),
			Engagement:  minEngagement + a.rnd.Intn(engagementRange),
		})
	}
	return out
}

func brief(sorted []Scored, size int) []domain.BriefEntry {
	n := min(size, len(sorted))
	out := make([]domain.BriefEntry, 0, n)
	for _, s := range sorted[:n] {
		out = append(out, domain.BriefEntry{RecordID: s.Record.ID, Title: s.Record.Title})
	}
	return out
}

// Entry copies display fields from the record, its analysis and its source back-reference.
func Entry(s Scored) domain.DigestEntry {
	r := s.Record
	entry := domain.DigestEntry{
		RecordID:    r.ID,
		Title:       r.Title,
		URL:         r.Source.URL,
		SourceName:  r.Source.SourceName,
		ImageURL:    r.Source.ImageURL,
		PublishedAt: r.PublishedAt,
		RankScore:   s.Score,
	}
	if entry.SourceName == "" {
		entry.SourceName = r.Source.SourceID
	}
	if a := r.Analysis; a != nil {
		entry.Category = a.Category
		entry.ImpactScore = a.ImpactScore
		entry.SummaryBullets = append([]string(nil), a.SummaryBullets...)
		entry.ImpactTags = append([]string(nil), a.ImpactTags...)
		entry.WhyItMatters = a.WhyItMatters
		entry.WhoIsAffected = a.WhoIsAffected
		entry.ShortTermImpact = a.ShortTermImpact
		entry.LongTermImpact = a.LongTermImpact
		entry.BiasRating = a.BiasRating
	}
	return entry
}
