package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "Asia/Kolkata"
	fallbackZone    = "UTC"
	configPathEnv   = "NEWSDIGEST_CONFIG"

	logLevelEnv          = "LOG_LEVEL"
	logFormatEnv         = "LOG_FORMAT"
	databaseDSNEnv       = "DATABASE_DSN"
	redisAddrEnv         = "REDIS_ADDR"
	redisPasswordEnv     = "REDIS_PASSWORD"
	httpAddrEnv          = "HTTP_ADDR"
	embeddingProviderEnv = "EMBEDDING_PROVIDER"
	cohereAPIKeyEnv      = "COHERE_API_KEY"
	openAIAPIKeyEnv      = "OPENAI_API_KEY"
	openAIModelEnv       = "OPENAI_MODEL"
	telegramTokenEnv     = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv    = "TELEGRAM_CHAT_ID"
	kafkaBrokersEnv      = "KAFKA_BROKERS"
	kafkaTopicEnv        = "KAFKA_TOPIC"
	s3BucketEnv          = "S3_BUCKET"
	awsRegionEnv         = "AWS_REGION"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Redis         RedisConfig        `yaml:"redis"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	HTTP          HTTPConfig         `yaml:"http"`
	Verification  VerificationConfig `yaml:"verification"`
	Credibility   CredibilityConfig  `yaml:"credibility"`
	Ranking       RankingConfig      `yaml:"ranking"`
	Embedding     EmbeddingConfig    `yaml:"embedding"`
	Analysis      AnalysisConfig     `yaml:"analysis"`
	Notifications NotificationConfig `yaml:"notifications"`
	Archive       ArchiveConfig      `yaml:"archive"`
	Sites         []SiteConfig       `yaml:"sites"`
}

// LoggingConfig controls the slog handler. Format is "text" (default) or "json".
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes Postgres connection details. An empty DSN selects the in-memory store.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
}

// RedisConfig points the job lease at a Redis instance. An empty address selects the in-process lease.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	LeaseKey string `yaml:"leaseKey"`
}

// SchedulerConfig defines when the pipeline should run.
type SchedulerConfig struct {
	Interval   time.Duration  `yaml:"interval"`
	DailyCron  string         `yaml:"dailyCron"`
	Timezone   string         `yaml:"timezone"`
	LeaseTTL   time.Duration  `yaml:"leaseTtl"`
	RunOnStart bool           `yaml:"runOnStart"`
	location   *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HTTPConfig configures the operational HTTP server. An empty address disables it.
type HTTPConfig struct {
	Addr       string        `yaml:"addr"`
	RunTimeout time.Duration `yaml:"runTimeout"`
}

// VerificationConfig tunes credibility filtering and deduplication.
type VerificationConfig struct {
	MinCredibility      float64 `yaml:"minCredibility"`
	SimilarityThreshold float64 `yaml:"similarityThreshold"`
	WindowDays          int     `yaml:"windowDays"`
	BodyPrefix          int     `yaml:"bodyPrefix"`
	BatchSize           int     `yaml:"batchSize"`
}

// CredibilityConfig overrides the built-in source trust table.
type CredibilityConfig struct {
	Generic float64            `yaml:"generic"`
	Sources map[string]float64 `yaml:"sources"`
}

// RankingConfig tunes digest assembly.
type RankingConfig struct {
	TotalLimit      int     `yaml:"totalLimit"`
	HighVolumeQuota float64 `yaml:"highVolumeQuota"`
	RotationPool    int     `yaml:"rotationPool"`
	TopStories      int     `yaml:"topStories"`
	BriefSize       int     `yaml:"briefSize"`
	TrendingSize    int     `yaml:"trendingSize"`
	RecentLimit     int     `yaml:"recentLimit"`
}

// EmbeddingConfig selects the sentence-embedding backend used for deduplication.
type EmbeddingConfig struct {
	Provider string        `yaml:"provider"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"apiKey"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// AnalysisConfig defines how to contact the LLM used for enrichment.
type AnalysisConfig struct {
	APIKey          string        `yaml:"apiKey"`
	BaseURL         string        `yaml:"baseUrl"`
	Model           string        `yaml:"model"`
	SystemPrompt    string        `yaml:"systemPrompt"`
	Concurrency     int           `yaml:"concurrency"`
	BatchLimit      int           `yaml:"batchLimit"`
	MaxContentRunes int           `yaml:"maxContentRunes"`
	Timeout         time.Duration `yaml:"timeout"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	TopStories int            `yaml:"topStories"`
	Telegram   TelegramConfig `yaml:"telegram"`
	Kafka      KafkaConfig    `yaml:"kafka"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	Endpoint string `yaml:"endpoint"`
}

// KafkaConfig describes the digest hand-off topic.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"clientId"`
}

// ArchiveConfig stores digest copies in S3-compatible storage. An empty bucket disables it.
type ArchiveConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	UsePathStyle    bool   `yaml:"usePathStyle"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
}

// SiteConfig describes a single source with its scanner strategy.
type SiteConfig struct {
	Name       string            `yaml:"name"`
	Scanner    string            `yaml:"scanner"`
	Categories []CategoryConfig  `yaml:"categories"`
	Options    map[string]string `yaml:"options"`
}

// CategoryConfig holds the concrete endpoints to crawl (e.g., RSS feed URLs).
type CategoryConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if fileCfg, err := Parse(raw); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
		} else {
			cfg = fileCfg
		}
	}

	cfg.applyEnvOverrides()
	cfg.sanitize()
	cfg.bindTimezone()

	if len(cfg.Sites) == 0 {
		cfg.Sites = defaultSites()
	}

	return cfg
}

// Parse decodes YAML on top of the defaults. Keys absent from raw keep their default values.
func Parse(raw []byte) (Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	cfg.sanitize()
	cfg.bindTimezone()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(logFormatEnv); v != "" {
		c.Logging.Format = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv(redisPasswordEnv); v != "" {
		c.Redis.Password = v
	}

	if v, ok := os.LookupEnv(httpAddrEnv); ok {
		c.HTTP.Addr = v
	}

	if v := os.Getenv(embeddingProviderEnv); v != "" {
		c.Embedding.Provider = strings.ToLower(v)
	}
	switch c.Embedding.Provider {
	case "cohere":
		if v := os.Getenv(cohereAPIKeyEnv); v != "" {
			c.Embedding.APIKey = v
		}
	case "openai":
		if v := os.Getenv(openAIAPIKeyEnv); v != "" {
			c.Embedding.APIKey = v
		}
	}

	if v := os.Getenv(openAIAPIKeyEnv); v != "" {
		c.Analysis.APIKey = v
	}
	if v := os.Getenv(openAIModelEnv); v != "" {
		c.Analysis.Model = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(kafkaBrokersEnv); v != "" {
		c.Notifications.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv(kafkaTopicEnv); v != "" {
		c.Notifications.Kafka.Topic = v
	}

	if v := os.Getenv(s3BucketEnv); v != "" {
		c.Archive.Bucket = v
	}
	if v := os.Getenv(awsRegionEnv); v != "" {
		c.Archive.Region = v
	}
}

// sanitize reverts out-of-range values to defaults.
func (c *Config) sanitize() {
	def := defaultConfig()

	if c.Verification.MinCredibility < 0 || c.Verification.MinCredibility > 1 {
		log.Printf("config: minCredibility %v out of range, using %v", c.Verification.MinCredibility, def.Verification.MinCredibility)
		c.Verification.MinCredibility = def.Verification.MinCredibility
	}
	if c.Verification.SimilarityThreshold <= 0 || c.Verification.SimilarityThreshold > 1 {
		log.Printf("config: similarityThreshold %v out of range, using %v", c.Verification.SimilarityThreshold, def.Verification.SimilarityThreshold)
		c.Verification.SimilarityThreshold = def.Verification.SimilarityThreshold
	}
	if c.Verification.WindowDays <= 0 {
		c.Verification.WindowDays = def.Verification.WindowDays
	}
	if c.Verification.BodyPrefix <= 0 {
		c.Verification.BodyPrefix = def.Verification.BodyPrefix
	}
	if c.Verification.BatchSize <= 0 {
		c.Verification.BatchSize = def.Verification.BatchSize
	}

	if c.HTTP.RunTimeout <= 0 {
		c.HTTP.RunTimeout = def.HTTP.RunTimeout
	}

	if c.Ranking.TotalLimit <= 0 {
		c.Ranking.TotalLimit = def.Ranking.TotalLimit
	}
	if c.Ranking.HighVolumeQuota <= 0 || c.Ranking.HighVolumeQuota > 1 {
		log.Printf("config: highVolumeQuota %v out of range, using %v", c.Ranking.HighVolumeQuota, def.Ranking.HighVolumeQuota)
		c.Ranking.HighVolumeQuota = def.Ranking.HighVolumeQuota
	}
	if c.Ranking.RotationPool <= 0 {
		c.Ranking.RotationPool = def.Ranking.RotationPool
	}
	if c.Ranking.TopStories <= 0 {
		c.Ranking.TopStories = def.Ranking.TopStories
	}
	if c.Ranking.BriefSize <= 0 {
		c.Ranking.BriefSize = def.Ranking.BriefSize
	}
	if c.Ranking.TrendingSize <= 0 {
		c.Ranking.TrendingSize = def.Ranking.TrendingSize
	}
	if c.Ranking.RecentLimit <= 0 {
		c.Ranking.RecentLimit = def.Ranking.RecentLimit
	}

	if c.Analysis.Concurrency <= 0 {
		c.Analysis.Concurrency = def.Analysis.Concurrency
	}
	if c.Scheduler.LeaseTTL <= 0 {
		c.Scheduler.LeaseTTL = def.Scheduler.LeaseTTL
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, fallbackZone)
		loc = time.UTC
	}
	c.Scheduler.location = loc
}

// TelegramChatID parses the configured chat identifier.
func (t TelegramConfig) TelegramChatID() (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(t.ChatID), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Redis:   RedisConfig{LeaseKey: "newsdigest:pipeline:lease"},
		Scheduler: SchedulerConfig{
			Interval:   2 * time.Minute,
			DailyCron:  "30 6 * * *",
			Timezone:   defaultTimezone,
			LeaseTTL:   10 * time.Minute,
			RunOnStart: true,
		},
		HTTP: HTTPConfig{Addr: ":8080", RunTimeout: 15 * time.Minute},
		Verification: VerificationConfig{
			MinCredibility:      0.6,
			SimilarityThreshold: 0.85,
			WindowDays:          2,
			BodyPrefix:          200,
			BatchSize:           500,
		},
		Credibility: CredibilityConfig{Generic: 0.5, Sources: defaultFeedCredibility()},
		Ranking: RankingConfig{
			TotalLimit:      50,
			HighVolumeQuota: 0.15,
			RotationPool:    20,
			TopStories:      10,
			BriefSize:       5,
			TrendingSize:    10,
			RecentLimit:     100,
		},
		Embedding: EmbeddingConfig{Timeout: 20 * time.Second},
		Analysis: AnalysisConfig{
			Model:           "gpt-4o-mini",
			SystemPrompt:    "You are an expert news analyst. Output ONLY JSON.",
			Concurrency:     4,
			BatchLimit:      50,
			MaxContentRunes: 2000,
			Timeout:         30 * time.Second,
		},
		Notifications: NotificationConfig{
			TopStories: 2,
			Kafka:      KafkaConfig{Topic: "newsdigest.digests", ClientID: "newsdigest"},
		},
		Archive: ArchiveConfig{Prefix: "digests/", Region: "us-east-1"},
	}
}

// defaultFeedCredibility vouches for the default feeds that the built-in table does not list.
func defaultFeedCredibility() map[string]float64 {
	return map[string]float64{
		"mit-ai":         0.85,
		"espn":           0.80,
		"bbc-sports":     0.90,
		"politico":       0.80,
		"cnbc":           0.80,
		"aljazeera":      0.80,
		"times-of-india": 0.70,
		"ndtv-top":       0.70,
		"sciencedaily":   0.80,
		"variety":        0.75,
		"nasa":           0.95,
		"grist":          0.70,
		"defense-news":   0.75,
	}
}

func defaultSites() []SiteConfig {
	feed := func(name, url string) SiteConfig {
		return SiteConfig{
			Name:       name,
			Scanner:    "rss",
			Categories: []CategoryConfig{{Name: "main", URL: url}},
		}
	}
	return []SiteConfig{
		feed("techcrunch", "https://techcrunch.com/feed/"),
		feed("wired", "https://www.wired.com/feed/rss"),
		feed("mit-ai", "https://news.mit.edu/rss/topic/artificial-intelligence2"),
		feed("espn", "https://www.espn.com/espn/rss/news"),
		feed("bbc-sports", "http://feeds.bbci.co.uk/sport/rss.xml"),
		feed("politico", "https://rss.politico.com/politics-news.xml"),
		feed("cnbc", "https://www.cnbc.com/id/100003114/device/rss/rss.html"),
		feed("bbc-news", "http://feeds.bbci.co.uk/news/rss.xml"),
		feed("aljazeera", "https://www.aljazeera.com/xml/rss/all.xml"),
		feed("times-of-india", "https://timesofindia.indiatimes.com/rssfeedstopstories.cms"),
		feed("ndtv-top", "https://feeds.feedburner.com/ndtvnews-top-stories"),
		feed("sciencedaily", "https://www.sciencedaily.com/rss/top/science.xml"),
		feed("variety", "https://variety.com/feed/"),
		feed("nasa", "https://www.nasa.gov/rss/dyn/breaking_news.rss"),
		feed("grist", "https://grist.org/feed/"),
		feed("defense-news", "https://www.defensenews.com/arc/outboundfeeds/rss/category/home/"),
	}
}
